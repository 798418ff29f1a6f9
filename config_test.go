package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeadline(t *testing.T) {
	got := parseDeadline("2025-12-21")
	assert.Equal(t, time.Date(2025, time.December, 21, 0, 0, 0, 0, time.UTC), got)

	// Garbage and absence both fall back to the far future instead of
	// breaking startup or rejecting every payment date.
	assert.Equal(t, farFutureDeadline, parseDeadline("21.12.2025"))
	assert.Equal(t, farFutureDeadline, parseDeadline(""))
}

func TestParseAdminIDs(t *testing.T) {
	ids, err := parseAdminIDs("1661192784, 42 ,7")
	require.NoError(t, err)
	assert.Equal(t, []int64{1661192784, 42, 7}, ids)

	ids, err = parseAdminIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseAdminIDs("42,admin")
	assert.Error(t, err)
}

func TestParseRemindAt(t *testing.T) {
	hour, minute, err := parseRemindAt("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, hour)
	assert.Equal(t, 30, minute)

	for _, bad := range []string{"25:00", "12:60", "noon", "12"} {
		_, _, err := parseRemindAt(bad)
		assert.Error(t, err, bad)
	}
}

func TestRequisitesFor(t *testing.T) {
	cfg := testConfig()

	assert.Equal(t, requisitesGroup2, cfg.RequisitesFor("Kazan"))
	assert.Equal(t, requisitesGroup3, cfg.RequisitesFor("Voronezh"))
	assert.Equal(t, requisitesGroup1, cfg.RequisitesFor("Неизвестный"), "unknown committees share the first group")
}

func TestIsAdmin(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.IsAdmin(900))
	assert.False(t, cfg.IsAdmin(42))
}
