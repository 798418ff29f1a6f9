package main

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterFixture(n int) []Registrant {
	regs := make([]Registrant, 0, n)
	for i := 0; i < n; i++ {
		regs = append(regs, Registrant{
			TelegramID: int64(1000 + i),
			Answers: map[StepID]string{
				StepFullName:  fmt.Sprintf("Константинопольский Владимир %d", i),
				StepCommittee: "Ekaterinburg",
			},
			Status: StatusAwaitingPayment,
		})
	}
	return regs
}

func TestFormatRosterComplete(t *testing.T) {
	regs := rosterFixture(5)

	text := formatRoster(regs)

	assert.Contains(t, text, "Заявки (5)")
	for _, reg := range regs {
		assert.Contains(t, text, reg.Answers[StepFullName])
	}
	assert.NotContains(t, text, "…и ещё")
}

// TestFormatRosterTruncation feeds a roster of long Cyrillic names well past
// the message limit: the cut must land on a line boundary, never inside a
// multi-byte rune, and say how many entries were dropped.
func TestFormatRosterTruncation(t *testing.T) {
	regs := rosterFixture(200)

	text := formatRoster(regs)

	assert.LessOrEqual(t, len(text), rosterLimit)
	assert.True(t, utf8.ValidString(text), "truncation must not split a rune")

	require.Contains(t, text, "…и ещё")
	tail := text[strings.LastIndex(text, "…и ещё"):]
	var dropped int
	_, err := fmt.Sscanf(tail, "…и ещё %d", &dropped)
	require.NoError(t, err)

	shown := strings.Count(text, "⏳")
	assert.Equal(t, len(regs), shown+dropped, "shown plus dropped covers the whole roster")
	assert.Greater(t, shown, 0)
}
