package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Payment requisites, one group of local committees per card.
const (
	requisitesGroup1 = "💳 РАЙФФАЙЗЕН: `5379653044766234` (Елисеев А. Д.)"
	requisitesGroup2 = "💳 СБЕРБАНК: `2202202044156549` (Плешакова А. В.)"
	requisitesGroup3 = "💳 СБЕРБАНК: `2202206338732253` (Ибрагимова А.Р.)"
)

// committeeRequisites maps a local committee to the card its delegates pay to.
// The key order of committees shown on the keyboard is defaultCommittees.
var committeeRequisites = map[string]string{
	"Moscow": requisitesGroup1, "SPUEF": requisitesGroup1, "YouLead": requisitesGroup1, "EST": requisitesGroup1,
	"Tyumen": requisitesGroup2, "Ufa": requisitesGroup2, "Kazan": requisitesGroup2, "Tomsk": requisitesGroup2,
	"Ekaterinburg": requisitesGroup3, "E&G": requisitesGroup3, "Voronezh": requisitesGroup3,
}

var defaultCommittees = []string{
	"Moscow", "SPUEF", "YouLead", "EST",
	"Tyumen", "Ufa", "Kazan", "Tomsk",
	"Ekaterinburg", "E&G", "Voronezh",
}

// farFutureDeadline is the fallback when PAYMENT_DEADLINE cannot be parsed:
// the bot keeps working, nothing is ever rejected as "past deadline".
var farFutureDeadline = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

// Config represents the bot configuration.
type Config struct {
	BotToken   string
	AdminIDs   []int64
	EventName  string
	Deadline   time.Time // payment deadline, date precision
	Fee        int       // registration fee in rubles
	Committees []string
	DBFile     string
	RemindAt   string // HH:MM local time for the daily reminder sweep
	BotLink    string // deep link encoded into the /qrcode image

	// Google Sheets mirror; disabled when SheetID is empty.
	SheetKeyFile string
	SheetID      string
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded .env file")
	}

	config := &Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		EventName:    getenvDefault("EVENT_NAME", "Nat'co 26"),
		DBFile:       getenvDefault("DB_FILE", "./registrations.db"),
		RemindAt:     getenvDefault("REMIND_AT", "12:00"),
		BotLink:      os.Getenv("BOT_LINK"),
		SheetKeyFile: getenvDefault("GS_KEY_FILE", "google_key.json"),
		SheetID:      os.Getenv("GS_SHEET_ID"),
		Committees:   defaultCommittees,
	}

	if config.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	adminIDs, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	if len(adminIDs) == 0 {
		log.Warn().Msg("ADMIN_IDS not set, no user will have admin privileges")
	}
	config.AdminIDs = adminIDs

	config.Fee = 1500
	if feeStr := os.Getenv("REG_FEE"); feeStr != "" {
		fee, err := strconv.Atoi(feeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REG_FEE %q: %w", feeStr, err)
		}
		config.Fee = fee
	}

	config.Deadline = parseDeadline(os.Getenv("PAYMENT_DEADLINE"))

	if _, _, err := parseRemindAt(config.RemindAt); err != nil {
		return nil, fmt.Errorf("invalid REMIND_AT %q: %w", config.RemindAt, err)
	}

	return config, nil
}

// parseDeadline reads a YYYY-MM-DD deadline. A missing or malformed value
// falls back to a far-future date instead of failing startup: a broken
// deadline must not take the whole bot down.
func parseDeadline(s string) time.Time {
	if s == "" {
		log.Warn().Msg("PAYMENT_DEADLINE not set, using far-future fallback")
		return farFutureDeadline
	}
	deadline, err := time.Parse("2006-01-02", s)
	if err != nil {
		log.Error().Str("value", s).Err(err).Msg("unparseable PAYMENT_DEADLINE, using far-future fallback")
		return farFutureDeadline
	}
	return deadline
}

func parseAdminIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", trimmed, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseRemindAt splits an HH:MM time of day.
func parseRemindAt(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute %q", parts[1])
	}
	return hour, minute, nil
}

// IsAdmin checks if a telegram id belongs to an admin.
func (c *Config) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// RequisitesFor returns the payment card for a local committee. Committees
// without an explicit mapping share the first group.
func (c *Config) RequisitesFor(committee string) string {
	if req, ok := committeeRequisites[committee]; ok {
		return req
	}
	return requisitesGroup1
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
