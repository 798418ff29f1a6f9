package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}

	db, err := sql.Open("sqlite3", cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database failed")
	}
	defer db.Close()

	var repo Repository = NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		log.Fatal().Err(err).Msg("creating tables failed")
	}

	if cfg.SheetID != "" {
		mirror, err := NewSheetMirror(context.Background(), cfg.SheetKeyFile, cfg.SheetID)
		if err != nil {
			// The mirror is a convenience copy; registration keeps working
			// without it.
			log.Error().Err(err).Msg("sheet mirror disabled")
		} else {
			repo = NewMirroredRepository(repo, mirror)
			log.Info().Str("sheet", cfg.SheetID).Msg("sheet mirror enabled")
		}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("creating bot failed")
	}
	log.Info().Str("account", bot.Self.UserName).Msg("authorized")

	app := NewApp(bot, repo, cfg)

	spec, err := cronSpec(cfg.RemindAt)
	if err != nil {
		log.Fatal().Err(err).Str("remind_at", cfg.RemindAt).Msg("bad reminder time")
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, func() {
		app.reminder.Sweep(time.Now())
	}); err != nil {
		log.Fatal().Err(err).Msg("scheduling reminder sweep failed")
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Info().Str("at", cfg.RemindAt).Msg("daily reminder sweep scheduled")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := bot.GetUpdatesChan(u)
	if err != nil {
		log.Fatal().Err(err).Msg("getting updates channel failed")
	}

	for update := range updates {
		app.HandleUpdate(update)
	}
}
