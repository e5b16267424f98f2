// Fadebot - Live sports overreaction trader for prediction markets
//
// The bot compares a market's implied win probability during a live game
// against its pre-game baseline. When the crowd overreacts to an early
// deficit, it buys the discounted side and exits on recovery, stop, or the
// final whistle.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/bot"
	"github.com/sportsfade/fadebot/core"
	"github.com/sportsfade/fadebot/exchange"
	"github.com/sportsfade/fadebot/internal/config"
	"github.com/sportsfade/fadebot/push"
	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/storage"
)

const version = "1.2.0"

// defaultUser is the single-operator account id; the manager supports more
// when driven through an API.
const defaultUser = "default"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("mode", "overreaction_fade").
		Msg("⚡ Fadebot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	ex, err := exchange.NewClient(exchange.Options{
		BaseURL:    cfg.ExchangeBaseURL,
		APIKey:     cfg.ExchangeAPIKey,
		APISecret:  cfg.ExchangeSecret,
		Passphrase: cfg.ExchangePassphrase,
		PrivateKey: cfg.WalletPrivateKey,
		Timeout:    cfg.HTTPTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exchange client")
	}
	defer ex.Close()

	scores := scoreboard.NewClient(cfg.ScoreboardBaseURL, cfg.ScoreboardCacheTTL)

	tg, err := bot.New(cfg.TelegramToken, cfg.TelegramChatID, db, defaultUser)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram bot")
	}

	hub := push.NewHub()
	go func() {
		http.HandleFunc("/ws", hub.ServeWS)
		if err := http.ListenAndServe(":8090", nil); err != nil {
			log.Warn().Err(err).Msg("Push server stopped")
		}
	}()

	manager := core.NewManager(cfg, ex, scores, db, tg, hub)
	tg.SetManager(manager)

	go tg.Run(ctx)

	if _, err := manager.StartUser(ctx, defaultUser); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestrator")
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	cancel()
	manager.StopAll()
	log.Info().Msg("👋 Fadebot stopped")
}
