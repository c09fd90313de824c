package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/omnistatus/pkg/analyzer"
	"github.com/lucid-vigil/omnistatus/pkg/config"
	"github.com/lucid-vigil/omnistatus/pkg/logger"
	"github.com/lucid-vigil/omnistatus/pkg/notify"
	"github.com/lucid-vigil/omnistatus/pkg/scheduler"
	"github.com/lucid-vigil/omnistatus/pkg/store"
	"github.com/lucid-vigil/omnistatus/pkg/watch"
)

// omnistatus-watch runs only the periodic analyze-and-alert loop against an
// existing event store, for deployments that keep ingestion and alerting on
// separate hosts.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// The watch binary is pointless without a scoring backend, so the loop
	// counts as enabled here regardless of the flag.
	cfg.Watch.Enabled = true
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.InitLogger(cfg.LogLevel)
	log.Info().Msg("OmniStatus watch loop starting...")

	interval, err := time.ParseDuration(cfg.Watch.Interval)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid watch interval")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open event store")
	}
	defer st.Close()

	an := analyzer.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model,
		cfg.OpenAI.SystemPrompt, cfg.OpenAI.AnalysisPrompt)
	if cfg.OpenAI.BaseURL != "" {
		an.SetBaseURL(cfg.OpenAI.BaseURL)
	}

	var tg *notify.Telegram
	if cfg.Telegram.Enabled {
		tg = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	var sp *notify.Speech
	if cfg.TTS.Enabled {
		sp = notify.NewSpeech(cfg.OpenAI.APIKey, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.OutputPath)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal: %s. Shutting down gracefully...", sig)
		cancel()
	}()

	loop := watch.New(st, an, tg, sp, cfg.Watch.WindowHours, cfg.Watch.AlertThreshold,
		logger.For("watch"))

	sched := scheduler.NewScheduler()
	sched.Register(loop, interval)
	sched.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("OmniStatus watch loop stopped.")
	time.Sleep(1 * time.Second)
}
