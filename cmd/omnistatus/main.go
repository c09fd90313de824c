package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/omnistatus/pkg/analyzer"
	"github.com/lucid-vigil/omnistatus/pkg/api"
	"github.com/lucid-vigil/omnistatus/pkg/config"
	"github.com/lucid-vigil/omnistatus/pkg/logger"
	"github.com/lucid-vigil/omnistatus/pkg/notify"
	"github.com/lucid-vigil/omnistatus/pkg/scheduler"
	"github.com/lucid-vigil/omnistatus/pkg/sources/hostsensor"
	"github.com/lucid-vigil/omnistatus/pkg/sources/spool"
	"github.com/lucid-vigil/omnistatus/pkg/store"
	"github.com/lucid-vigil/omnistatus/pkg/watch"
)

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger based on config
	logger.InitLogger(cfg.LogLevel)

	log.Info().Msg("OmniStatus application starting...")
	log.Info().Msgf("Configuration loaded: LogLevel=%s, APIPort=%s, Store=%s",
		cfg.LogLevel, cfg.APIPort, cfg.Store.Path)

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

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())

	// Set up a channel to listen for OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Goroutine to handle graceful shutdown
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal: %s. Shutting down gracefully...", sig)
		cancel() // Cancel the context to signal other goroutines to stop
	}()

	// Start API server in a goroutine
	server := api.NewServer(st, an, tg, logger.For("api"))
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Initialize and start the scheduler with the enabled ingest sources
	sched := scheduler.NewScheduler()

	if cfg.Sources.HostSensor.Enabled {
		interval, err := time.ParseDuration(cfg.Sources.HostSensor.Interval)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid host sensor interval")
		}
		sched.Register(hostsensor.New(st, hostsensor.Config{}), interval)
	}

	if cfg.Sources.Spool.Enabled {
		sp := spool.New(st, cfg.Sources.Spool.Dir)
		go func() {
			if err := sp.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("Spool watcher stopped")
			}
		}()
		// Periodic sweep catches files dropped while the watcher was down.
		sched.Register(sp, time.Minute)
	}

	if cfg.Watch.Enabled {
		interval, err := time.ParseDuration(cfg.Watch.Interval)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid watch interval")
		}
		var sp *notify.Speech
		if cfg.TTS.Enabled {
			sp = notify.NewSpeech(cfg.OpenAI.APIKey, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.OutputPath)
		}
		loop := watch.New(st, an, tg, sp, cfg.Watch.WindowHours, cfg.Watch.AlertThreshold,
			logger.For("watch"))
		sched.Register(loop, interval)
	}

	sched.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("OmniStatus application stopped.")
	time.Sleep(1 * time.Second) // Give some time for cleanup
}
