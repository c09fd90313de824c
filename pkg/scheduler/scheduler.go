package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Source defines the interface for any background producer that can be
// scheduled. Ingest sweeps and the analyze-and-alert loop both satisfy it.
type Source interface {
	Name() string
	Run(ctx context.Context)
}

type registration struct {
	source   Source
	interval time.Duration
}

// Scheduler manages the registration and execution of background sources.
type Scheduler struct {
	sources []registration
}

// NewScheduler creates and returns a new Scheduler instance.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Register adds a source to the scheduler with its run interval.
func (s *Scheduler) Register(src Source, interval time.Duration) {
	s.sources = append(s.sources, registration{source: src, interval: interval})
	log.Info().Msgf("Source '%s' registered with interval %s.", src.Name(), interval)
}

// Start launches all registered sources. Each runs once immediately, then on
// its own ticker until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("Scheduler starting...")

	for _, reg := range s.sources {
		if reg.interval <= 0 {
			log.Error().Msgf("Invalid interval for source '%s', skipping.", reg.source.Name())
			continue
		}
		go s.runSource(ctx, reg.source, reg.interval)
	}

	log.Info().Msg("All registered sources started.")
}

func (s *Scheduler) runSource(ctx context.Context, src Source, interval time.Duration) {
	// Run immediately on start
	log.Debug().Msgf("Running source '%s' for the first time.", src.Name())
	src.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Debug().Msgf("Running source '%s'.", src.Name())
			src.Run(ctx)
		case <-ctx.Done():
			log.Info().Msgf("Source '%s' received shutdown signal.", src.Name())
			return
		}
	}
}
