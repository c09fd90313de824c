package hostsensor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lucid-vigil/omnistatus/pkg/events"
	"github.com/lucid-vigil/omnistatus/pkg/store"
)

// Config holds thresholds for the host telemetry sweep. Zero values fall
// back to the defaults below.
type Config struct {
	CPUThreshold     float64 `mapstructure:"cpu_threshold"`
	MemoryThreshold  float64 `mapstructure:"memory_threshold"`
	ProcessThreshold float64 `mapstructure:"process_threshold"`
}

const (
	defaultCPUThreshold     = 90.0
	defaultMemoryThreshold  = 90.0
	defaultProcessThreshold = 80.0
)

// Sensor sweeps local host telemetry and writes threshold-crossing
// observations into the event store so they flow through the same
// summarization and scoring pipeline as external sensor events.
type Sensor struct {
	Config Config
	store  *store.Store
}

func New(st *store.Store, cfg Config) *Sensor {
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = defaultCPUThreshold
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = defaultMemoryThreshold
	}
	if cfg.ProcessThreshold <= 0 {
		cfg.ProcessThreshold = defaultProcessThreshold
	}
	return &Sensor{Config: cfg, store: st}
}

// Name returns the unique name of the source.
func (s *Sensor) Name() string {
	return "host_sensor"
}

// Run performs one telemetry sweep.
func (s *Sensor) Run(ctx context.Context) {
	log.Info().Msg("Running host sensor sweep...")

	s.checkCPU(ctx)
	s.checkMemory(ctx)
	s.checkProcesses(ctx)

	log.Info().Msg("Host sensor sweep finished.")
}

func (s *Sensor) checkCPU(ctx context.Context) {
	percents, err := cpu.Percent(time.Second, false)
	if err != nil || len(percents) == 0 {
		log.Error().Err(err).Msg("Failed to read CPU usage.")
		return
	}

	total := percents[0]
	if total > s.Config.CPUThreshold {
		s.emit(ctx, fmt.Sprintf("High CPU usage: %.1f%%", total), total/100)
	}
}

func (s *Sensor) checkMemory(ctx context.Context) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read memory usage.")
		return
	}

	if vm.UsedPercent > s.Config.MemoryThreshold {
		s.emit(ctx, fmt.Sprintf("High memory usage: %.1f%%", vm.UsedPercent), vm.UsedPercent/100)
	}
}

func (s *Sensor) checkProcesses(ctx context.Context) {
	procs, err := process.Processes()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get process list.")
		return
	}

	for _, p := range procs {
		cpuPercent, err := p.CPUPercent()
		if err != nil {
			continue
		}
		if cpuPercent <= s.Config.ProcessThreshold {
			continue
		}
		name, _ := p.Name()
		s.emit(ctx,
			fmt.Sprintf("Process %s (pid %d) using %.1f%% CPU", name, p.Pid, cpuPercent),
			cpuPercent/100)
	}
}

func (s *Sensor) emit(ctx context.Context, text string, score float64) {
	ev := events.Event{
		Source: s.Name(),
		Text:   text,
		Score:  &score,
	}
	if _, err := s.store.Insert(ctx, store.TableEvents, ev); err != nil {
		log.Error().Err(err).Str("text", text).Msg("Failed to store host observation.")
		return
	}
	log.Warn().Str("text", text).Float64("score", score).Msg("Host observation recorded.")
}
