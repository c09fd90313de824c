package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/omnistatus/pkg/analyzer"
	"github.com/lucid-vigil/omnistatus/pkg/events"
	"github.com/lucid-vigil/omnistatus/pkg/notify"
	"github.com/lucid-vigil/omnistatus/pkg/store"
)

const readLimit = 1000

// Loop is the periodic analyze-and-alert pass: load the recent event window,
// collapse near-duplicates, score the groups, and alert when the score
// crosses the threshold. Every failure inside a pass is logged and the loop
// keeps going; only startup-time misconfiguration is fatal, and that is
// handled in config validation.
type Loop struct {
	store     *store.Store
	analyzer  *analyzer.Client
	telegram  *notify.Telegram
	speech    *notify.Speech
	window    time.Duration
	threshold float64
	log       zerolog.Logger
}

// New wires a watch loop. telegram and speech may be nil when those sinks
// are disabled.
func New(st *store.Store, an *analyzer.Client, tg *notify.Telegram, sp *notify.Speech,
	windowHours int, threshold float64, logger zerolog.Logger) *Loop {
	return &Loop{
		store:     st,
		analyzer:  an,
		telegram:  tg,
		speech:    sp,
		window:    time.Duration(windowHours) * time.Hour,
		threshold: threshold,
		log:       logger,
	}
}

// Name returns the unique name of the source.
func (l *Loop) Name() string {
	return "watch_loop"
}

// Run executes one analyze-and-alert pass.
func (l *Loop) Run(ctx context.Context) {
	evts, err := l.store.FindSince(ctx, store.TableEvents, l.window, readLimit)
	if err != nil {
		l.log.Error().Err(err).Msg("Watch pass could not read the event window.")
		return
	}
	if len(evts) == 0 {
		l.log.Debug().Msg("No recent events, skipping analysis.")
		return
	}

	groups := events.GroupSimilar(evts, events.DefaultSimilarityThreshold)
	res := l.analyzer.Analyze(ctx, groupMaps(groups), "", "")

	l.log.Info().
		Int("events", len(evts)).
		Int("groups", len(groups)).
		Float64("score", res.Score).
		Msg("Watch pass scored.")

	if res.Score < l.threshold {
		return
	}
	l.alert(ctx, res, len(evts))
}

func (l *Loop) alert(ctx context.Context, res analyzer.Result, eventCount int) {
	msg := fmt.Sprintf("⚠ Risk %.2f over %d recent events\n\n%s", res.Score, eventCount, res.Text)

	if l.telegram != nil {
		if err := l.telegram.Send(ctx, msg); err != nil {
			l.log.Error().Err(err).Msg("Alert delivery failed.")
		}
	}
	if l.speech != nil {
		if err := l.speech.Render(ctx, res.Text); err != nil {
			l.log.Error().Err(err).Msg("Alert speech rendering failed.")
		}
	}
}

// groupMaps flattens similarity groups into the loose shape the scoring
// payload uses.
func groupMaps(groups []events.Group) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]interface{}{
			"sample_text":     g.SampleText,
			"count":           g.Count,
			"timestamp_first": events.CanonicalTimestamp(g.TimestampFirst),
			"timestamp_last":  events.CanonicalTimestamp(g.TimestampLast),
		})
	}
	return out
}
