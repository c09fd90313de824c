package summary

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lucid-vigil/omnistatus/pkg/events"
)

// Mode selects the bucket width for a summarization pass.
type Mode string

const (
	Mode3h  Mode = "3h"
	ModeDay Mode = "day"
)

const (
	// DefaultLimit caps the number of buckets returned when the caller does
	// not ask for a specific limit.
	DefaultLimit = 200
	// MaxLimit is the hard ceiling on returned buckets.
	MaxLimit = 1000

	maxSampleTexts = 3
	noSamplesText  = "No samples"
	noScoreMarker  = "—"
	sampleJoiner   = " | "
)

// Item is one dashboard row: a bucket reduced to its representative texts,
// average score and evidence count. Score is nil when no event in the bucket
// carried a numeric reading; it renders as the placeholder dash, never zero.
type Item struct {
	Text     string
	Score    *float64
	Evidence string
	Tipo     string
	Period   string
	Date     string
}

// MarshalJSON renders the wire shape the dashboard expects: the score field
// is either the numeric average or the placeholder string, and only the key
// matching the mode (period vs date) is present.
func (it Item) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"text": it.Text,
		"hash": it.Evidence,
		"tipo": it.Tipo,
	}
	if it.Score != nil {
		out["score"] = *it.Score
	} else {
		out["score"] = noScoreMarker
	}
	if it.Period != "" {
		out["period"] = it.Period
	}
	if it.Date != "" {
		out["date"] = it.Date
	}
	return json.Marshal(out)
}

type bucket struct {
	key    string
	count  int
	scores []float64
	texts  []string
}

// Summarize folds events into fixed-width time buckets and returns one Item
// per bucket, newest bucket first, truncated to limit (clamped to
// [1,MaxLimit], DefaultLimit when unset). Events with a missing or
// unparsable timestamp are skipped. Buckets are recomputed from scratch on
// every call; nothing is carried across invocations.
func Summarize(evts []events.Event, mode Mode, limit int) []Item {
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	buckets := make(map[string]*bucket)
	for _, ev := range evts {
		ts, ok := ev.Time()
		if !ok {
			continue
		}

		key := bucketKey(ts, mode)
		b := buckets[key]
		if b == nil {
			b = &bucket{key: key}
			buckets[key] = b
		}

		b.count++
		if sc := ev.ScoreValue(); sc != nil {
			b.scores = append(b.scores, *sc)
		}
		if len(b.texts) < maxSampleTexts {
			if txt := ev.DisplayText(); txt != "" {
				b.texts = append(b.texts, txt)
			}
		}
	}

	items := make([]Item, 0, len(buckets))
	for _, b := range buckets {
		items = append(items, b.toItem(mode))
	}

	// Both key formats are zero-padded ISO8601, so a lexicographic sort on
	// the key is a correct chronological sort.
	sort.Slice(items, func(i, j int) bool {
		return sortKey(items[i]) > sortKey(items[j])
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (b *bucket) toItem(mode Mode) Item {
	it := Item{
		Text:     noSamplesText,
		Evidence: fmt.Sprintf("%d evts", b.count),
	}
	if len(b.texts) > 0 {
		it.Text = strings.Join(b.texts, sampleJoiner)
	}
	if len(b.scores) > 0 {
		sum := 0.0
		for _, s := range b.scores {
			sum += s
		}
		avg := sum / float64(len(b.scores))
		it.Score = &avg
	}

	if mode == Mode3h {
		it.Tipo = "3h"
		it.Period = b.key
	} else {
		it.Tipo = "dia"
		it.Date = b.key
	}
	return it
}

// bucketKey computes the bucket identity of an instant. Mode3h truncates to
// the hour and floors the hour to the nearest multiple of 3 (0,3,...,21);
// ModeDay keys by calendar date.
func bucketKey(ts time.Time, mode Mode) string {
	ts = ts.UTC()
	if mode == Mode3h {
		start := time.Date(ts.Year(), ts.Month(), ts.Day(), (ts.Hour()/3)*3, 0, 0, 0, time.UTC)
		return events.CanonicalTimestamp(start)
	}
	return ts.Format("2006-01-02")
}

func sortKey(it Item) string {
	if it.Period != "" {
		return it.Period
	}
	return it.Date
}
