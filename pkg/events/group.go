package events

import (
	"time"
)

// DefaultSimilarityThreshold is the ratio above which two normalized
// descriptions are considered the same underlying alert.
const DefaultSimilarityThreshold = 0.95

// Group is a cluster of near-duplicate events collapsed under one
// representative text. Count is the number of raw events merged in;
// TimestampFirst and TimestampLast span them. The normalized key used for
// matching is internal and never serialized.
type Group struct {
	SampleText     string    `json:"sample_text"`
	Count          int       `json:"count"`
	TimestampFirst time.Time `json:"timestamp_first"`
	TimestampLast  time.Time `json:"timestamp_last"`

	norm  string
	hasTS bool
}

// GroupSimilar clusters events by normalized-text similarity with a greedy
// single pass: events are taken in input order and assigned to the first
// existing group (in creation order) whose representative scores at or above
// the threshold. First-fit, not best-fit. A match increments the count and
// extends both ends of the group's time span; no match starts a new group.
//
// Events with an absent or unparsable timestamp still count toward their
// group but never touch its time span; a group seeded only by such events
// takes its span from the first member with a resolvable timestamp.
//
// A threshold outside (0,1] falls back to DefaultSimilarityThreshold.
// The sum of group counts always equals len(evts).
func GroupSimilar(evts []Event, threshold float64) []Group {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if len(evts) == 0 {
		return nil
	}

	var groups []Group
	for _, evt := range evts {
		text := evt.DisplayText()
		norm := NormalizeText(text)
		ts, tsOK := evt.Time()

		matched := false
		for i := range groups {
			g := &groups[i]
			if Similarity(g.norm, norm) < threshold {
				continue
			}
			g.Count++
			if tsOK {
				g.extendSpan(ts)
			}
			matched = true
			break
		}

		if !matched {
			g := Group{
				SampleText: text,
				Count:      1,
				norm:       norm,
			}
			if tsOK {
				g.TimestampFirst = ts
				g.TimestampLast = ts
				g.hasTS = true
			}
			groups = append(groups, g)
		}
	}

	return groups
}

func (g *Group) extendSpan(ts time.Time) {
	if !g.hasTS {
		g.TimestampFirst = ts
		g.TimestampLast = ts
		g.hasTS = true
		return
	}
	if ts.After(g.TimestampLast) {
		g.TimestampLast = ts
	}
	if ts.Before(g.TimestampFirst) {
		g.TimestampFirst = ts
	}
}
