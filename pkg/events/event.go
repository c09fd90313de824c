package events

import (
	"time"
)

// Event is a single security/monitoring observation as it arrives from a
// sensor. Producers are loosely typed: the description can arrive under any
// of the text/texto/description/msg keys and a numeric reading under any of
// the score/value/valor/promedio keys. The alternate fields are kept explicit
// so the resolution order stays documented and testable instead of being
// buried in map lookups.
type Event struct {
	ID          string   `json:"id,omitempty"`
	Source      string   `json:"source"`
	Text        string   `json:"text,omitempty"`
	Texto       string   `json:"texto,omitempty"`
	Description string   `json:"description,omitempty"`
	Msg         string   `json:"msg,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Valor       *float64 `json:"valor,omitempty"`
	Promedio    *float64 `json:"promedio,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// DisplayText resolves the event description. Resolution order: text, texto,
// description, msg. Returns "" when none is set.
func (e Event) DisplayText() string {
	for _, s := range []string{e.Text, e.Texto, e.Description, e.Msg} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ScoreValue resolves the numeric reading. Resolution order: score, value,
// valor, promedio. Returns nil when the event carries no numeric field.
func (e Event) ScoreValue() *float64 {
	for _, v := range []*float64{e.Score, e.Value, e.Valor, e.Promedio} {
		if v != nil {
			return v
		}
	}
	return nil
}

// Time resolves the event timestamp to a UTC instant. The second return is
// false when the timestamp is absent or unparsable.
func (e Event) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// timestampLayouts covers the ISO8601 shapes sensors actually send: with or
// without a zone, with or without fractional seconds, date-only.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a flexible ISO8601 timestamp and normalizes it to
// UTC. Naive timestamps (no zone suffix) are taken as already being UTC so
// that every comparison in the pipeline happens in a single representation.
func ParseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// CanonicalTimestamp is the single stored representation of an instant.
// RFC3339 UTC sorts lexicographically, which the store's range queries and
// the summary bucket ordering both rely on.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
