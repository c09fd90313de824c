package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	svcerrors "github.com/lucid-vigil/omnistatus/pkg/errors"
	"github.com/lucid-vigil/omnistatus/pkg/events"
)

// Collections kept by the store. Events is the live ingest stream; History
// is the long-term metric history fed by external exporters.
const (
	TableEvents  = "events"
	TableHistory = "history"
)

var validTables = map[string]bool{
	TableEvents:  true,
	TableHistory: true,
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	text      TEXT NOT NULL DEFAULT '',
	score     REAL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE TABLE IF NOT EXISTS history (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	text      TEXT NOT NULL DEFAULT '',
	score     REAL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
`

// Store is the durable owner of event data, backed by SQLite. Timestamps are
// normalized to one canonical UTC representation at write time, so range
// queries are plain lexicographic comparisons and no dual-representation
// matching is ever needed at read time.
type Store struct {
	db *sqlx.DB
}

// Filter narrows a Find call. Start/End bound the time range inclusively;
// Source and Text are case-insensitive substring matches; Limit is clamped
// to [1,1000] with a default of 200.
type Filter struct {
	Start  *time.Time
	End    *time.Time
	Source string
	Text   string
	Limit  int
}

const (
	defaultFindLimit = 200
	maxFindLimit     = 1000
)

// Open opens (and if needed creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type eventRow struct {
	ID        string          `db:"id"`
	Source    string          `db:"source"`
	Text      string          `db:"text"`
	Score     sql.NullFloat64 `db:"score"`
	Timestamp string          `db:"timestamp"`
}

// Insert stores one event. A missing timestamp defaults to now; a present
// one must parse as flexible ISO8601 and is rewritten in the canonical UTC
// form. The generated event id is returned.
func (s *Store) Insert(ctx context.Context, table string, ev events.Event) (string, error) {
	if !validTables[table] {
		return "", svcerrors.NewInputError("store", fmt.Sprintf("unknown collection %q", table), nil)
	}

	ts := time.Now().UTC()
	if ev.Timestamp != "" {
		parsed, err := events.ParseTimestamp(ev.Timestamp)
		if err != nil {
			ie := svcerrors.NewInputError("store", fmt.Sprintf("invalid timestamp %q (ISO8601)", ev.Timestamp), nil)
			ie.Cause = err
			return "", ie
		}
		ts = parsed
	}

	id := uuid.New().String()
	score := sql.NullFloat64{}
	if v := ev.ScoreValue(); v != nil {
		score = sql.NullFloat64{Float64: *v, Valid: true}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, source, text, score, timestamp) VALUES (?, ?, ?, ?, ?)`, table)
	_, err := s.db.ExecContext(ctx, query,
		id, ev.Source, ev.DisplayText(), score, events.CanonicalTimestamp(ts))
	if err != nil {
		return "", svcerrors.NewStorageError("store", "insert", err)
	}
	return id, nil
}

// Find returns events matching the filter, newest first.
func (s *Store) Find(ctx context.Context, table string, f Filter) ([]events.Event, error) {
	if !validTables[table] {
		return nil, svcerrors.NewInputError("store", fmt.Sprintf("unknown collection %q", table), nil)
	}

	limit := f.Limit
	if limit < 1 {
		limit = defaultFindLimit
	}
	if limit > maxFindLimit {
		limit = maxFindLimit
	}

	query := fmt.Sprintf(`SELECT id, source, text, score, timestamp FROM %s`, table)
	var conds []string
	var args []interface{}

	if f.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, events.CanonicalTimestamp(*f.Start))
	}
	if f.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, events.CanonicalTimestamp(*f.End))
	}
	if f.Source != "" {
		conds = append(conds, "source LIKE ?")
		args = append(args, "%"+f.Source+"%")
	}
	if f.Text != "" {
		conds = append(conds, "text LIKE ?")
		args = append(args, "%"+f.Text+"%")
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, svcerrors.NewStorageError("store", "find", err)
	}
	return rowsToEvents(rows), nil
}

// ScanRecent reads up to limit newest rows without the caller-facing limit
// clamp. Aggregation passes fold far more rows than any single dashboard
// page shows, so they get their own read bound.
func (s *Store) ScanRecent(ctx context.Context, table string, limit int) ([]events.Event, error) {
	if !validTables[table] {
		return nil, svcerrors.NewInputError("store", fmt.Sprintf("unknown collection %q", table), nil)
	}
	if limit < 1 {
		limit = defaultFindLimit
	}

	query := fmt.Sprintf(
		`SELECT id, source, text, score, timestamp FROM %s ORDER BY timestamp DESC LIMIT ?`, table)
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, svcerrors.NewStorageError("store", "scan", err)
	}
	return rowsToEvents(rows), nil
}

func rowsToEvents(rows []eventRow) []events.Event {
	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		ev := events.Event{
			ID:        r.ID,
			Source:    r.Source,
			Text:      r.Text,
			Timestamp: r.Timestamp,
		}
		if r.Score.Valid {
			v := r.Score.Float64
			ev.Score = &v
		}
		out = append(out, ev)
	}
	return out
}

// FindSince is a convenience for the recent-window reads used by the
// analysis paths: all events in the last `window`, newest first.
func (s *Store) FindSince(ctx context.Context, table string, window time.Duration, limit int) ([]events.Event, error) {
	start := time.Now().UTC().Add(-window)
	return s.Find(ctx, table, Filter{Start: &start, Limit: limit})
}
