package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/omnistatus/pkg/events"
	"github.com/lucid-vigil/omnistatus/pkg/store"
)

// Spool ingests JSON event files dropped into a directory. External
// producers that cannot speak HTTP write one event per .json file; ingested
// files are removed. The fsnotify watcher picks up new drops immediately and
// the periodic sweep catches anything written while the watcher was down.
type Spool struct {
	dir   string
	store *store.Store
}

func New(st *store.Store, dir string) *Spool {
	return &Spool{dir: dir, store: st}
}

// Name returns the unique name of the source.
func (sp *Spool) Name() string {
	return "spool"
}

// Run sweeps the spool directory once, ingesting every pending file.
func (sp *Spool) Run(ctx context.Context) {
	entries, err := os.ReadDir(sp.dir)
	if err != nil {
		log.Error().Err(err).Str("dir", sp.dir).Msg("Failed to read spool directory.")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sp.ingestFile(ctx, filepath.Join(sp.dir, entry.Name()))
	}
}

// Watch blocks consuming filesystem notifications until the context is
// cancelled. Intended to run in its own goroutine alongside the periodic
// sweep.
func (sp *Spool) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(sp.dir); err != nil {
		return err
	}
	log.Info().Str("dir", sp.dir).Msg("Spool watcher started.")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			sp.ingestFile(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Spool watcher error.")
		case <-ctx.Done():
			log.Info().Msg("Spool watcher received shutdown signal.")
			return nil
		}
	}
}

// ingestFile parses one spool file. Either a single event object or an array
// of events is accepted. The file is removed after a successful ingest;
// malformed files are left in place for inspection.
func (sp *Spool) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to read spool file.")
		return
	}

	var batch []events.Event
	if err := json.Unmarshal(data, &batch); err != nil {
		var single events.Event
		if err := json.Unmarshal(data, &single); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Malformed spool file, leaving in place.")
			return
		}
		batch = []events.Event{single}
	}

	stored := 0
	for _, ev := range batch {
		if ev.Source == "" {
			ev.Source = sp.Name()
		}
		if _, err := sp.store.Insert(ctx, store.TableEvents, ev); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to store spooled event.")
			continue
		}
		stored++
	}

	if stored == len(batch) {
		if err := os.Remove(path); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to remove ingested spool file.")
		}
	}
	log.Info().Str("file", path).Int("events", stored).Msg("Spool file ingested.")
}
