package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/omnistatus/pkg/analyzer"
	svcerrors "github.com/lucid-vigil/omnistatus/pkg/errors"
	"github.com/lucid-vigil/omnistatus/pkg/events"
	"github.com/lucid-vigil/omnistatus/pkg/notify"
	"github.com/lucid-vigil/omnistatus/pkg/store"
	"github.com/lucid-vigil/omnistatus/pkg/summary"
)

// readLimit bounds how many rows a single read endpoint pulls from the store.
const readLimit = 1000

// summaryScanLimit bounds the aggregation read: summaries fold many more
// rows than any listing page returns.
const summaryScanLimit = 5000

// Server is the HTTP surface over the store, the scoring client and the
// alert sink. All handlers degrade: input problems come back as a structured
// error field and storage problems as empty results, never as a crash.
type Server struct {
	store    *store.Store
	analyzer *analyzer.Client
	telegram *notify.Telegram
	log      zerolog.Logger
	router   *mux.Router
}

// NewServer wires the routes. telegram may be nil when alerts are disabled.
func NewServer(st *store.Store, an *analyzer.Client, tg *notify.Telegram, logger zerolog.Logger) *Server {
	s := &Server{
		store:    st,
		analyzer: an,
		telegram: tg,
		log:      logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/event", s.handleAddEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/events", s.handleList(store.TableEvents)).Methods(http.MethodGet)
	s.router.HandleFunc("/events/summary/3h", s.handleSummary(store.TableEvents, summary.Mode3h)).Methods(http.MethodGet)
	s.router.HandleFunc("/events/summary/day", s.handleSummary(store.TableEvents, summary.ModeDay)).Methods(http.MethodGet)
	s.router.HandleFunc("/unique_events", s.handleUniqueEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/analyze", s.handleAnalyzeWindow).Methods(http.MethodGet)
	s.router.HandleFunc("/analyze", s.handleAnalyzeBatch).Methods(http.MethodPost)
	s.router.HandleFunc("/telegram", s.handleTelegram).Methods(http.MethodPost)
	s.router.HandleFunc("/export_rag", s.handleExportRAG).Methods(http.MethodPost)
	s.router.HandleFunc("/history", s.handleList(store.TableHistory)).Methods(http.MethodGet)
	s.router.HandleFunc("/history/summary/3h", s.handleSummary(store.TableHistory, summary.Mode3h)).Methods(http.MethodGet)
	s.router.HandleFunc("/history/summary/day", s.handleSummary(store.TableHistory, summary.ModeDay)).Methods(http.MethodGet)
}

// Handler returns the router wrapped with permissive CORS for the dashboard.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.router)
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port string) error {
	s.log.Info().Msgf("API server starting on :%s", port)
	return http.ListenAndServe(":"+port, s.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"ts": events.CanonicalTimestamp(time.Now()),
	})
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status": "error", "message": "invalid JSON body",
		})
		return
	}

	if _, err := s.store.Insert(r.Context(), store.TableEvents, ev); err != nil {
		if svcerrors.IsKind(err, svcerrors.KindInput) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "error", "message": err.Error(),
			})
			return
		}
		s.log.Error().Err(err).Msg("Failed to store event")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "error", "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "stored"})
}

// listQuery parses the shared read-filter parameters. A malformed start or
// end is an input error reported in-band with an empty result set.
func listQuery(r *http.Request) (store.Filter, map[string]interface{}, string) {
	q := r.URL.Query()
	f := store.Filter{
		Source: q.Get("source"),
		Text:   q.Get("text"),
		Limit:  intParam(q.Get("limit"), 0),
	}
	applied := map[string]interface{}{}

	if hrs := q.Get("hours"); hrs != "" {
		h := intParam(hrs, 0)
		if h < 1 || h > 168 {
			return f, applied, "hours must be between 1 and 168"
		}
		start := time.Now().UTC().Add(-time.Duration(h) * time.Hour)
		f.Start = &start
		applied["hours"] = h
	} else {
		if v := q.Get("start"); v != "" {
			t, err := events.ParseTimestamp(v)
			if err != nil {
				return f, applied, "invalid start (ISO8601)"
			}
			f.Start = &t
			applied["start"] = events.CanonicalTimestamp(t)
		}
		if v := q.Get("end"); v != "" {
			t, err := events.ParseTimestamp(v)
			if err != nil {
				return f, applied, "invalid end (ISO8601)"
			}
			f.End = &t
			applied["end"] = events.CanonicalTimestamp(t)
		}
	}
	if f.Source != "" {
		applied["source"] = f.Source
	}
	if f.Text != "" {
		applied["text"] = f.Text
	}
	return f, applied, ""
}

func (s *Server) handleList(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, applied, errMsg := listQuery(r)
		if errMsg != "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"count": 0, "items": []events.Event{}, "error": errMsg,
			})
			return
		}

		items, err := s.store.Find(r.Context(), table, f)
		if err != nil {
			s.log.Error().Err(err).Str("collection", table).Msg("Read failed")
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"count": 0, "items": []events.Event{}, "error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(items), "items": items, "applied_filter": applied,
		})
	}
}

func (s *Server) handleSummary(table string, mode summary.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r.URL.Query().Get("limit"), summary.DefaultLimit)

		evts, err := s.store.ScanRecent(r.Context(), table, summaryScanLimit)
		if err != nil {
			s.log.Error().Err(err).Str("collection", table).Msg("Summary read failed")
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"count": 0, "items": []summary.Item{}, "error": err.Error(),
			})
			return
		}

		items := summary.Summarize(evts, mode, limit)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(items), "items": items,
		})
	}
}

func (s *Server) handleUniqueEvents(w http.ResponseWriter, r *http.Request) {
	f, _, errMsg := listQuery(r)
	if errMsg != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count_raw": 0, "count_unique": 0, "groups": []events.Group{}, "error": errMsg,
		})
		return
	}
	f.Limit = readLimit

	raw, err := s.store.Find(r.Context(), store.TableEvents, f)
	if err != nil {
		s.log.Error().Err(err).Msg("Unique-events read failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count_raw": 0, "count_unique": 0, "groups": []events.Group{}, "error": err.Error(),
		})
		return
	}

	groups := events.GroupSimilar(raw, events.DefaultSimilarityThreshold)
	if groups == nil {
		groups = []events.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count_raw":    len(raw),
		"count_unique": len(groups),
		"groups":       groups,
	})
}

type analyzeBatchRequest struct {
	Events   []map[string]interface{} `json:"events"`
	Question string                   `json:"question"`
	Model    string                   `json:"model"`
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req analyzeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"score": 0.0, "text": "invalid JSON body",
		})
		return
	}

	res := s.analyzer.Analyze(r.Context(), req.Events, req.Question, req.Model)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyzeWindow(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query().Get("hours"), 1)
	if hours < 1 || hours > 168 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status": "error", "msg": "hours must be between 1 and 168",
		})
		return
	}

	evts, err := s.store.FindSince(r.Context(), store.TableEvents,
		time.Duration(hours)*time.Hour, readLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("Window read failed")
		evts = nil
	}
	if len(evts) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "no_events",
			"score":        0.0,
			"msg":          "No recent events.",
			"events_count": 0,
			"window_hours": hours,
		})
		return
	}

	res := s.analyzer.Analyze(r.Context(), eventMaps(evts), "", "")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"score":        res.Score,
		"msg":          res.Text,
		"events_count": len(evts),
		"window_hours": hours,
	})
}

type telegramRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "invalid JSON body"})
		return
	}

	if s.telegram == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"detail": "Telegram disabled in settings",
		})
		return
	}
	if err := s.telegram.Send(r.Context(), req.Text); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "detail": "Sent"})
}

type exportRequest struct {
	Events []map[string]interface{} `json:"events"`
}

// handleExportRAG renders raw events or similarity groups as a Markdown log
// suitable for feeding a retrieval pipeline.
func (s *Server) handleExportRAG(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "invalid JSON body"})
		return
	}

	md := "# OmniStatus Event Log Export\n"
	md += fmt.Sprintf("Generated: %s\n", events.CanonicalTimestamp(time.Now()))
	md += fmt.Sprintf("Total Events: %d\n\n", len(req.Events))

	for _, ev := range req.Events {
		ts := stringField(ev, "timestamp_first")
		if ts == "" {
			ts = stringField(ev, "timestamp")
		}
		if ts == "" {
			ts = "Unknown Time"
		}
		src := stringField(ev, "source")
		if src == "" {
			src = "Unknown Source"
		}

		var header, desc string
		if sample := stringField(ev, "sample_text"); sample != "" {
			count := 1
			if c, ok := ev["count"].(float64); ok {
				count = int(c)
			}
			desc = sample
			header = fmt.Sprintf("[%s | %s] (Count: %d)", ts, src, count)
		} else {
			desc = stringField(ev, "description")
			if desc == "" {
				desc = stringField(ev, "text")
			}
			if desc == "" {
				desc = fmt.Sprintf("%v", ev)
			}
			header = fmt.Sprintf("[%s | %s]", ts, src)
		}
		md += fmt.Sprintf("### %s\n%s\n\n", header, desc)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"markdown": md})
}

// eventMaps flattens stored events into the loose shape the scoring payload
// uses.
func eventMaps(evts []events.Event) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(evts))
	for _, ev := range evts {
		m := map[string]interface{}{
			"timestamp": ev.Timestamp,
			"source":    ev.Source,
			"text":      ev.DisplayText(),
		}
		if v := ev.ScoreValue(); v != nil {
			m["score"] = *v
		}
		out = append(out, m)
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
