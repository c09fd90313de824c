package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/omnistatus/pkg/analyzer"
	"github.com/lucid-vigil/omnistatus/pkg/notify"
	"github.com/lucid-vigil/omnistatus/pkg/store"
)

// fakeChat serves a canned chat-completions response wrapping the given
// content string.
func fakeChat(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestServer(t *testing.T, chatContent string) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	an := analyzer.NewClient("sk-test", "", "", "")
	if chatContent != "" {
		chat := fakeChat(t, chatContent)
		t.Cleanup(chat.Close)
		an.SetBaseURL(chat.URL)
	}

	return NewServer(st, an, nil, zerolog.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	rec, out := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.NotEmpty(t, out["ts"])
}

func TestAddAndListEvents(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	rec, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
		"source":    "cam-1",
		"text":      "door opened",
		"timestamp": "2024-06-01T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stored", out["status"])

	rec, out = doJSON(t, h, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["count"])
	items := out["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "cam-1", first["source"])
}

func TestAddEventDefaultsTimestamp(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	rec, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
		"source": "cam-1", "text": "motion",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stored", out["status"])

	_, out = doJSON(t, h, http.MethodGet, "/events", nil)
	items := out["items"].([]interface{})
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].(map[string]interface{})["timestamp"])
}

func TestAddEventBadTimestamp(t *testing.T) {
	s := newTestServer(t, "")
	rec, out := doJSON(t, s.Handler(), http.MethodPost, "/event", map[string]interface{}{
		"source": "cam-1", "text": "x", "timestamp": "yesterday-ish",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", out["status"])
}

func TestListEventsInvalidStart(t *testing.T) {
	s := newTestServer(t, "")
	rec, out := doJSON(t, s.Handler(), http.MethodGet, "/events?start=not-a-date", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), out["count"])
	assert.Equal(t, "invalid start (ISO8601)", out["error"])
}

func TestListEventsFilters(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	for i, src := range []string{"cam-front", "cam-back", "sensor-1"} {
		_, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
			"source":    src,
			"text":      fmt.Sprintf("event %d", i),
			"timestamp": fmt.Sprintf("2024-06-01T%02d:00:00Z", 10+i),
		})
		require.Equal(t, "stored", out["status"])
	}

	_, out := doJSON(t, h, http.MethodGet, "/events?source=cam", nil)
	assert.Equal(t, float64(2), out["count"])

	_, out = doJSON(t, h, http.MethodGet,
		"/events?start=2024-06-01T11:00:00Z&end=2024-06-01T12:00:00Z", nil)
	assert.Equal(t, float64(2), out["count"])
}

func TestSummaryEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	for _, hour := range []int{1, 2, 4} {
		_, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
			"source":    "cam-1",
			"text":      "motion detected",
			"timestamp": fmt.Sprintf("2024-06-01T%02d:00:00Z", hour),
		})
		require.Equal(t, "stored", out["status"])
	}

	rec, out := doJSON(t, h, http.MethodGet, "/events/summary/3h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["count"])

	items := out["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "3h", first["tipo"])
	assert.Contains(t, first, "period")
	// Nobody scored these events, so the placeholder dash is expected.
	assert.Equal(t, "—", first["score"])
}

func TestUniqueEvents(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	for _, text := range []string{"Door opened", "door  opened!!", "window broken"} {
		_, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
			"source": "cam-1", "text": text, "timestamp": "2024-06-01T10:00:00Z",
		})
		require.Equal(t, "stored", out["status"])
	}

	rec, out := doJSON(t, h, http.MethodGet, "/unique_events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), out["count_raw"])
	assert.Equal(t, float64(2), out["count_unique"])

	groups := out["groups"].([]interface{})
	counts := 0
	for _, g := range groups {
		counts += int(g.(map[string]interface{})["count"].(float64))
	}
	assert.Equal(t, 3, counts)
}

func TestAnalyzeBatch(t *testing.T) {
	s := newTestServer(t, `{"score": 0.8, "text": "intrusion attempt"}`)

	rec, out := doJSON(t, s.Handler(), http.MethodPost, "/analyze", map[string]interface{}{
		"events": []map[string]interface{}{
			{"text": "door forced", "timestamp": "2024-06-01T10:00:00Z"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.8, out["score"])
	assert.Equal(t, "intrusion attempt", out["text"])
}

func TestAnalyzeWindowNoEvents(t *testing.T) {
	s := newTestServer(t, "")
	rec, out := doJSON(t, s.Handler(), http.MethodGet, "/analyze?hours=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_events", out["status"])
	assert.Equal(t, float64(0), out["score"])
	assert.Equal(t, float64(0), out["events_count"])
	assert.Equal(t, float64(2), out["window_hours"])
}

func TestAnalyzeWindowScoresRecentEvents(t *testing.T) {
	s := newTestServer(t, `{"score": 0.4, "text": "nothing unusual"}`)
	h := s.Handler()

	_, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
		"source":    "cam-1",
		"text":      "motion",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z"),
	})
	require.Equal(t, "stored", out["status"])

	rec, out := doJSON(t, h, http.MethodGet, "/analyze?hours=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 0.4, out["score"])
	assert.Equal(t, "nothing unusual", out["msg"])
	assert.Equal(t, float64(1), out["events_count"])
}

func TestAnalyzeWindowHoursOutOfRange(t *testing.T) {
	s := newTestServer(t, "")
	rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/analyze?hours=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramDisabled(t *testing.T) {
	s := newTestServer(t, "")
	rec, out := doJSON(t, s.Handler(), http.MethodPost, "/telegram", map[string]interface{}{
		"text": "manual alert",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Telegram disabled in settings", out["detail"])
}

func TestTelegramEnabled(t *testing.T) {
	tgServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer tgServer.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	defer st.Close()

	tg := notify.NewTelegram("123:abc", "42")
	tg.SetBaseURL(tgServer.URL)
	s := NewServer(st, analyzer.NewClient("sk-test", "", "", ""), tg, zerolog.Nop())

	rec, out := doJSON(t, s.Handler(), http.MethodPost, "/telegram", map[string]interface{}{
		"text": "manual alert",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestExportRAG(t *testing.T) {
	s := newTestServer(t, "")

	rec, out := doJSON(t, s.Handler(), http.MethodPost, "/export_rag", map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"sample_text":     "door opened",
				"count":           3,
				"timestamp_first": "2024-06-01T10:00:00Z",
				"source":          "cam-1",
			},
			{
				"text":      "window broken",
				"timestamp": "2024-06-01T11:00:00Z",
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	md := out["markdown"].(string)
	assert.Contains(t, md, "# OmniStatus Event Log Export")
	assert.Contains(t, md, "Total Events: 2")
	assert.Contains(t, md, "(Count: 3)")
	assert.Contains(t, md, "door opened")
	assert.Contains(t, md, "[2024-06-01T11:00:00Z | Unknown Source]")
	assert.Contains(t, md, "window broken")
}

func TestHistoryIsolatedFromEvents(t *testing.T) {
	s := newTestServer(t, "")
	h := s.Handler()

	_, out := doJSON(t, h, http.MethodPost, "/event", map[string]interface{}{
		"source": "cam-1", "text": "motion",
	})
	require.Equal(t, "stored", out["status"])

	_, out = doJSON(t, h, http.MethodGet, "/history", nil)
	assert.Equal(t, float64(0), out["count"])
}
