package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/omnistatus/pkg/retry"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4.1"
	DefaultTimeout = 60 * time.Second

	// Payload bounds. Mini models tolerate larger event batches before
	// hitting rate limits.
	maxEvents     = 50
	maxEventsMini = 200
	maxFieldLen   = 150
)

// Result is the scoring outcome. Score is always in [0,1] and Text is always
// non-empty: every failure mode degrades to a diagnostic sentinel instead of
// propagating.
type Result struct {
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Client calls the external scoring service: it ships a bounded,
// token-budgeted event payload to a chat-completions endpoint in strict JSON
// mode and defensively parses whatever comes back. Stateless; every call is
// one bounded-retry round trip.
type Client struct {
	apiKey         string
	model          string
	systemPrompt   string
	analysisPrompt string
	baseURL        string
	httpClient     *http.Client
	retry          retry.Policy
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a scoring client. Empty model falls back to
// DefaultModel; prompts fall back to built-in instructions.
func NewClient(apiKey, model, systemPrompt, analysisPrompt string) *Client {
	if model == "" {
		model = DefaultModel
	}
	if systemPrompt == "" {
		systemPrompt = "You are an expert security monitoring system. Respond EXCLUSIVELY with " +
			`valid JSON containing keys {"score": float between 0 and 1, "text": string}. ` +
			"Do not include anything outside the JSON object."
	}
	if analysisPrompt == "" {
		analysisPrompt = `Analyze the events and return JSON {"score":float,"text":string}.`
	}
	return &Client{
		apiKey:         apiKey,
		model:          model,
		systemPrompt:   systemPrompt,
		analysisPrompt: analysisPrompt,
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		retry:          retry.Default(),
	}
}

// SetBaseURL overrides the scoring service base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

// SetRetryPolicy overrides the backoff policy. Used in tests.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.retry = p }

// Analyze scores a batch of event-like records (raw events or similarity
// groups). An optional focus question is appended to the instruction prompt
// and passed alongside the events; an optional model override switches the
// event cap. Analyze never fails: transport, status and parse problems all
// come back as a sentinel Result with score 0 and a diagnostic text.
func (c *Client) Analyze(ctx context.Context, evts []map[string]interface{}, question, model string) Result {
	if model == "" {
		model = c.model
	}

	limit := maxEvents
	if strings.Contains(strings.ToLower(model), "mini") {
		limit = maxEventsMini
	}
	if len(evts) > limit {
		log.Warn().
			Int("events", len(evts)).
			Int("limit", limit).
			Str("model", model).
			Msg("Truncating event list to respect payload budget")
		evts = evts[:limit]
	}

	payload := map[string]interface{}{
		"events": optimizeEvents(evts),
	}
	prompt := c.analysisPrompt
	if question != "" {
		prompt += "\n\nUSER QUESTION/FOCUS: " + question +
			"\nPlease answer the user's question specifically based on the events provided."
		payload["user_context"] = question
	}
	payload["prompt"] = prompt

	userContent, err := json.Marshal(payload)
	if err != nil {
		return Result{Score: 0.0, Text: fmt.Sprintf("Error during analysis: %v", err)}
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: string(userContent)},
		},
		Temperature: 0.2,
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{Score: 0.0, Text: fmt.Sprintf("Error during analysis: %v", err)}
	}

	log.Info().
		Int("events", len(evts)).
		Str("model", model).
		Bool("has_question", question != "").
		Msg("Requesting risk analysis")

	resp, err := c.retry.Do(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return c.httpClient.Do(req)
	})
	if err != nil {
		log.Error().Err(err).Msg("Scoring service call failed")
		return Result{Score: 0.0, Text: fmt.Sprintf("Error during analysis: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Score: 0.0, Text: fmt.Sprintf("Error during analysis: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(respBody), 200)).
			Msg("Scoring service returned an error")
		return Result{
			Score: 0.0,
			Text:  fmt.Sprintf("API Error %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil || len(chat.Choices) == 0 {
		return Result{Score: 0.0, Text: "Error during analysis: unexpected response shape"}
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	log.Debug().Str("content", content).Msg("Raw scoring response")

	parsed, ok := parseJSONContent(content)
	if !ok {
		return Result{Score: 0.0, Text: "Error during analysis: unparsable model output"}
	}

	return ExtractResult(parsed)
}

// optimizeEvents truncates every long string field of every event to bound
// payload size. Events are copied; callers keep their originals.
func optimizeEvents(evts []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(evts))
	for _, ev := range evts {
		clean := make(map[string]interface{}, len(ev))
		for k, v := range ev {
			if s, isStr := v.(string); isStr {
				clean[k] = truncate(s, maxFieldLen)
			} else {
				clean[k] = v
			}
		}
		out = append(out, clean)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// jsonObjectRe grabs the outermost {...} span of a free-form reply: first
// opening brace to last closing brace.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseJSONContent parses model output as JSON with a fence-stripping and
// regex-extraction fallback for replies that wrap the object in prose or
// markdown.
func parseJSONContent(content string) (map[string]interface{}, bool) {
	if strings.HasPrefix(content, "```") {
		content = strings.Trim(content, "`")
		content = strings.TrimPrefix(content, "json")
		content = strings.TrimSpace(content)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return parsed, true
	}

	if m := jsonObjectRe.FindString(content); m != "" {
		if err := json.Unmarshal([]byte(m), &parsed); err == nil {
			return parsed, true
		}
	}
	return nil, false
}
