package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	svcerrors "github.com/lucid-vigil/omnistatus/pkg/errors"
	"github.com/lucid-vigil/omnistatus/pkg/retry"
)

const (
	speechEndpoint     = "https://api.openai.com/v1/audio/speech"
	DefaultSpeechModel = "gpt-4o-mini-tts"
	DefaultSpeechVoice = "nova"
)

// Speech renders a spoken rendition of an alert to an mp3 file so a local
// player can pick it up. It shares the analyzer's API key and the common
// retry policy but keeps its own, longer, HTTP timeout since audio
// generation is slow.
type Speech struct {
	apiKey     string
	model      string
	voice      string
	outputPath string
	endpoint   string
	httpClient *http.Client
	retry      retry.Policy
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

func NewSpeech(apiKey, model, voice, outputPath string) *Speech {
	if model == "" {
		model = DefaultSpeechModel
	}
	if voice == "" {
		voice = DefaultSpeechVoice
	}
	return &Speech{
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		outputPath: outputPath,
		endpoint:   speechEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      retry.Default(),
	}
}

// SetEndpoint overrides the speech API endpoint. Used in tests.
func (s *Speech) SetEndpoint(url string) { s.endpoint = url }

// SetRetryPolicy overrides the backoff policy. Used in tests.
func (s *Speech) SetRetryPolicy(p retry.Policy) { s.retry = p }

// Render synthesizes message and writes the audio to the configured path,
// replacing any previous rendition.
func (s *Speech) Render(ctx context.Context, message string) error {
	body, err := json.Marshal(speechRequest{
		Model: s.model,
		Voice: s.voice,
		Input: message,
	})
	if err != nil {
		return svcerrors.NewParseError("notify", "speech request", err)
	}

	resp, err := s.retry.Do(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			s.endpoint, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return s.httpClient.Do(req)
	})
	if err != nil {
		return svcerrors.NewExternalError("notify", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		e := svcerrors.NewExternalError("notify", resp.StatusCode, nil)
		e.Details["body"] = string(raw)
		return e
	}

	out, err := os.Create(s.outputPath)
	if err != nil {
		return svcerrors.NewStorageError("notify", "create audio file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return svcerrors.NewStorageError("notify", "write audio file", err)
	}

	log.Info().Str("path", s.outputPath).Msg("alert audio rendered")
	return nil
}
