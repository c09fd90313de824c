package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	svcerrors "github.com/lucid-vigil/omnistatus/pkg/errors"
	"github.com/lucid-vigil/omnistatus/pkg/retry"
)

const telegramBaseURL = "https://api.telegram.org"

// Telegram delivers plain-text alerts to a chat through the Bot API.
// Delivery is fire-and-forget with the shared retry policy: a failure is
// reported to the caller for logging but must never be fatal to the alert
// path that triggered it.
type Telegram struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
}

// NewTelegram creates a Telegram notifier. Credential validation happens in
// config; the notifier assumes it is only constructed when enabled.
func NewTelegram(botToken, chatID string) *Telegram {
	p := retry.Default()
	p.MaxDelay = 15 * time.Second
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		baseURL:    telegramBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      p,
	}
}

// SetBaseURL overrides the Bot API base URL. Used in tests.
func (t *Telegram) SetBaseURL(url string) { t.baseURL = url }

// SetRetryPolicy overrides the backoff policy. Used in tests.
func (t *Telegram) SetRetryPolicy(p retry.Policy) { t.retry = p }

// Send posts one message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	resp, err := t.retry.Do(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			endpoint, strings.NewReader(form.Encode()))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return t.httpClient.Do(req)
	})
	if err != nil {
		return svcerrors.NewExternalError("notify", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e := svcerrors.NewExternalError("notify", resp.StatusCode, nil)
		e.Details["body"] = string(body)
		return e
	}

	log.Info().Str("chat_id", t.chatID).Msg("Telegram alert sent")
	return nil
}
