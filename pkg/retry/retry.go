package retry

import (
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// retriableStatus are the response codes worth retrying: rate limiting and
// transient upstream failures.
var retriableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Policy is the shared retry/backoff policy for outbound calls (scoring
// service, Telegram, TTS). Delay for attempt n is BaseDelay*2^(n-1), doubled
// again for a 429, capped at MaxDelay, then multiplied by a uniform jitter in
// [0.5,1.5) so synchronized callers spread out.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Test seams. Nil means time.Sleep and math/rand.
	sleep func(time.Duration)
	randf func() float64
}

// Default returns the policy used across the pipeline: 3 attempts total,
// 1s base delay, 30s cap.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Do runs fn until it produces a non-retriable outcome or attempts are
// exhausted, sleeping between attempts. A response with a non-retriable
// status (including 4xx other than 429) is returned immediately with zero
// retries; transport errors are retried only when they are timeouts. On
// exhaustion the last response or error is handed back to the caller.
//
// The backoff sleep intentionally blocks: there is no mid-retry
// cancellation, callers abandon only after the bounded attempts complete.
func (p Policy) Do(fn func() (*http.Response, error)) (*http.Response, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempt := 0
	for {
		resp, err := fn()
		attempt++

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		retriable := false
		switch {
		case err != nil:
			retriable = isTimeout(err)
		case retriableStatus[status]:
			retriable = true
		}

		if !retriable || attempt >= p.MaxAttempts {
			return resp, err
		}

		// The retried response is dead weight; release the connection.
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		delay := p.delay(attempt, status)
		log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Int("status", status).
			Dur("delay", delay).
			Msg("Retrying request after backoff")
		p.doSleep(delay)
	}
}

func (p Policy) delay(attempt, status int) time.Duration {
	d := p.BaseDelay * (1 << (attempt - 1))
	if status == http.StatusTooManyRequests {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := 0.5 + p.randFloat()
	return time.Duration(float64(d) * jitter)
}

func (p Policy) doSleep(d time.Duration) {
	if p.sleep != nil {
		p.sleep(d)
		return
	}
	time.Sleep(d)
}

func (p Policy) randFloat() float64 {
	if p.randf != nil {
		return p.randf()
	}
	return rand.Float64()
}

// isTimeout reports whether a transport error is a timeout worth retrying.
// Anything else (DNS failure, refused connection, bad URL) fails fast.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
