package census

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryTransport retries idempotent requests that fail at the network level
// or come back 429/5xx. It sits below Client; Fetch itself never retries.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxTries   uint
	MaxElapsed time.Duration
}

// NewRetryTransport wraps base (http.DefaultTransport if nil).
func NewRetryTransport(base http.RoundTripper, maxTries uint) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{Base: base, MaxTries: maxTries, MaxElapsed: time.Minute}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.MaxTries <= 1 || (req.Method != http.MethodGet && req.Method != http.MethodHead) {
		return t.Base.RoundTrip(req)
	}

	op := func() (*http.Response, error) {
		resp, err := t.Base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("retryable status %d", resp.StatusCode)
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond

	return backoff.Retry(req.Context(), op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.MaxTries),
		backoff.WithMaxElapsedTime(t.MaxElapsed),
	)
}
