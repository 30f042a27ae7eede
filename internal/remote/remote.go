// Package remote holds what the provider clients share: how a resty client is
// configured and how a failed call is classified.
//
// The classification matters more than it looks. The cache layer serves a
// stale snapshot only for connectivity failures, so every client must report
// "the provider could not be reached" as apperror.ErrUnavailable and anything
// else (bad key, bad payload) as a plain error.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sakif/garden-companion/internal/apperror"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 10 * time.Second

// NewClient returns a resty client for baseURL. Retries stay off: a failed
// call is reported once and the caller decides what to do.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)
}

// Check turns the outcome of a resty call into an error, or nil when the
// response is a 2xx.
//
//   - transport failures (dial, DNS, timeout, reset) → apperror.Unavailable
//   - 5xx and 429 → apperror.Unavailable
//   - any other non-2xx → plain error carrying the status and body
//
// A cancelled caller context is returned as is; it says nothing about the
// provider.
func Check(service string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperror.Unavailable(service, err)
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500 || code == http.StatusTooManyRequests:
		return apperror.Unavailable(service, fmt.Errorf("status %d", code))
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", service, code, truncate(resp.String(), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
