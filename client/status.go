// Package client holds what the backend clients share: response status
// mapping and request pacing.
package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"inlinecomplete/types"
)

// maxErrorBody bounds how much of a failed response body is kept
const maxErrorBody = 4096

// CheckResponse maps a non-2xx response to a typed error. 429 becomes a
// *types.RateLimitError carrying the Retry-After, X-RateLimit-Limit and
// X-Is-Upgrade-Available headers; every other failure is a
// *types.NetworkError. The body is consumed on failure.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &types.RateLimitError{
			Message:    errorMessage(msg),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if limit, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit")); err == nil {
			rl.Limit = limit
		}
		rl.UpgradeIsAvailable = resp.Header.Get("X-Is-Upgrade-Available") == "true"
		return rl
	}

	return &types.NetworkError{Status: resp.StatusCode, Body: msg}
}

// errorMessage extracts {"error": "..."} or {"error": {"message": "..."}}
// from a JSON body, falling back to the raw text.
func errorMessage(body string) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal([]byte(body), &payload) != nil || len(payload.Error) == 0 {
		return body
	}
	var s string
	if json.Unmarshal(payload.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload.Error, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return body
}

// parseRetryAfter accepts delay seconds or an HTTP date
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// NewLimiter returns a limiter pacing requests to rps per second, or nil
// when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// Wait blocks until l allows one more request. A nil limiter never waits.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
