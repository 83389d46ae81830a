package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrSkipCompletion is returned when a request should produce no completion
// without being treated as a failure.
var ErrSkipCompletion = errors.New("skip completion")

// ProtocolError reports a malformed or failed stream: a bad frame, a missing
// body, a payload that is not JSON, or an explicit `event: error` frame.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Err)
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NetworkError reports a non-success HTTP status
type NetworkError struct {
	Status int
	Body   string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}

// RateLimitError reports an explicit rate-limit answer from a backend. It is
// never swallowed by error observers.
type RateLimitError struct {
	Message            string
	RetryAfter         time.Duration
	Limit              int
	UpgradeIsAvailable bool
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// TimeoutError reports that a branch produced no value within its first-value bound
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no completion received within %s", e.After)
}

// IsRateLimit reports whether err wraps a *RateLimitError
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
