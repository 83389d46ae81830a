package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/sjson"

	"inlinecomplete/logger"
	"inlinecomplete/types"
)

// State records request parameters a backend has rejected. It belongs to a
// single provider instance and is shared by that instance's branches.
type State struct {
	mu                   sync.Mutex
	disableStopSequences bool
}

// NewState returns a state with every parameter enabled
func NewState() *State {
	return &State{}
}

// StopSequencesDisabled reports whether requests are sent without "stop"
func (s *State) StopSequencesDisabled() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disableStopSequences
}

// DisableStopSequences drops "stop" from every later request
func (s *State) DisableStopSequences() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disableStopSequences = true
}

// Apply removes disabled parameters from an encoded request
func (s *State) Apply(payload []byte) []byte {
	if !s.StopSequencesDisabled() {
		return payload
	}
	out, err := sjson.DeleteBytes(payload, "stop")
	if err != nil {
		logger.Warn("failed to drop stop sequences from request: %v", err)
		return payload
	}
	return out
}

// ErrorObserver inspects an error a branch produced. It may update provider
// state, and reports whether the error is benign and fully handled.
type ErrorObserver func(err error) (handled bool)

// Observe runs err through observers. It returns nil only when an observer
// handled the error; rate-limit errors are always returned.
func Observe(err error, observers ...ErrorObserver) error {
	if err == nil {
		return nil
	}
	handled := false
	for _, observe := range observers {
		if observe(err) {
			handled = true
		}
	}
	if handled && !types.IsRateLimit(err) {
		return nil
	}
	return err
}

// StopSequenceObserver disables stop sequences on s once the backend
// rejects them with a 400. The error itself is not handled: the failing
// request still fails, later ones are sent without "stop".
func StopSequenceObserver(s *State) ErrorObserver {
	return func(err error) bool {
		var netErr *types.NetworkError
		if errors.As(err, &netErr) && netErr.Status == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(netErr.Body), "stop") {
			if !s.StopSequencesDisabled() {
				logger.Info("backend rejected stop sequences, disabling them: %s", netErr.Body)
			}
			s.DisableStopSequences()
		}
		return false
	}
}

// CancellationObserver handles a request aborted before the backend
// answered. Cancellation is not a failure, the branch just ends empty.
func CancellationObserver(err error) bool {
	return errors.Is(err, context.Canceled)
}
