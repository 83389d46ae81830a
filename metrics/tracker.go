// Package metrics counts completion outcomes and the editor's reactions to
// the suggestions it showed. Nothing leaves the process: the counters are
// logged and served to the editor on request.
package metrics

import (
	"sync"
	"time"

	"inlinecomplete/logger"

	"github.com/jellydator/ttlcache/v3"
)

const (
	EventShown    = "shown"
	EventAccepted = "accepted"
	EventDisposed = "disposed"
)

// Outcome classifies how a completion request ended
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeEmpty       Outcome = "empty"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
)

// shownTTL bounds how long a suggestion waits for an accept or dispose event
const shownTTL = 10 * time.Minute

// Stats is a snapshot of the counters
type Stats struct {
	Requests      int64            `msgpack:"requests" json:"requests"`
	Outcomes      map[string]int64 `msgpack:"outcomes" json:"outcomes"`
	AvgLatencyMs  int64            `msgpack:"avg_latency_ms" json:"avg_latency_ms"`
	Shown         int64            `msgpack:"shown" json:"shown"`
	Accepted      int64            `msgpack:"accepted" json:"accepted"`
	Disposed      int64            `msgpack:"disposed" json:"disposed"`
	AvgLifespanMs int64            `msgpack:"avg_lifespan_ms" json:"avg_lifespan_ms"`
}

// AcceptRate is the share of shown suggestions the user accepted
func (s Stats) AcceptRate() float64 {
	if s.Shown == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Shown)
}

type CompletionMetrics struct {
	ID      string
	Items   int
	ShownAt time.Time
}

type Tracker struct {
	mu           sync.Mutex
	outcomes     map[Outcome]int64
	requests     int64
	totalLatency time.Duration
	shownCount   int64
	accepted     int64
	disposed     int64
	totalLife    time.Duration

	shown *ttlcache.Cache[string, *CompletionMetrics]
	once  sync.Once
}

func NewTracker() *Tracker {
	t := &Tracker{
		outcomes: make(map[Outcome]int64),
		shown: ttlcache.New(
			ttlcache.WithTTL[string, *CompletionMetrics](shownTTL),
			ttlcache.WithDisableTouchOnHit[string, *CompletionMetrics](),
		),
	}
	go t.shown.Start()
	return t
}

// Record counts one finished request
func (t *Tracker) Record(outcome Outcome, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	t.outcomes[outcome]++
	t.totalLatency += latency
}

// TrackShown remembers a suggestion the editor displayed
func (t *Tracker) TrackShown(m *CompletionMetrics) {
	if m.ShownAt.IsZero() {
		m.ShownAt = time.Now()
	}
	t.shown.Set(m.ID, m, ttlcache.DefaultTTL)

	t.mu.Lock()
	t.shownCount++
	t.mu.Unlock()
	logger.Debug("metrics: %s (id=%s, items=%d)", EventShown, m.ID, m.Items)
}

// TrackAccepted closes a shown suggestion as accepted. Unknown IDs are ignored.
func (t *Tracker) TrackAccepted(id string) {
	t.finish(id, EventAccepted)
}

// TrackDisposed closes a shown suggestion as dismissed. Unknown IDs are ignored.
func (t *Tracker) TrackDisposed(id string) {
	t.finish(id, EventDisposed)
}

func (t *Tracker) finish(id, event string) {
	item, found := t.shown.GetAndDelete(id)
	if !found {
		logger.Debug("metrics: %s for unknown id %s", event, id)
		return
	}
	lifespan := time.Since(item.Value().ShownAt)

	t.mu.Lock()
	if event == EventAccepted {
		t.accepted++
	} else {
		t.disposed++
	}
	t.totalLife += lifespan
	t.mu.Unlock()
	logger.Debug("metrics: %s (id=%s, lifespan=%s)", event, id, lifespan)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Requests: t.requests,
		Outcomes: make(map[string]int64, len(t.outcomes)),
		Shown:    t.shownCount,
		Accepted: t.accepted,
		Disposed: t.disposed,
	}
	for o, n := range t.outcomes {
		s.Outcomes[string(o)] = n
	}
	if t.requests > 0 {
		s.AvgLatencyMs = (t.totalLatency / time.Duration(t.requests)).Milliseconds()
	}
	if closed := t.accepted + t.disposed; closed > 0 {
		s.AvgLifespanMs = (t.totalLife / time.Duration(closed)).Milliseconds()
	}
	return s
}

// Close stops the expiry loop of shown suggestions
func (t *Tracker) Close() {
	t.once.Do(t.shown.Stop)
}
