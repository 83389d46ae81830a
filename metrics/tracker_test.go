package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	tr.Record(OutcomeCompleted, 100*time.Millisecond)
	tr.Record(OutcomeCompleted, 300*time.Millisecond)
	tr.Record(OutcomeRateLimited, 200*time.Millisecond)

	s := tr.Stats()
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(2), s.Outcomes["completed"])
	assert.Equal(t, int64(1), s.Outcomes["rate_limited"])
	assert.Equal(t, int64(200), s.AvgLatencyMs)
}

func TestShownAcceptedDisposed(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	start := time.Now().Add(-time.Second)
	tr.TrackShown(&CompletionMetrics{ID: "a", Items: 2, ShownAt: start})
	tr.TrackShown(&CompletionMetrics{ID: "b", Items: 1, ShownAt: start})
	tr.TrackShown(&CompletionMetrics{ID: "c", Items: 1})

	tr.TrackAccepted("a")
	tr.TrackAccepted("a") // already closed
	tr.TrackDisposed("b")
	tr.TrackDisposed("unknown")

	s := tr.Stats()
	assert.Equal(t, int64(3), s.Shown)
	assert.Equal(t, int64(1), s.Accepted)
	assert.Equal(t, int64(1), s.Disposed)
	assert.GreaterOrEqual(t, s.AvgLifespanMs, int64(1000))
	assert.InDelta(t, 1.0/3, s.AcceptRate(), 0.001)
}

func TestStats_Empty(t *testing.T) {
	tr := NewTracker()
	tr.Close()
	tr.Close()

	s := tr.Stats()
	assert.Zero(t, s.Requests)
	assert.Zero(t, s.AvgLatencyMs)
	assert.Zero(t, s.AcceptRate())
}
