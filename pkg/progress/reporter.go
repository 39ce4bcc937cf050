package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls tick coalescing. A tick is delivered when Every ticks have
// passed or Interval has elapsed since the last delivered one. The zero
// Config delivers every tick.
type Config struct {
	Every    int
	Interval time.Duration
}

// DefaultConfig delivers every tick.
func DefaultConfig() Config {
	return Config{}
}

// Reporter stamps events with a run ID and coalesces ticks before they reach
// the sink. Terminal events are always delivered, preceded by the last
// coalesced tick if it was dropped.
type Reporter struct {
	sink  Sink
	runID string
	now   func() time.Time

	// nil delivers every tick
	sometimes *rate.Sometimes

	mu      sync.Mutex
	pending *Event
}

// NewReporter creates a reporter for one run. A nil sink discards events.
func NewReporter(sink Sink, runID string, cfg Config) *Reporter {
	if sink == nil {
		sink = Discard
	}
	r := &Reporter{
		sink:  sink,
		runID: runID,
		now:   time.Now,
	}
	if cfg.Every > 0 || cfg.Interval > 0 {
		r.sometimes = &rate.Sometimes{Every: cfg.Every, Interval: cfg.Interval}
	}
	return r
}

// RunID returns the run the reporter stamps on events.
func (r *Reporter) RunID() string {
	return r.runID
}

// Tick reports a non-terminal event, subject to coalescing.
func (r *Reporter) Tick(phase Phase, counter, total int, message string) {
	e := r.event(phase, counter, total, message)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sometimes == nil {
		r.sink.Report(e)
		return
	}

	delivered := false
	r.sometimes.Do(func() {
		delivered = true
		r.sink.Report(e)
	})
	if delivered {
		r.pending = nil
	} else {
		r.pending = &e
	}
}

// Finish reports a terminal event. It is never coalesced.
func (r *Reporter) Finish(phase Phase, counter, total int, message string) {
	e := r.event(phase, counter, total, message)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		r.sink.Report(*r.pending)
		r.pending = nil
	}
	r.sink.Report(e)
}

func (r *Reporter) event(phase Phase, counter, total int, message string) Event {
	return Event{
		RunID:   r.runID,
		Phase:   phase,
		Counter: counter,
		Total:   total,
		Message: message,
		Time:    r.now(),
	}
}
