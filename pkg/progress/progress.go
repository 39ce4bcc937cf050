// Package progress carries progress events from background runs to an observer.
//
// A run reports Events to a Sink. A Reporter sits in front of the sink and
// coalesces tick events so a fast scan does not flood the observer. A
// Dispatcher decides on which goroutine the sink runs: Inline calls it
// directly, Queue hands it to the goroutine that drains the queue (the CLI's
// main goroutine).
package progress

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Phase is the stage of a run an Event belongs to.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseScanning   Phase = "scanning"
	PhaseWriting    Phase = "writing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further events follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Event is a read-only progress snapshot.
type Event struct {
	RunID   string
	Phase   Phase
	Counter int
	// Total is 0 when unknown.
	Total   int
	Message string
	Time    time.Time
}

// User-facing messages.
const (
	MessageProcessing = "Processing..."
	MessageNoRecords  = "No records were chosen to export."
)

// ScanningMessage renders the scan tick message.
func ScanningMessage(n int) string {
	return fmt.Sprintf("Scanning Account(s): %d", n)
}

// WritingMessage renders the export tick message.
func WritingMessage(n, total int) string {
	return fmt.Sprintf("Writing Record: %d/%d", n, total)
}

// CompletedMessage renders the final message of an export.
func CompletedMessage(path string) string {
	return "Completed. Exported file located at " + path
}

// Sink receives progress events.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Report implements Sink.
func (f SinkFunc) Report(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// LogSink writes events to a zerolog logger. Ticks log at debug level.
type LogSink struct {
	Logger zerolog.Logger
}

// Report implements Sink.
func (s LogSink) Report(e Event) {
	var ev *zerolog.Event
	switch e.Phase {
	case PhaseFailed:
		ev = s.Logger.Error()
	case PhaseCompleted:
		ev = s.Logger.Info()
	default:
		ev = s.Logger.Debug()
	}
	ev.Str("run_id", e.RunID).
		Str("phase", string(e.Phase)).
		Int("counter", e.Counter)
	if e.Total > 0 {
		ev.Int("total", e.Total)
	}
	ev.Msg(e.Message)
}

// ChannelSink sends events on a channel. Ticks are dropped when the channel
// is full; terminal events block until delivered.
type ChannelSink chan Event

// Report implements Sink.
func (c ChannelSink) Report(e Event) {
	if e.Phase.Terminal() {
		c <- e
		return
	}
	select {
	case c <- e:
	default:
	}
}

// Multi fans every event out to all sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Report(e)
		}
	})
}
