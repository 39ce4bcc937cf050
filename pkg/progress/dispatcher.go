package progress

import (
	"context"
)

// Dispatcher runs callbacks on the caller's execution context.
type Dispatcher interface {
	Post(func())
}

// Inline runs callbacks on the posting goroutine.
var Inline Dispatcher = inline{}

type inline struct{}

func (inline) Post(fn func()) { fn() }

// Queue is a bounded callback queue drained by one consumer goroutine.
// Post blocks while the queue is full.
type Queue struct {
	ch chan func()
}

// NewQueue creates a queue holding up to size pending callbacks.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan func(), size)}
}

// Post implements Dispatcher.
func (q *Queue) Post(fn func()) {
	q.ch <- fn
}

// Drain runs posted callbacks on the calling goroutine until done is closed
// and the queue is empty, or ctx is cancelled.
func (q *Queue) Drain(ctx context.Context, done <-chan struct{}) error {
	for {
		select {
		case fn := <-q.ch:
			fn()
		case <-done:
			for {
				select {
				case fn := <-q.ch:
					fn()
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Posted wraps sink so every Report is delivered through d.
func Posted(sink Sink, d Dispatcher) Sink {
	if d == nil {
		return sink
	}
	return SinkFunc(func(e Event) {
		d.Post(func() { sink.Report(e) })
	})
}
