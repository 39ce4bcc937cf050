package aggregate

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Sternrassler/teamadmin/pkg/progress"
)

// Run is a handle on an aggregation started with Start.
type Run[T any] struct {
	// ID is stamped on every progress event of the run.
	ID string

	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	result *Result[T]
	err    error
}

// Start runs the aggregation on a new goroutine. Progress events and the final
// done callback are posted to d (nil runs them inline on the worker). done may
// be nil. Cancelling ctx or calling Cancel fails the run.
func (a *Aggregator[T]) Start(ctx context.Context, sink progress.Sink, d progress.Dispatcher, done func(*Result[T], error)) *Run[T] {
	if d == nil {
		d = progress.Inline
	}
	if sink == nil {
		sink = progress.Discard
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run[T]{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		defer cancel()

		res, err := a.run(runCtx, r.ID, progress.Posted(sink, d), func(s State) {
			r.state.Store(int32(s))
		})
		r.result, r.err = res, err

		if done != nil {
			d.Post(func() { done(res, err) })
		}
	}()

	return r
}

// Wait blocks until the run has finished and returns its outcome.
func (r *Run[T]) Wait() (*Result[T], error) {
	<-r.done
	return r.result, r.err
}

// Cancel stops the run at the next page or enrichment boundary.
func (r *Run[T]) Cancel() {
	r.cancel()
}

// Done is closed once the run has finished and done has been posted.
func (r *Run[T]) Done() <-chan struct{} {
	return r.done
}

// State returns the current state of the run.
func (r *Run[T]) State() State {
	return State(r.state.Load())
}
