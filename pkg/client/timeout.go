package client

import (
	"context"
	"io"
	"time"
)

type callBudgetKey struct{}

type callBudget struct {
	parent  context.Context
	timeout time.Duration
}

// WithCallTimeout returns ctx bounded by timeout. A Client handed the returned
// context applies timeout to each HTTP attempt instead: rate limit cooldowns
// and retry backoff run under the parent context and do not use it up.
// timeout <= 0 only adds cancellation.
func WithCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	budgeted := context.WithValue(ctx, callBudgetKey{}, callBudget{parent: ctx, timeout: timeout})
	return context.WithTimeout(budgeted, timeout)
}

// splitCallTimeout returns the context to wait under between attempts and the
// per-attempt timeout set by WithCallTimeout, or ctx and 0.
func splitCallTimeout(ctx context.Context) (context.Context, time.Duration) {
	if b, ok := ctx.Value(callBudgetKey{}).(callBudget); ok {
		return b.parent, b.timeout
	}
	return ctx, 0
}

// cancelOnClose releases an attempt context once the response body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
