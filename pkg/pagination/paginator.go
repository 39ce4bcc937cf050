package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/teamadmin/pkg/client"
)

// Config holds paginator configuration
type Config struct {
	// Timeout per page fetch, 0 disables it. Requests through a client.Client
	// are bounded per attempt, so rate limit cooldowns do not count.
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration for the team API
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Page is one fetch result. Cursor is only meaningful when HasMore is true.
type Page[T any] struct {
	Items   []T
	Cursor  string
	HasMore bool
}

// Source is implemented by every cursor-paginated listing.
type Source[T any] interface {
	// FetchFirst issues the initial list call.
	FetchFirst(ctx context.Context) (*Page[T], error)
	// FetchNext issues the continuation call for cursor.
	FetchNext(ctx context.Context, cursor string) (*Page[T], error)
}

// Funcs adapts a pair of functions to Source.
type Funcs[T any] struct {
	First func(ctx context.Context) (*Page[T], error)
	Next  func(ctx context.Context, cursor string) (*Page[T], error)
}

// FetchFirst implements Source.
func (f Funcs[T]) FetchFirst(ctx context.Context) (*Page[T], error) {
	return f.First(ctx)
}

// FetchNext implements Source.
func (f Funcs[T]) FetchNext(ctx context.Context, cursor string) (*Page[T], error) {
	return f.Next(ctx, cursor)
}

// FetchError reports a failed page fetch.
type FetchError struct {
	// Page is the 1-based index of the page that failed.
	Page   int
	Cursor string
	// StatusCode is the provider status, 0 when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d failed (status %d): %s", e.Page, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetch page %d failed: %s", e.Page, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(page int, cursor string, err error) *FetchError {
	fe := &FetchError{Page: page, Cursor: cursor, Message: err.Error(), Err: err}

	var status interface{ Status() int }
	if errors.As(err, &status) {
		fe.StatusCode = status.Status()
	}
	var detail interface{ Detail() string }
	if errors.As(err, &detail) && detail.Detail() != "" {
		fe.Message = detail.Detail()
	}
	return fe
}

// Paginator yields the pages of a Source in cursor order.
// It is not safe for concurrent use.
type Paginator[T any] struct {
	source Source[T]
	config Config

	started bool
	done    bool
	cursor  string
	pages   int
}

// New creates a paginator over source.
func New[T any](source Source[T], config Config) *Paginator[T] {
	return &Paginator[T]{
		source: source,
		config: config,
	}
}

// Next fetches the next page. ok is false once the last page has been returned.
// A failed fetch leaves the paginator unchanged, so Next can be retried.
func (p *Paginator[T]) Next(ctx context.Context) (page *Page[T], ok bool, err error) {
	if p.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	callCtx, cancel := client.WithCallTimeout(ctx, p.config.Timeout)
	defer cancel()

	if !p.started {
		page, err = p.source.FetchFirst(callCtx)
	} else {
		page, err = p.source.FetchNext(callCtx, p.cursor)
	}
	if err != nil {
		return nil, false, newFetchError(p.pages+1, p.cursor, err)
	}
	if page == nil {
		return nil, false, newFetchError(p.pages+1, p.cursor, client.NewParseError("", "empty page", nil))
	}
	if page.HasMore && page.Cursor == "" {
		return nil, false, newFetchError(p.pages+1, p.cursor, client.NewParseError("", "has_more set without a cursor", nil))
	}

	p.started = true
	p.pages++
	if page.HasMore {
		p.cursor = page.Cursor
	} else {
		p.cursor = ""
		p.done = true
	}
	return page, true, nil
}

// Pages returns the number of pages fetched so far.
func (p *Paginator[T]) Pages() int {
	return p.pages
}

// Cursor returns the cursor the next continuation call will use.
func (p *Paginator[T]) Cursor() string {
	return p.cursor
}

// Done reports whether the last page has been returned.
func (p *Paginator[T]) Done() bool {
	return p.done
}
