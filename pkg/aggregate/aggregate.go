// Package aggregate drives a cursor-paginated source to completion, filtering
// and enriching items and reporting progress along the way.
//
// An aggregation run walks the pages of a pagination.Source in order. Every
// scanned item is offered to the filter; survivors are passed to the enricher
// (a second per-item call) and appended to the result. One progress tick is
// emitted per scanned item. An enrichment failure drops that item and is
// recorded as a SoftItemError; any page fetch failure fails the whole run and
// discards what was collected.
//
// Run blocks the caller. Start runs the same aggregation on its own goroutine
// and delivers progress and the outcome through a progress.Dispatcher.
package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
	"github.com/Sternrassler/teamadmin/pkg/progress"
)

// Prometheus metrics for aggregation runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamadmin_aggregation_runs_total",
		Help: "Total aggregation runs by name and outcome",
	}, []string{"name", "outcome"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamadmin_aggregation_items_total",
		Help: "Total items collected by aggregation runs",
	}, []string{"name"})

	softErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamadmin_aggregation_soft_errors_total",
		Help: "Total items dropped because enrichment failed",
	}, []string{"name"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teamadmin_aggregation_duration_seconds",
		Help:    "Aggregation run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"name"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teamadmin_aggregation_active_runs",
		Help: "Aggregation runs currently in progress",
	})
)

// MessageCompleted is the message of the terminal event of a successful run.
const MessageCompleted = "Completed."

// State is the lifecycle state of an aggregation run.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateEnriching
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateEnriching:
		return "enriching"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Filter reports whether an item is kept.
type Filter[T any] func(item T) bool

// Enricher fills in additional fields of an item with a secondary fetch.
type Enricher[T any] func(ctx context.Context, item T) (T, error)

// Keyed items name themselves in SoftItemErrors.
type Keyed interface {
	Key() string
}

// Config holds aggregator configuration.
type Config struct {
	// Name labels logs and metrics (e.g. "members", "paper_docs").
	Name string

	// Concurrency is the number of parallel enrichment calls within a page.
	// Values <= 1 enrich sequentially.
	Concurrency int

	// CallTimeout bounds every page fetch and every enrichment call. Requests
	// through a client.Client are bounded per attempt, excluding rate limit
	// cooldowns. 0 disables it.
	CallTimeout time.Duration

	// Progress controls tick coalescing.
	Progress progress.Config

	// TickMessage renders the message of the n-th scan tick.
	TickMessage func(n int) string
}

// DefaultConfig returns a sequential configuration with a 30s call timeout.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Concurrency: 1,
		CallTimeout: 30 * time.Second,
		TickMessage: progress.ScanningMessage,
	}
}

// SoftItemError records an item dropped because its enrichment failed.
type SoftItemError struct {
	// Index is the 0-based scan position of the item.
	Index int
	Key   string
	Err   error
}

func (e *SoftItemError) Error() string {
	return fmt.Sprintf("enrich item %d (%s): %v", e.Index, e.Key, e.Err)
}

func (e *SoftItemError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a completed run.
type Result[T any] struct {
	RunID string
	// Items in fetch order.
	Items []T
	Pages int
	// Scanned counts every item fetched, kept or not.
	Scanned    int
	Filtered   int
	SoftErrors []*SoftItemError
	Duration   time.Duration
}

// Aggregator folds the pages of a source into a Result.
// Filter and enricher must be set before the first run.
type Aggregator[T any] struct {
	source pagination.Source[T]
	config Config
	filter Filter[T]
	enrich Enricher[T]
	logger zerolog.Logger

	state atomic.Int32
}

// New creates an aggregator over source.
func New[T any](source pagination.Source[T], config Config) *Aggregator[T] {
	if config.Name == "" {
		config.Name = "items"
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.TickMessage == nil {
		config.TickMessage = progress.ScanningMessage
	}

	return &Aggregator[T]{
		source: source,
		config: config,
		logger: logging.NewLogger(logging.ComponentAggregate).With().Str("aggregation", config.Name).Logger(),
	}
}

// WithFilter sets the item filter.
func (a *Aggregator[T]) WithFilter(f Filter[T]) *Aggregator[T] {
	a.filter = f
	return a
}

// WithEnricher sets the item enricher.
func (a *Aggregator[T]) WithEnricher(e Enricher[T]) *Aggregator[T] {
	a.enrich = e
	return a
}

// State returns the state of the most recent run.
func (a *Aggregator[T]) State() State {
	return State(a.state.Load())
}

// Run performs one aggregation on the calling goroutine and reports progress
// to sink (nil discards). A failed run returns a nil Result.
func (a *Aggregator[T]) Run(ctx context.Context, sink progress.Sink) (*Result[T], error) {
	return a.run(ctx, uuid.NewString(), sink, nil)
}

func (a *Aggregator[T]) run(ctx context.Context, runID string, sink progress.Sink, track func(State)) (*Result[T], error) {
	setState := func(s State) {
		a.state.Store(int32(s))
		if track != nil {
			track(s)
		}
	}

	start := time.Now()
	activeRuns.Inc()
	defer activeRuns.Dec()

	logger := a.logger.With().Str("run_id", runID).Logger()
	rep := progress.NewReporter(sink, runID, a.config.Progress)
	res := &Result[T]{RunID: runID}

	fail := func(err error) (*Result[T], error) {
		setState(StateFailed)
		runsTotal.WithLabelValues(a.config.Name, "failed").Inc()
		runDuration.WithLabelValues(a.config.Name).Observe(time.Since(start).Seconds())
		logger.Error().
			Err(err).
			Int("pages", res.Pages).
			Int("scanned", res.Scanned).
			Msg("Aggregation failed")
		rep.Finish(progress.PhaseFailed, res.Scanned, 0, err.Error())
		return nil, err
	}

	setState(StateFetching)
	logger.Debug().Msg("Aggregation started")

	p := pagination.New(a.source, pagination.Config{Timeout: a.config.CallTimeout})
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		page, ok, err := p.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if !ok {
			break
		}
		res.Pages++

		setState(StateEnriching)
		if err := a.fold(ctx, page.Items, res, rep); err != nil {
			return fail(err)
		}
		setState(StateFetching)
	}

	res.Duration = time.Since(start)
	setState(StateCompleted)

	runsTotal.WithLabelValues(a.config.Name, "completed").Inc()
	itemsTotal.WithLabelValues(a.config.Name).Add(float64(len(res.Items)))
	softErrorsTotal.WithLabelValues(a.config.Name).Add(float64(len(res.SoftErrors)))
	runDuration.WithLabelValues(a.config.Name).Observe(res.Duration.Seconds())

	logger.Info().
		Int("pages", res.Pages).
		Int("scanned", res.Scanned).
		Int("items", len(res.Items)).
		Int("soft_errors", len(res.SoftErrors)).
		Dur("duration", res.Duration).
		Msg("Aggregation completed")

	rep.Finish(progress.PhaseCompleted, len(res.Items), res.Scanned, MessageCompleted)
	return res, nil
}

// outcome is the per-item result of filtering and enrichment.
type outcome[T any] struct {
	item T
	kept bool
	err  error
}

// fold filters and enriches one page into res, ticking once per item in
// fetch order. Only cancellation of ctx aborts it.
func (a *Aggregator[T]) fold(ctx context.Context, items []T, res *Result[T], rep *progress.Reporter) error {
	if a.enrich == nil || a.config.Concurrency <= 1 {
		for _, item := range items {
			o, err := a.process(ctx, item)
			if err != nil {
				return err
			}
			a.record(res, o, rep)
		}
		return nil
	}

	outcomes := make([]outcome[T], len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)
	for i, item := range items {
		if a.filter != nil && !a.filter(item) {
			outcomes[i] = outcome[T]{item: item}
			continue
		}
		i, item := i, item
		g.Go(func() error {
			o, err := a.enrichOne(gctx, ctx, item)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, o := range outcomes {
		a.record(res, o, rep)
	}
	return nil
}

func (a *Aggregator[T]) process(ctx context.Context, item T) (outcome[T], error) {
	if a.filter != nil && !a.filter(item) {
		return outcome[T]{item: item}, nil
	}
	if a.enrich == nil {
		return outcome[T]{item: item, kept: true}, nil
	}
	return a.enrichOne(ctx, ctx, item)
}

// enrichOne calls the enricher under callCtx. A failure becomes a soft error
// unless parent has been cancelled.
func (a *Aggregator[T]) enrichOne(callCtx, parent context.Context, item T) (outcome[T], error) {
	if err := parent.Err(); err != nil {
		return outcome[T]{}, err
	}

	callCtx, cancel := client.WithCallTimeout(callCtx, a.config.CallTimeout)
	defer cancel()

	enriched, err := a.enrich(callCtx, item)
	if err != nil {
		if perr := parent.Err(); perr != nil {
			return outcome[T]{}, perr
		}
		return outcome[T]{item: item, err: err}, nil
	}
	return outcome[T]{item: enriched, kept: true}, nil
}

func (a *Aggregator[T]) record(res *Result[T], o outcome[T], rep *progress.Reporter) {
	index := res.Scanned
	res.Scanned++

	switch {
	case o.err != nil:
		softErr := &SoftItemError{Index: index, Key: keyOf(o.item, index), Err: o.err}
		res.SoftErrors = append(res.SoftErrors, softErr)
		a.logger.Warn().Err(o.err).Int("index", index).Str("key", softErr.Key).Msg("Enrichment failed - item skipped")
	case o.kept:
		res.Items = append(res.Items, o.item)
	default:
		res.Filtered++
	}

	rep.Tick(progress.PhaseScanning, res.Scanned, 0, a.config.TickMessage(res.Scanned))
}

func keyOf[T any](item T, index int) string {
	if k, ok := any(item).(Keyed); ok {
		return k.Key()
	}
	return "#" + strconv.Itoa(index)
}
