// Package export writes aggregation results as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/progress"
)

var rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "teamadmin_export_rows_total",
	Help: "Total CSV rows written by exports",
})

// Column renders one CSV column of T.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Select returns the columns named by headers, in that order. Matching is
// case-insensitive. No headers returns all columns.
func Select[T any](columns []Column[T], headers ...string) ([]Column[T], error) {
	if len(headers) == 0 {
		return columns, nil
	}

	out := make([]Column[T], 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		found := false
		for _, c := range columns {
			if strings.EqualFold(c.Header, h) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown column %q", h)
		}
	}
	return out, nil
}

// Headers lists the header names of columns.
func Headers[T any](columns []Column[T]) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Header
	}
	return out
}

// Exporter writes items as CSV and reports one "Writing Record" tick per row.
type Exporter[T any] struct {
	columns  []Column[T]
	progress progress.Config
	logger   zerolog.Logger
}

// New creates an exporter for columns.
func New[T any](columns []Column[T], cfg progress.Config) *Exporter[T] {
	return &Exporter[T]{
		columns:  columns,
		progress: cfg,
		logger:   logging.NewLogger(logging.ComponentExport),
	}
}

// Write writes a header row plus one row per item to w. It does not emit a
// terminal event.
func (e *Exporter[T]) Write(ctx context.Context, w io.Writer, items []T, rep *progress.Reporter) error {
	if len(e.columns) == 0 {
		return fmt.Errorf("no columns selected")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers(e.columns)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(e.columns))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j, c := range e.columns {
			row[j] = c.Value(item)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
		rowsWritten.Inc()
		if rep != nil {
			rep.Tick(progress.PhaseWriting, i+1, len(items), progress.WritingMessage(i+1, len(items)))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteFile exports items to path, creating parent directories. The run ends
// with a Completed event naming the file, or a Failed event.
func (e *Exporter[T]) WriteFile(ctx context.Context, path string, items []T, sink progress.Sink, runID string) (err error) {
	start := time.Now()
	rep := progress.NewReporter(sink, runID, e.progress)
	defer func() {
		if err != nil {
			rep.Finish(progress.PhaseFailed, 0, len(items), err.Error())
			e.logger.Error().Err(err).Str("path", path).Msg("Export failed")
		}
	}()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}

	if err := e.Write(ctx, f, items, rep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	abs, absErr := filepath.Abs(path)
	if absErr != nil {
		abs = path
	}

	e.logger.Info().
		Str("path", abs).
		Int("records", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Export completed")

	msg := progress.CompletedMessage(abs)
	if len(items) == 0 {
		msg = progress.MessageNoRecords + " " + msg
	}
	rep.Finish(progress.PhaseCompleted, len(items), len(items), msg)
	return nil
}
