package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// progressEvery is the page interval for progress logging.
const progressEvery = 50

// Collect drains source and returns every item in fetch order plus the number
// of pages fetched. On error no items are returned.
func Collect[T any](ctx context.Context, source Source[T], config Config) ([]T, int, error) {
	start := time.Now()
	p := New(source, config)

	var items []T
	for {
		page, ok, err := p.Next(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Int("fetched_pages", p.Pages()).
				Msg("Page fetch failed - discarding partial results")
			return nil, p.Pages(), fmt.Errorf("collect (%d pages fetched): %w", p.Pages(), err)
		}
		if !ok {
			break
		}
		items = append(items, page.Items...)

		if p.Pages()%progressEvery == 0 {
			log.Info().
				Int("fetched", p.Pages()).
				Int("items", len(items)).
				Msg("Fetch progress")
		}
	}

	log.Debug().
		Int("pages", p.Pages()).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, p.Pages(), nil
}
