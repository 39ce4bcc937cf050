package pagination

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Chain concatenates sources into one. Its cursor is "<source index>:<inner cursor>";
// an empty inner cursor starts the next source with FetchFirst.
func Chain[T any](sources ...Source[T]) Source[T] {
	return &chain[T]{sources: sources}
}

type chain[T any] struct {
	sources []Source[T]
}

func (c *chain[T]) FetchFirst(ctx context.Context) (*Page[T], error) {
	if len(c.sources) == 0 {
		return &Page[T]{}, nil
	}
	page, err := c.sources[0].FetchFirst(ctx)
	if err != nil {
		return nil, err
	}
	return c.wrap(0, page), nil
}

func (c *chain[T]) FetchNext(ctx context.Context, cursor string) (*Page[T], error) {
	idxStr, inner, ok := strings.Cut(cursor, ":")
	idx, err := strconv.Atoi(idxStr)
	if !ok || err != nil || idx < 0 || idx >= len(c.sources) {
		return nil, fmt.Errorf("invalid chain cursor %q", cursor)
	}

	var page *Page[T]
	if inner == "" {
		page, err = c.sources[idx].FetchFirst(ctx)
	} else {
		page, err = c.sources[idx].FetchNext(ctx, inner)
	}
	if err != nil {
		return nil, err
	}
	return c.wrap(idx, page), nil
}

func (c *chain[T]) wrap(idx int, page *Page[T]) *Page[T] {
	if page == nil {
		return nil
	}
	out := &Page[T]{Items: page.Items}
	switch {
	case page.HasMore:
		out.HasMore = true
		// An empty inner cursor stays empty so the paginator rejects the page.
		if page.Cursor != "" {
			out.Cursor = strconv.Itoa(idx) + ":" + page.Cursor
		}
	case idx < len(c.sources)-1:
		out.HasMore = true
		out.Cursor = strconv.Itoa(idx+1) + ":"
	}
	return out
}
