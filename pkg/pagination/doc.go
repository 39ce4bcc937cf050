// Package pagination drives cursor-paginated list endpoints.
//
// Cursor endpoints answer a list call with the first page and an opaque cursor,
// and every continuation call with the next page and a new cursor until
// has_more is false. A Paginator walks that chain strictly in order:
//
//	p := pagination.New(source, pagination.DefaultConfig())
//	for {
//		page, ok, err := p.Next(ctx)
//		if err != nil {
//			// p is unchanged; calling Next again re-issues the same request.
//		}
//		if !ok {
//			break
//		}
//		// fold page.Items
//	}
//
// The paginator never retries on its own. Transport-level retries belong to
// pkg/client; whole-page retry is left to the caller.
//
// Collect drains a source into a slice when no per-item processing is needed.
package pagination
