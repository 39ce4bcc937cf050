// Package cache stores enrichment metadata (e.g. Paper document metadata)
// so repeated runs do not refetch what has not changed.
//
// The Manager has two optional layers: an in-process expirable LRU and a
// shared Redis backend. Reads check memory first, then Redis, and a Redis hit
// warms the memory layer. Writes go to both.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, cache.DefaultConfig())
//
//	key := cache.Key{Kind: "paper_metadata", ID: docID}
//	var meta PaperMetadata
//	err := manager.GetJSON(ctx, key, &meta)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch, then
//		_ = manager.SetJSON(ctx, key, meta, time.Hour)
//	}
//
// A nil Redis client gives a memory-only cache.
//
// # Metrics
//
//   - teamadmin_cache_hits_total{layer} - hits per layer ("memory", "redis")
//   - teamadmin_cache_misses_total - misses on all layers
//   - teamadmin_cache_writes_total{layer} - stored entries per layer
//   - teamadmin_cache_errors_total{operation} - Redis or decode failures
package cache
