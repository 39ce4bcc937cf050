package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamadmin_cache_hits_total",
			Help: "Total number of metadata cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks lookups that missed every layer
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamadmin_cache_misses_total",
			Help: "Total number of metadata cache misses",
		},
	)

	// CacheWrites tracks stored entries by layer
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamadmin_cache_writes_total",
			Help: "Total number of metadata cache writes",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamadmin_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
