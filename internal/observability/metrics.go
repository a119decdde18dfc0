package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReactionsTotal counts committed toggles by action and resulting state.
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_reactions_total",
		Help: "Total number of committed like/dislike toggles",
	}, []string{"action", "result"})

	// CommentsTotal counts committed comments.
	CommentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_comments_total",
		Help: "Total number of committed comments",
	})

	// RejectedMutationsTotal counts mutations refused before any state change.
	RejectedMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_rejected_mutations_total",
		Help: "Mutations rejected by error code",
	}, []string{"operation", "code"})

	// LedgerWriteFailures counts mutations rolled back because the ledger write failed.
	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ledger_write_failures_total",
		Help: "Total number of mutations rolled back after a ledger write failure",
	})

	// PostsExpiredTotal counts posts flipped to Expired, by path.
	PostsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_posts_expired_total",
		Help: "Posts transitioned to Expired",
	}, []string{"source"})

	// LockWaitSeconds records time spent waiting for a post's critical section.
	LockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_lock_wait_seconds",
		Help:    "Time spent acquiring per-post locks",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "outcome"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts post cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_cache_lookups_total",
		Help: "Post cache lookups by outcome",
	}, []string{"outcome"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
