package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcome labels for PollCyclesTotal.
const (
	CycleOK               = "ok"
	CycleEmpty            = "empty"
	CycleErrorTransport   = "error_transport"
	CycleErrorPersistence = "error_persistence"
	CycleErrorAck         = "error_ack"
	CycleErrorCursor      = "error_cursor"
)

// IndexerMetrics holds all Prometheus metrics for the indexer.
type IndexerMetrics struct {
	PollCyclesTotal      *prometheus.CounterVec
	EventsPolledTotal    prometheus.Counter
	EventsInsertedTotal  prometheus.Counter
	EventsSkippedTotal   prometheus.Counter
	HandlerFailuresTotal *prometheus.CounterVec
	LastAcknowledgedID   prometheus.Gauge
	BacklogRemaining     prometheus.Gauge
	DedupCacheHits       prometheus.Counter
	DedupCacheMisses     prometheus.Counter
}

// NewIndexerMetrics initializes and registers the Prometheus metrics.
func NewIndexerMetrics() *IndexerMetrics {
	return &IndexerMetrics{
		PollCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by outcome.",
		}, []string{"status"}),
		EventsPolledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "poller",
			Name:      "events_polled_total",
			Help:      "Total number of events received from the upstream API.",
		}),
		EventsInsertedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "store",
			Name:      "events_inserted_total",
			Help:      "Total number of events newly persisted.",
		}),
		EventsSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "store",
			Name:      "events_skipped_total",
			Help:      "Total number of redelivered events skipped as duplicates.",
		}),
		HandlerFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "processor",
			Name:      "handler_failures_total",
			Help:      "Total number of isolated handler failures by event type.",
		}, []string{"type"}),
		LastAcknowledgedID: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "name_indexer",
			Subsystem: "cursor",
			Name:      "last_acknowledged_id",
			Help:      "The last event id acknowledged to the upstream API.",
		}),
		BacklogRemaining: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "name_indexer",
			Subsystem: "poller",
			Name:      "backlog_remaining",
			Help:      "1 when the last poll reported more events waiting upstream, else 0.",
		}),
		DedupCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "dedup",
			Name:      "cache_hits_total",
			Help:      "Total number of unique ids skipped via the dedup cache.",
		}),
		DedupCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "name_indexer",
			Subsystem: "dedup",
			Name:      "cache_misses_total",
			Help:      "Total number of unique ids not found in the dedup cache.",
		}),
	}
}
