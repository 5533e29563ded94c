package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for DCSLedger.
type Metrics struct {
	// --- Engine processing ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EngineSequence   prometheus.Gauge

	// --- Lifecycle ---
	DepositsQueued      *prometheus.CounterVec
	DepositsProcessed   *prometheus.CounterVec
	WithdrawalsQueued   *prometheus.CounterVec
	WithdrawalsRedeemed *prometheus.CounterVec
	TradesStarted       *prometheus.CounterVec
	TradesExpired       *prometheus.CounterVec
	TradesConverted     *prometheus.CounterVec
	TradesDefaulted     *prometheus.CounterVec
	FeesCollected       *prometheus.CounterVec
	DisputesRaised      *prometheus.CounterVec
	DisputesProcessed   *prometheus.CounterVec
	Rollovers           *prometheus.CounterVec

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Duration    prometheus.Histogram

	// --- Persistence ---
	PersistOpsWritten       prometheus.Counter
	PersistTransfersWritten prometheus.Counter
	PersistBatchSize        prometheus.Histogram
	PersistBatchDur         prometheus.Histogram
	PersistErrors           *prometheus.CounterVec
	PersistRetry            prometheus.Counter
	PersistLastSequence     prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayOpsTotal    prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Ingestion ---
	IngestReceived  *prometheus.CounterVec
	IngestParseErrs *prometheus.CounterVec
	NATSPullLatency *prometheus.HistogramVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	lifecycleCounter := func(name, help string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, []string{"product_id"})
	}

	return &Metrics{
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_engine_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command_type"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_engine_commands_rejected_total",
			Help: "Commands rejected (dedup, validation, phase)",
		}, []string{"command_type", "reason"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcs_engine_command_apply_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"command_type"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_engine_sequence",
			Help: "Current global sequence number",
		}),

		DepositsQueued:      lifecycleCounter("dcs_deposits_queued_total", "Deposits added to product queues"),
		DepositsProcessed:   lifecycleCounter("dcs_deposits_processed_total", "Queued deposits converted to shares"),
		WithdrawalsQueued:   lifecycleCounter("dcs_withdrawals_queued_total", "Withdrawals escrowed"),
		WithdrawalsRedeemed: lifecycleCounter("dcs_withdrawals_redeemed_total", "Queued withdrawals paid out"),
		TradesStarted:       lifecycleCounter("dcs_trades_started_total", "Trades entered by auction winners"),
		TradesExpired:       lifecycleCounter("dcs_trades_expired_total", "Trades past final observation"),
		TradesConverted:     lifecycleCounter("dcs_trades_converted_total", "Expiries whose trigger fired"),
		TradesDefaulted:     lifecycleCounter("dcs_trades_defaulted_total", "Settlements missed past the deadline"),
		FeesCollected:       lifecycleCounter("dcs_fees_collected_total", "Fee extractions completed"),
		DisputesRaised:      lifecycleCounter("dcs_disputes_raised_total", "Price disputes opened"),
		DisputesProcessed:   lifecycleCounter("dcs_disputes_processed_total", "Price disputes resolved"),
		Rollovers:           lifecycleCounter("dcs_rollovers_total", "Vault epochs rolled forward"),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dcs_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dcs_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dcs_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcs_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		PersistOpsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_persist_ops_written_total",
			Help: "Operation records written to Postgres",
		}),

		PersistTransfersWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_persist_transfers_written_total",
			Help: "Transfer journal rows written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcs_persist_batch_size",
			Help:    "Operations per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcs_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcs_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayOpsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcs_replay_ops_total",
			Help: "Operations replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dcs_replay_duration_seconds",
			Help: "Total replay time",
		}),

		IngestReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_ingest_received_total",
			Help: "Messages received from NATS",
		}, []string{"subject"}),

		IngestParseErrs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_ingest_parse_errors_total",
			Help: "Messages that failed to parse",
		}, []string{"subject"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcs_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dcs_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcs_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
