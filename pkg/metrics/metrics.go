package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "distributor_build_info",
			Help: "Build information of the distributor backend",
		},
		[]string{"version", "commit", "date"},
	)

	TriggerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_trigger_events_total",
			Help: "Total number of trigger events submitted to the orchestrator",
		},
		[]string{"kind"},
	)

	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_rounds_total",
			Help: "Total number of processed trigger events by outcome",
		},
		[]string{"outcome"},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distributor_round_duration_seconds",
			Help:    "Duration of executed distribution rounds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	HolderRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distributor_holder_refresh_duration_seconds",
			Help:    "Duration of holder count discovery passes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	HoldersDiscovered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_holders_discovered",
			Help: "Number of marker token holders found by the last discovery pass",
		},
	)

	TransactionSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distributor_transaction_size_bytes",
			Help:    "Serialized size of submitted distribution transactions",
			Buckets: prometheus.LinearBuckets(200, 128, 10), // up to the 1232 byte packet limit and beyond
		},
	)
)
