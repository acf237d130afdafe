package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider metrics - Track wallet detection and network state
var (
	ProviderDetectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_provider_detect_attempts_total",
		Help: "Total number of wallet provider detection attempts",
	})

	ProviderConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_provider_connected",
		Help: "1 when a wallet provider is connected, 0 otherwise",
	})

	ActiveChainID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_active_chain_id",
		Help: "Chain id last reported by the wallet provider",
	})
)

// FHE metrics - Track readiness and decryption
var (
	FHEGateStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_fhe_gate_status",
			Help: "Current FHE readiness gate status (1 for the active status)",
		},
		[]string{"status"},
	)

	DecryptRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_decrypt_requests_total",
			Help: "Total number of decrypt requests by outcome",
		},
		[]string{"outcome"},
	)

	DecryptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_decrypt_duration_seconds",
		Help:    "Time taken to decrypt a handle",
		Buckets: prometheus.DefBuckets,
	})
)

// Contract metrics - Track transactions against the gallery contract
var (
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_transactions_submitted_total",
			Help: "Total number of transactions submitted by method",
		},
		[]string{"method"},
	)

	TransactionsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_transactions_confirmed_total",
			Help: "Total number of transactions confirmed by method and status",
		},
		[]string{"method", "status"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_confirmation_duration_seconds",
		Help:    "Time between submission and inclusion",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	ContractCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_contract_calls_total",
			Help: "Total number of read-only contract calls by method",
		},
		[]string{"method"},
	)
)

// Indexer metrics - Track event ingestion
var (
	EventsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_indexer_events_saved_total",
			Help: "Total number of gallery events saved by type",
		},
		[]string{"event_type"},
	)

	LastIndexedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_indexer_last_block",
		Help: "Last block processed by the event indexer",
	})

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)
