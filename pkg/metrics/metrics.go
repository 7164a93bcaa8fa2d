package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Idempotency mediator metrics
	MediatorClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_mediator_claims_total",
			Help: "Total number of idempotency claims attempted by mutation kind and outcome",
		},
		[]string{"mutation_kind", "outcome"},
	)

	MediatorReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_mediator_replays_total",
			Help: "Total number of mediated responses served from a replayed snapshot",
		},
		[]string{"mutation_kind"},
	)

	MediatorConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_mediator_conflicts_total",
			Help: "Total number of idempotency key reuses with a conflicting payload",
		},
		[]string{"mutation_kind"},
	)

	MediatorRaceRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildside_mediator_race_retries",
			Help:    "Number of lookup retries a duplicate-key race resolution needed before settling",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	IdempotencyCleanupDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildside_idempotency_cleanup_deleted_total",
			Help: "Total number of idempotency records removed by the periodic sweep",
		},
	)

	// Enrichment worker metrics
	EnrichmentAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_enrichment_admissions_total",
			Help: "Total number of enrichment call admission decisions by result",
		},
		[]string{"decision"},
	)

	EnrichmentDeniedByQuotaTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_enrichment_denied_by_quota_total",
			Help: "Total number of enrichment calls denied by the daily quota, by reason",
		},
		[]string{"reason"},
	)

	EnrichmentCircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wildside_enrichment_circuit_state",
			Help: "Current circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
	)

	EnrichmentCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildside_enrichment_call_duration_seconds",
			Help:    "Duration of a single upstream enrichment source call in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EnrichmentBackoffSleepSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildside_enrichment_backoff_sleep_seconds",
			Help:    "Scheduled backoff sleep duration between enrichment retries in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	EnrichmentPOIsPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildside_enrichment_pois_persisted_total",
			Help: "Total number of points of interest persisted by the enrichment worker",
		},
	)

	EnrichmentJobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildside_enrichment_jobs_failed_total",
			Help: "Total number of enrichment jobs that exhausted retries without success",
		},
	)

	// Bulk ingestion metrics
	IngestionElementsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_ingestion_elements_decoded_total",
			Help: "Total number of OSM elements decoded from a dump by element type",
		},
		[]string{"element_type"},
	)

	IngestionElementsFilteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildside_ingestion_elements_filtered_total",
			Help: "Total number of decoded elements dropped by the geofence bounding box",
		},
	)

	IngestionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_ingestion_runs_total",
			Help: "Total number of bulk ingestion command invocations by outcome",
		},
		[]string{"outcome"},
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wildside_ingestion_duration_seconds",
			Help:    "Time taken to complete a bulk ingestion run in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Provenance reporting metrics
	ProvenancePagesServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wildside_provenance_pages_served_total",
			Help: "Total number of provenance listing pages served",
		},
	)

	// Optimistic-concurrency command service metrics
	CommandRevisionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildside_command_revision_conflicts_total",
			Help: "Total number of compare-and-swap revision mismatches by mutation kind",
		},
		[]string{"mutation_kind"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wildside_command_duration_seconds",
			Help:    "Command service handling duration in seconds by mutation kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mutation_kind"},
	)
)

func init() {
	prometheus.MustRegister(MediatorClaimsTotal)
	prometheus.MustRegister(MediatorReplaysTotal)
	prometheus.MustRegister(MediatorConflictsTotal)
	prometheus.MustRegister(MediatorRaceRetries)
	prometheus.MustRegister(IdempotencyCleanupDeletedTotal)

	prometheus.MustRegister(EnrichmentAdmissionsTotal)
	prometheus.MustRegister(EnrichmentDeniedByQuotaTotal)
	prometheus.MustRegister(EnrichmentCircuitState)
	prometheus.MustRegister(EnrichmentCallDuration)
	prometheus.MustRegister(EnrichmentBackoffSleepSeconds)
	prometheus.MustRegister(EnrichmentPOIsPersistedTotal)
	prometheus.MustRegister(EnrichmentJobsFailedTotal)

	prometheus.MustRegister(IngestionElementsDecodedTotal)
	prometheus.MustRegister(IngestionElementsFilteredTotal)
	prometheus.MustRegister(IngestionRunsTotal)
	prometheus.MustRegister(IngestionDuration)

	prometheus.MustRegister(ProvenancePagesServedTotal)

	prometheus.MustRegister(CommandRevisionConflictsTotal)
	prometheus.MustRegister(CommandDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
