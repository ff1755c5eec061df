package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rch_workers_total",
			Help: "Total number of configured workers by health and circuit state",
		},
		[]string{"health", "circuit"},
	)

	WorkerSlotsUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rch_worker_slots_used",
			Help: "Used build slots per worker",
		},
		[]string{"worker_id"},
	)

	WorkerSlotsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rch_worker_slots_total",
			Help: "Total build slots per worker",
		},
		[]string{"worker_id"},
	)

	WorkerSpeedScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rch_worker_speed_score",
			Help: "Rolling speed score per worker",
		},
		[]string{"worker_id"},
	)

	// Classification metrics
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_classifications_total",
			Help: "Total classifier decisions by outcome",
		},
		[]string{"intercepted", "kind_or_reason"},
	)

	ClassificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rch_classification_duration_seconds",
			Help:    "Time taken to classify a command in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// Reservation / scheduling metrics
	SelectWorkerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rch_select_worker_duration_seconds",
			Help:    "Time taken to select and reserve a worker in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReservationsGrantedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rch_reservations_granted_total",
			Help: "Total number of reservations granted",
		},
	)

	ReservationsDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_reservations_denied_total",
			Help: "Total number of reservations denied, by reason",
		},
		[]string{"reason"},
	)

	ReservationsReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_reservations_released_total",
			Help: "Total number of reservations released, by outcome",
		},
		[]string{"outcome"},
	)

	ReservationsAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rch_reservations_abandoned_total",
			Help: "Total number of reservations force-released by the sweeper",
		},
	)

	// Transfer / execute metrics
	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rch_transfer_duration_seconds",
			Help:    "Project sync duration in seconds, by worker",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"worker_id"},
	)

	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_transfer_bytes_total",
			Help: "Total bytes transferred to/from workers",
		},
		[]string{"worker_id", "direction"},
	)

	RemoteBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rch_remote_build_duration_seconds",
			Help:    "Remote build execution duration in seconds, by worker and decision kind",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"worker_id", "kind"},
	)

	RemoteBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_remote_builds_total",
			Help: "Total remote builds completed, by outcome",
		},
		[]string{"outcome"},
	)

	FailOpensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_fail_opens_total",
			Help: "Total commands that fell back to local execution, by error category",
		},
		[]string{"category"},
	)

	// Health probe metrics
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rch_probe_duration_seconds",
			Help:    "Health probe duration in seconds, by worker and check type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker_id", "check_type"},
	)

	CircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rch_circuit_transitions_total",
			Help: "Total circuit breaker state transitions, by worker and new state",
		},
		[]string{"worker_id", "state"},
	)

	// Reconciler cycle metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rch_reconciliation_duration_seconds",
			Help:    "Time taken to complete one reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rch_reconciliation_cycles_total",
			Help: "Total reconciliation cycles completed",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerSlotsUsed)
	prometheus.MustRegister(WorkerSlotsTotal)
	prometheus.MustRegister(WorkerSpeedScore)

	prometheus.MustRegister(ClassificationsTotal)
	prometheus.MustRegister(ClassificationDuration)

	prometheus.MustRegister(SelectWorkerDuration)
	prometheus.MustRegister(ReservationsGrantedTotal)
	prometheus.MustRegister(ReservationsDeniedTotal)
	prometheus.MustRegister(ReservationsReleasedTotal)
	prometheus.MustRegister(ReservationsAbandonedTotal)

	prometheus.MustRegister(TransferDuration)
	prometheus.MustRegister(TransferBytesTotal)
	prometheus.MustRegister(RemoteBuildDuration)
	prometheus.MustRegister(RemoteBuildsTotal)
	prometheus.MustRegister(FailOpensTotal)

	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(CircuitTransitionsTotal)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
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

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
