package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_http_requests_total",
			Help: "HTTP requests handled, by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	treatmentsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_treatments_started_total",
			Help: "Treatments started on a chair",
		},
	)

	treatmentsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_treatments_completed_total",
			Help: "Treatments completed and written to history",
		},
	)

	treatmentMinutes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinic_treatment_duration_minutes",
			Help:    "Recorded treatment duration in whole minutes",
			Buckets: []float64{5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_queue_operations_total",
			Help: "Walk-in queue operations",
		},
		[]string{"operation"},
	)

	activeChairs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinic_active_chairs",
			Help: "Chairs in active treatment at the last stats computation",
		},
	)

	waitingPatients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinic_waiting_patients",
			Help: "Patients waiting in the queue at the last stats computation",
		},
	)
)

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func TreatmentStarted() {
	treatmentsStarted.Inc()
}

func TreatmentCompleted(minutes int) {
	treatmentsCompleted.Inc()
	treatmentMinutes.Observe(float64(minutes))
}

func QueueOperation(operation string) {
	queueOperations.WithLabelValues(operation).Inc()
}

func ObserveClinic(active, waiting int64) {
	activeChairs.Set(float64(active))
	waitingPatients.Set(float64(waiting))
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
