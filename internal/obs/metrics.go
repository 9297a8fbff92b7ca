package obs

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boongle/internal/domain"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boongle_generations_total",
			Help: "Generation requests by plan and outcome.",
		},
		[]string{"plan", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boongle_generation_backend_seconds",
			Help:    "Latency of generation backend calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"plan"},
	)

	debitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boongle_quota_debits_total",
			Help: "Post-generation quota debits by result.",
		},
		[]string{"result"},
	)

	profileLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boongle_profile_loads_total",
			Help: "Profile loads by result.",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Init registers the metrics in the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			generationsTotal, generationDuration, debitsTotal, profileLoadsTotal,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeneration counts one generation request outcome.
func ObserveGeneration(plan domain.Plan, outcome string) {
	if plan == "" {
		plan = "NONE"
	}
	generationsTotal.WithLabelValues(string(plan), outcome).Inc()
}

// ObserveBackendLatency records how long a backend call took.
func ObserveBackendLatency(plan domain.Plan, d time.Duration) {
	generationDuration.WithLabelValues(string(plan)).Observe(d.Seconds())
}

// ObserveDebit counts a post-generation debit result.
func ObserveDebit(err error) {
	debitsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveProfileLoad counts a profile load result.
func ObserveProfileLoad(err error) {
	profileLoadsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrProfileNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, domain.ErrQuotaRace):
		return "quota_race"
	default:
		return "error"
	}
}

// Instrument measures in-flight requests, totals and latency. routeOf maps a
// request to a low-cardinality route label.
func Instrument(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if routeOf != nil {
				if v := routeOf(r); v != "" {
					route = v
				}
			}
			status := strconv.Itoa(sw.code)
			httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
