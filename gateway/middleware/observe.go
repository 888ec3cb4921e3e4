package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Observability records request counts and latencies for gateway routes and
// exposes the prometheus scrape handler.
type Observability struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	observabilityOnce sync.Once
	observabilityReg  *Observability
)

func NewObservability() *Observability {
	observabilityOnce.Do(func() {
		observabilityReg = &Observability{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Gateway requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrowd",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway routes.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(observabilityReg.requests, observabilityReg.latency)
	})
	return observabilityReg
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware wraps a route group with request accounting.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			o.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			o.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler returns the prometheus scrape endpoint.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
