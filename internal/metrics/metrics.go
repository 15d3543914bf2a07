// Package metrics exposes the Prometheus collectors for the HTTP layer, the
// balance oracle, the accrual job and withdrawals.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backoffice"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	balanceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "balance_fetch_total",
			Help:      "Balance lookups by outcome (cache_hit, fetched, fallback, failed)",
		},
		[]string{"outcome"},
	)

	balanceFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "balance_fetch_duration_seconds",
			Help:      "Duration of upstream balance fetches in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	accrualRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "runs_total",
			Help:      "Accrual batch runs by trigger",
		},
		[]string{"trigger"},
	)

	accrualUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "users_total",
			Help:      "Users processed by the accrual job by outcome (advanced, skipped, failed)",
		},
		[]string{"outcome"},
	)

	accrualDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "run_duration_seconds",
			Help:      "Duration of an accrual batch in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
	)

	profitAccruedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "profit_accrued_total",
			Help:      "Simulated profit credited across all users",
		},
	)

	activeBots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "active_bots",
			Help:      "Subscribed users whose bot was active after the last accrual run",
		},
	)

	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "withdrawal",
			Name:      "requests_total",
			Help:      "Withdrawal requests by status",
		},
		[]string{"status"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		pattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBalanceLookup counts a balance lookup outcome.
func RecordBalanceLookup(outcome string) {
	balanceFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveBalanceFetch records the duration of an upstream balance fetch.
func ObserveBalanceFetch(d time.Duration) {
	balanceFetchDuration.Observe(d.Seconds())
}

// RecordAccrualRun records one accrual batch.
func RecordAccrualRun(trigger string, d time.Duration, advanced, skipped, failed int) {
	accrualRunsTotal.WithLabelValues(trigger).Inc()
	accrualDuration.Observe(d.Seconds())
	accrualUsersTotal.WithLabelValues("advanced").Add(float64(advanced))
	accrualUsersTotal.WithLabelValues("skipped").Add(float64(skipped))
	accrualUsersTotal.WithLabelValues("failed").Add(float64(failed))
}

// AddProfitAccrued adds to the simulated-profit counter.
func AddProfitAccrued(v float64) {
	profitAccruedTotal.Add(v)
}

// SetActiveBots sets the active-bots gauge.
func SetActiveBots(n int) {
	activeBots.Set(float64(n))
}

// RecordWithdrawal counts a withdrawal status transition.
func RecordWithdrawal(status string) {
	withdrawalsTotal.WithLabelValues(status).Inc()
}
