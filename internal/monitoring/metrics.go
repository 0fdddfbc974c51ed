package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polypaper_fills_total",
			Help: "Total number of simulated fills",
		},
		[]string{"market", "side"},
	)

	fillNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polypaper_fill_notional",
			Help:    "Distribution of fill notional values",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		},
		[]string{"market"},
	)

	orderRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polypaper_order_rejections_total",
			Help: "Total number of rejected orders by reason",
		},
		[]string{"reason"},
	)

	// Backtest metrics
	backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polypaper_backtests_total",
			Help: "Total number of backtest runs by final status",
		},
		[]string{"status"},
	)

	backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polypaper_backtest_duration_seconds",
			Help:    "Wall-clock duration of backtest runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	// Risk metrics
	circuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polypaper_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips by strategy",
		},
		[]string{"strategy"},
	)

	accountEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polypaper_account_equity",
			Help: "Current account equity",
		},
		[]string{"account"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polypaper_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(fillNotional)
	prometheus.MustRegister(orderRejectionsTotal)
	prometheus.MustRegister(backtestsTotal)
	prometheus.MustRegister(backtestDuration)
	prometheus.MustRegister(circuitBreakerTrips)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordFill records a simulated fill
func RecordFill(market, side string, notional float64) {
	fillsTotal.WithLabelValues(market, side).Inc()
	fillNotional.WithLabelValues(market).Observe(notional)
}

// RecordRejection records a rejected order by reason
func RecordRejection(reason string) {
	orderRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordBacktest records a completed backtest run
func RecordBacktest(status string, elapsed time.Duration) {
	backtestsTotal.WithLabelValues(status).Inc()
	backtestDuration.Observe(elapsed.Seconds())
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func RecordCircuitBreakerTrip(strategy string) {
	circuitBreakerTrips.WithLabelValues(strategy).Inc()
}

// UpdateEquity updates the account equity gauge
func UpdateEquity(account string, equity float64) {
	accountEquity.WithLabelValues(account).Set(equity)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
