package monitoring

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TotalTrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_bot_trades_total",
			Help: "Total number of grid order fills",
		},
		[]string{"symbol", "side", "mode"},
	)

	AccountValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grid_bot_account_value",
			Help: "Current account value in quote currency",
		},
		[]string{"symbol"},
	)

	OpenOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grid_bot_open_orders",
			Help: "Number of resting grid orders",
		},
		[]string{"symbol", "side"},
	)

	FeesPaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_bot_fees_paid_total",
			Help: "Cumulative trading fees in quote currency",
		},
		[]string{"symbol"},
	)

	ExchangeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grid_bot_exchange_latency_seconds",
			Help:    "Exchange API response latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"exchange", "endpoint"},
	)
)

// RecordTrade records one fill.
func RecordTrade(symbol, side, mode string) {
	TotalTrades.WithLabelValues(symbol, side, mode).Inc()
}

// RecordFee adds to the cumulative fee counter.
func RecordFee(symbol string, fee float64) {
	FeesPaid.WithLabelValues(symbol).Add(fee)
}

// SetAccountValue updates the account value gauge.
func SetAccountValue(symbol string, value float64) {
	AccountValue.WithLabelValues(symbol).Set(value)
}

// SetOpenOrders updates the open order gauge for one side.
func SetOpenOrders(symbol, side string, count int) {
	OpenOrders.WithLabelValues(symbol, side).Set(float64(count))
}

// ObserveExchangeCall records the latency of one exchange API call.
func ObserveExchangeCall(exchange, endpoint string, started time.Time) {
	ExchangeLatency.WithLabelValues(exchange, endpoint).Observe(time.Since(started).Seconds())
}

// Serve exposes /metrics and /health on the given port. Runs in its own
// goroutine; a port of 0 disables the endpoint.
func Serve(port int, health *HealthChecker) {
	if port == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if health != nil {
		mux.Handle("/health", health)
	}

	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Printf("📊 Metrics server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("⚠️ Metrics server stopped: %v", err)
		}
	}()
}
