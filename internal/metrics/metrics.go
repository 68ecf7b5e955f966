package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_engine_orders_received_total",
		Help: "Total number of orders received",
	}, []string{"instrument", "type", "side"})

	OrdersMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_engine_orders_matched_total",
		Help: "Total number of orders that resulted in one or more trades",
	}, []string{"instrument"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_engine_orders_rejected_total",
		Help: "Total number of orders rejected due to validation",
	}, []string{"reason"})

	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_engine_order_latency_seconds",
		Help:    "Latency for placing an order (from API receipt to engine response)",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	OrderBookDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trading_engine_orderbook_depth",
		Help: "Current number of price levels in the order book",
	}, []string{"instrument", "side"})
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
