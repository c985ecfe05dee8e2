// Package obs exposes the runner's loop counters over Prometheus.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_bars_total", Help: "Completed bars consumed from the feed"},
		[]string{"symbol"},
	)
	BarsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_bars_skipped_total", Help: "Bars skipped before reaching the strategy"},
		[]string{"symbol", "reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_signals_total", Help: "Signals emitted by the strategy"},
		[]string{"symbol", "side"},
	)
	RiskBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_risk_blocks_total", Help: "Signals rejected by the risk gate"},
		[]string{"symbol", "check"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_orders_total", Help: "Orders placed at the broker"},
		[]string{"symbol", "side"},
	)
	BrokerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_broker_errors_total", Help: "Broker calls that failed"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		BarsTotal,
		BarsSkippedTotal,
		SignalsTotal,
		RiskBlocksTotal,
		OrdersTotal,
		BrokerErrorsTotal,
	)
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
