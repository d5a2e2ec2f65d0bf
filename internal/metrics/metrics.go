package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_requests_total", Help: "Trade requests processed, by outcome"},
		[]string{"outcome"},
	)
	TradeActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_actions_total", Help: "Trade actions executed in committed transactions"},
		[]string{"action"},
	)
	FlashloansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "flashloans_total", Help: "Flash loans borrowed and repaid"},
	)
	FlashloanVolumeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "flashloan_volume_total", Help: "Flash loan principal borrowed, in base units"},
	)
	OracleQuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_quotes_total", Help: "Oracle quote calls, by venue and result"},
		[]string{"venue", "result"},
	)
	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_dropped_total", Help: "Committed events not delivered to a slow consumer"},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(TradeRequestsTotal, TradeActionsTotal, FlashloansTotal, FlashloanVolumeTotal, OracleQuotesTotal, EventsDroppedTotal)
}

// Serve exposes /metrics plus any extra handlers on addr in the background.
func Serve(addr string, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
