package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	BookUpdatesTotal        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "book_updates_total", Help: "Applied book updates by type"}, []string{"type"})
	SequenceGapsTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "sequence_gaps_total", Help: "Deltas rejected due to non-contiguous sequence"})
	CrossedBooksTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "crossed_books_total", Help: "Updates that would have crossed the book"})
	StaleDropsTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "stale_drops_total", Help: "Deltas dropped while the book was stale"})
	InvalidLevelsTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "invalid_levels_total", Help: "Updates rejected for malformed levels"})
	ResyncRequestsTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "resync_requests_total", Help: "Snapshot resync requests sent to the feed"})
	ResyncThrottledTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "resync_throttled_total", Help: "Resync requests suppressed by the rate limiter"})
	WSReconnectsTotal       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ws_reconnects_total", Help: "WS reconnects by reason"}, []string{"reason"})
	ChecksumMismatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "checksum_mismatches_total", Help: "Feed checksum verification failures"})

	BookLevels       = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "book_levels", Help: "Resting levels per side"}, []string{"side"})
	BookLastSequence = prometheus.NewGauge(prometheus.GaugeOpts{Name: "book_last_sequence", Help: "Sequence of the last applied update"})
	BookStalenessMs  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "book_staleness_ms", Help: "Milliseconds since the last applied update"})
	BestBid          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "best_bid", Help: "Best bid price"})
	BestAsk          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "best_ask", Help: "Best ask price"})

	SimulationsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "simulations_total", Help: "Trade simulations by side and outcome"}, []string{"side", "outcome"})
	SimulationLatencyMs = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "simulation_latency_ms", Help: "Book-walk latency", Buckets: prometheus.ExponentialBuckets(0.01, 2, 14)})
	SimSlippageBps      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sim_slippage_bps", Help: "Slippage of the last simulation in bps"})
	SimFeeQuote         = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sim_fee_quote", Help: "Taker fee of the last simulation in quote currency"})
)

func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		BookUpdatesTotal, SequenceGapsTotal, CrossedBooksTotal, StaleDropsTotal,
		InvalidLevelsTotal, ResyncRequestsTotal, ResyncThrottledTotal,
		WSReconnectsTotal, ChecksumMismatchesTotal,
		BookLevels, BookLastSequence, BookStalenessMs, BestBid, BestAsk,
		SimulationsTotal, SimulationLatencyMs, SimSlippageBps, SimFeeQuote,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info().Msg("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
