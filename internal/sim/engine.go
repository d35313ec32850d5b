package sim

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/log"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/metrics"
)

// Engine binds a live Book to the simulator. Quote takes the snapshot
// under a brief read lock and walks it outside any lock, so slow
// callers never block the feed writer.
type Engine struct {
	book     *book.Book
	takerFee decimal.Decimal
	logger   log.Logger
}

func NewEngine(b *book.Book, takerFee decimal.Decimal, logger log.Logger) *Engine {
	return &Engine{book: b, takerFee: takerFee, logger: logger.With().Str("component", "sim").Logger()}
}

func (e *Engine) Book() *book.Book { return e.book }

// DefaultFeeRate is the configured taker fee, used when a request does
// not carry its own.
func (e *Engine) DefaultFeeRate() decimal.Decimal { return e.takerFee }

// Quote simulates req against the current book. It fails fast with
// book.ErrBookNotSynced while the book is stale or empty.
func (e *Engine) Quote(req Request) (Result, error) {
	snap, err := e.book.Snapshot()
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues(string(req.Side), "not_ready").Inc()
		return Result{}, err
	}
	start := time.Now()
	res, err := Simulate(snap, req)
	metrics.SimulationLatencyMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		metrics.SimulationsTotal.WithLabelValues(string(req.Side), outcomeOf(err)).Inc()
		return Result{}, err
	}
	outcome := "filled"
	if !res.FullyFilled {
		outcome = "partial"
	}
	metrics.SimulationsTotal.WithLabelValues(string(req.Side), outcome).Inc()
	metrics.SimSlippageBps.Set(SlippageBps(res.Slippage))
	metrics.SimFeeQuote.Set(res.Fee.InexactFloat64())
	return res, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, book.ErrEmptyBook):
		return "empty_book"
	case errors.Is(err, book.ErrNoFill):
		return "no_fill"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

// RunSelfQuote periodically simulates a fixed-size buy and sell and
// logs realized price, slippage and fee. Skips quietly while the book
// is not synced.
func (e *Engine) RunSelfQuote(ctx context.Context, interval time.Duration, qty decimal.Decimal) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			for _, side := range []Side{Buy, Sell} {
				res, err := e.Quote(Request{Side: side, Sizing: ByBase, Amount: qty, TakerFeeRate: e.takerFee})
				if err != nil {
					if errors.Is(err, book.ErrBookNotSynced) {
						continue
					}
					e.logger.Warn().Err(err).Str("side", string(side)).Msg("self-quote failed")
					continue
				}
				e.logger.Info().
					Str("side", string(side)).
					Str("qty", qty.String()).
					Str("avg_price", res.AvgPrice.StringFixed(2)).
					Float64("slippage_bps", SlippageBps(res.Slippage)).
					Str("fee", res.Fee.String()).
					Bool("fully_filled", res.FullyFilled).
					Msg("self-quote")
			}
		}
	}
}
