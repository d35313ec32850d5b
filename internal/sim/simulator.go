package sim

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Sizing string

const (
	// ByBase sizes the trade in base-asset units.
	ByBase Sizing = "base"
	// ByQuote sizes the trade in quote-currency notional.
	ByQuote Sizing = "quote"
)

var ErrInvalidRequest = errors.New("invalid trade request")

// Request describes a marketable order to simulate against a snapshot.
type Request struct {
	Side         Side
	Sizing       Sizing
	Amount       decimal.Decimal
	TakerFeeRate decimal.Decimal
}

func (r Request) validate() error {
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("%w: side %q", ErrInvalidRequest, r.Side)
	}
	if r.Sizing != ByBase && r.Sizing != ByQuote {
		return fmt.Errorf("%w: sizing %q", ErrInvalidRequest, r.Sizing)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidRequest)
	}
	if r.TakerFeeRate.IsNegative() {
		return fmt.Errorf("%w: taker fee rate must be >= 0", ErrInvalidRequest)
	}
	return nil
}

// Fill records the quantity taken from one price level.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Result of walking the book. A partial fill (levels exhausted before
// the requested amount) is a valid outcome, not an error.
type Result struct {
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	AvgPrice    decimal.Decimal
	// Reference is the best quote of the walked side when the
	// simulation started.
	Reference decimal.Decimal
	// Slippage is (avg-ref)/ref for buys, (ref-avg)/ref for sells;
	// positive means worse than the best quote.
	Slippage    decimal.Decimal
	Fee         decimal.Decimal
	FullyFilled bool
	Levels      []Fill
}

// Simulate walks one side of an immutable snapshot, taking liquidity in
// price order: asks ascending for buys, bids descending for sells. All
// arithmetic is decimal-exact; the remaining-need check is an exact
// zero comparison, not a float epsilon.
func Simulate(snap book.Snapshot, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	levels := snap.Asks
	if req.Side == Sell {
		levels = snap.Bids
	}
	if len(levels) == 0 {
		return Result{}, book.ErrEmptyBook
	}
	ref := levels[0].Price

	var res Result
	res.Reference = ref
	remaining := req.Amount // base units or quote notional, per sizing
	for _, lv := range levels {
		if !remaining.IsPositive() {
			break
		}
		var take decimal.Decimal
		if req.Sizing == ByBase {
			take = decimal.Min(lv.Quantity, remaining)
			remaining = remaining.Sub(take)
		} else {
			cost := lv.Quantity.Mul(lv.Price)
			if cost.LessThanOrEqual(remaining) {
				take = lv.Quantity
				remaining = remaining.Sub(cost)
			} else {
				take = remaining.Div(lv.Price)
				remaining = decimal.Zero
			}
		}
		if !take.IsPositive() {
			continue
		}
		res.FilledBase = res.FilledBase.Add(take)
		res.FilledQuote = res.FilledQuote.Add(take.Mul(lv.Price))
		res.Levels = append(res.Levels, Fill{Price: lv.Price, Quantity: take})
	}
	res.FullyFilled = remaining.IsZero()

	if res.FilledBase.IsZero() {
		return Result{}, book.ErrNoFill
	}
	res.AvgPrice = res.FilledQuote.Div(res.FilledBase)
	if req.Side == Buy {
		res.Slippage = res.AvgPrice.Sub(ref).Div(ref)
	} else {
		res.Slippage = ref.Sub(res.AvgPrice).Div(ref)
	}
	res.Fee = res.FilledQuote.Mul(req.TakerFeeRate)
	return res, nil
}
