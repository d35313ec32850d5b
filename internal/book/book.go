package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Level is a single price+quantity entry. Quantity zero means the level
// is absent; zero-quantity levels are never stored.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

type State string

const (
	StateEmpty  State = "empty"
	StateSynced State = "synced"
	StateStale  State = "stale"
)

// Book holds aggregated L2 depth for one instrument. Bids are sorted
// descending by price, asks ascending, price unique within a side.
// One writer (the updater loop) mutates it; readers take immutable
// snapshots, so no lock spans a simulation walk.
type Book struct {
	mu        sync.RWMutex
	symbol    string
	bids      []Level // sorted desc by price
	asks      []Level // sorted asc by price
	lastSeq   int64
	state     State
	updatedAt time.Time
}

func New(symbol string) *Book {
	return &Book{symbol: symbol, state: StateEmpty}
}

// Snapshot is an immutable point-in-time copy of the book, best price
// first on each side.
type Snapshot struct {
	Symbol   string
	Bids     []Level
	Asks     []Level
	Sequence int64
	Taken    time.Time
}

func (s Snapshot) BestBid() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 {
		return decimal.Decimal{}, false
	}
	return s.Bids[0].Price, true
}

func (s Snapshot) BestAsk() (decimal.Decimal, bool) {
	if len(s.Asks) == 0 {
		return decimal.Decimal{}, false
	}
	return s.Asks[0].Price, true
}

// ApplySnapshot replaces both sides atomically and moves the book to
// Synced. Zero-quantity input levels are skipped, negative quantities
// reject the whole snapshot. A crossed snapshot is a protocol violation
// and leaves the book stale.
func (b *Book) ApplySnapshot(bids, asks []Level, seq int64) error {
	newBids, err := sortedCopy(bids, true)
	if err != nil {
		return err
	}
	newAsks, err := sortedCopy(asks, false)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(newBids) > 0 && len(newAsks) > 0 && newBids[0].Price.GreaterThanOrEqual(newAsks[0].Price) {
		b.state = StateStale
		return &CrossedBookError{BestBid: newBids[0].Price.String(), BestAsk: newAsks[0].Price.String()}
	}
	b.bids = newBids
	b.asks = newAsks
	b.lastSeq = seq
	b.state = StateSynced
	b.updatedAt = time.Now()
	return nil
}

// ApplyDelta applies a single level change under the given sequence number.
func (b *Book) ApplyDelta(side Side, price, quantity decimal.Decimal, seq int64) error {
	lv := []Level{{Price: price, Quantity: quantity}}
	if side == Bid {
		return b.ApplyDeltas(seq, lv, nil)
	}
	return b.ApplyDeltas(seq, nil, lv)
}

// ApplyDeltas applies one delta message: a set of level changes on either
// or both sides sharing a single sequence number. The batch is applied
// atomically with one sequence advance.
//
// A delta with seq <= lastSeq is a stale duplicate and is silently
// discarded. A non-contiguous sequence or a resulting crossed book moves
// the book to Stale; it then rejects deltas until the next snapshot.
func (b *Book) ApplyDeltas(seq int64, bids, asks []Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateSynced {
		return ErrBookNotSynced
	}
	if seq <= b.lastSeq {
		return nil
	}
	if seq != b.lastSeq+1 {
		b.state = StateStale
		return &SequenceGapError{Expected: b.lastSeq + 1, Got: seq}
	}
	for _, lv := range append(bids[:len(bids):len(bids)], asks...) {
		if lv.Quantity.IsNegative() {
			return fmt.Errorf("%w: quantity %s at price %s", ErrInvalidLevel, lv.Quantity, lv.Price)
		}
	}

	for _, lv := range bids {
		b.bids = upsert(b.bids, lv, true)
	}
	for _, lv := range asks {
		b.asks = upsert(b.asks, lv, false)
	}
	b.lastSeq = seq
	b.updatedAt = time.Now()

	if len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price.GreaterThanOrEqual(b.asks[0].Price) {
		b.state = StateStale
		return &CrossedBookError{BestBid: b.bids[0].Price.String(), BestAsk: b.asks[0].Price.String()}
	}
	return nil
}

// Invalidate forces the book stale, e.g. on feed disconnect or checksum
// mismatch. Recoverable only by the next snapshot.
func (b *Book) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSynced {
		b.state = StateStale
	}
}

// Snapshot returns an immutable copy of the book. It fails fast while
// the book is not synced so callers never simulate against stale depth.
func (b *Book) Snapshot() (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != StateSynced {
		return Snapshot{}, ErrBookNotSynced
	}
	snap := Snapshot{
		Symbol:   b.symbol,
		Bids:     append([]Level(nil), b.bids...),
		Asks:     append([]Level(nil), b.asks...),
		Sequence: b.lastSeq,
		Taken:    time.Now(),
	}
	return snap, nil
}

func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return decimal.Decimal{}, false
	}
	return b.bids[0].Price, true
}

func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return decimal.Decimal{}, false
	}
	return b.asks[0].Price, true
}

func (b *Book) Symbol() string { return b.symbol }

func (b *Book) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Book) LastSequence() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}

func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// Depth returns the number of resting levels per side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// upsert inserts, replaces or removes (quantity zero) a level keeping
// the side sorted. desc=true for bids.
func upsert(levels []Level, lv Level, desc bool) []Level {
	i := sort.Search(len(levels), func(i int) bool {
		if desc {
			return levels[i].Price.LessThanOrEqual(lv.Price)
		}
		return levels[i].Price.GreaterThanOrEqual(lv.Price)
	})
	exists := i < len(levels) && levels[i].Price.Equal(lv.Price)
	switch {
	case lv.Quantity.IsZero() && exists:
		return append(levels[:i], levels[i+1:]...)
	case lv.Quantity.IsZero():
		return levels
	case exists:
		levels[i].Quantity = lv.Quantity
		return levels
	default:
		levels = append(levels, Level{})
		copy(levels[i+1:], levels[i:])
		levels[i] = lv
		return levels
	}
}

func sortedCopy(levels []Level, desc bool) ([]Level, error) {
	out := make([]Level, 0, len(levels))
	idx := make(map[string]int, len(levels))
	for _, lv := range levels {
		if lv.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: quantity %s at price %s", ErrInvalidLevel, lv.Quantity, lv.Price)
		}
		// a repeated price in one snapshot collapses last-wins, so
		// prices stay unique within the side
		key := lv.Price.String()
		if i, ok := idx[key]; ok {
			out[i].Quantity = lv.Quantity
			continue
		}
		idx[key] = len(out)
		out = append(out, lv)
	}
	kept := out[:0]
	for _, lv := range out {
		if lv.Quantity.IsZero() {
			continue
		}
		kept = append(kept, lv)
	}
	sort.Slice(kept, func(i, j int) bool {
		if desc {
			return kept[i].Price.GreaterThan(kept[j].Price)
		}
		return kept[i].Price.LessThan(kept[j].Price)
	})
	return kept, nil
}
