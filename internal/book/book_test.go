package book

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lv(price, qty string) Level { return Level{Price: d(price), Quantity: d(qty)} }

func syncedBook(t *testing.T) *Book {
	t.Helper()
	b := New("BTC-USDT")
	err := b.ApplySnapshot(
		[]Level{lv("99", "1"), lv("98", "2"), lv("97", "3")},
		[]Level{lv("100", "1"), lv("101", "2"), lv("102", "3")},
		10,
	)
	require.NoError(t, err)
	return b
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New("BTC-USDT")
	// deliberately unsorted input with a zero-quantity entry
	err := b.ApplySnapshot(
		[]Level{lv("97", "3"), lv("99", "1"), lv("98", "0"), lv("98.5", "2")},
		[]Level{lv("102", "3"), lv("100", "1"), lv("101", "2")},
		7,
	)
	require.NoError(t, err)
	require.Equal(t, StateSynced, b.State())
	require.Equal(t, int64(7), b.LastSequence())

	snap, err := b.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Bids, 3, "zero-quantity level must not be stored")
	assert.Equal(t, "99", snap.Bids[0].Price.String())
	assert.Equal(t, "98.5", snap.Bids[1].Price.String())
	assert.Equal(t, "97", snap.Bids[2].Price.String())
	assert.Equal(t, "100", snap.Asks[0].Price.String())
	assert.Equal(t, "101", snap.Asks[1].Price.String())
	assert.Equal(t, "102", snap.Asks[2].Price.String())
	assert.Equal(t, int64(7), snap.Sequence)
}

func TestSnapshotRejectsNegativeQuantity(t *testing.T) {
	b := New("BTC-USDT")
	err := b.ApplySnapshot([]Level{lv("99", "-1")}, nil, 1)
	require.ErrorIs(t, err, ErrInvalidLevel)
	assert.Equal(t, StateEmpty, b.State())
}

func TestSnapshotCollapsesRepeatedPrices(t *testing.T) {
	b := New("BTC-USDT")
	err := b.ApplySnapshot(
		[]Level{lv("99", "1"), lv("98", "2"), lv("99", "4")},
		[]Level{lv("100", "1"), lv("100", "0")},
		1,
	)
	require.NoError(t, err)

	snap, err := b.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Bids, 2, "repeated price must collapse to one level")
	assert.Equal(t, "99", snap.Bids[0].Price.String())
	assert.Equal(t, "4", snap.Bids[0].Quantity.String(), "last entry for a price wins")
	require.Empty(t, snap.Asks, "a trailing zero quantity removes the level")
}

func TestSnapshotRejectsCrossedInput(t *testing.T) {
	b := New("BTC-USDT")
	err := b.ApplySnapshot([]Level{lv("101", "1")}, []Level{lv("100", "1")}, 1)
	var crossed *CrossedBookError
	require.ErrorAs(t, err, &crossed)
	_, serr := b.Snapshot()
	assert.ErrorIs(t, serr, ErrBookNotSynced)
}

func TestDeltaInsertUpdateRemove(t *testing.T) {
	b := syncedBook(t)

	// insert between existing levels
	require.NoError(t, b.ApplyDelta(Bid, d("98.5"), d("5"), 11))
	// update existing
	require.NoError(t, b.ApplyDelta(Ask, d("101"), d("9"), 12))
	// remove exactly one level
	require.NoError(t, b.ApplyDelta(Bid, d("98"), d("0"), 13))
	// removal of an absent level is a no-op
	require.NoError(t, b.ApplyDelta(Ask, d("105"), d("0"), 14))

	snap, err := b.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Bids, 3)
	assert.Equal(t, "99", snap.Bids[0].Price.String())
	assert.Equal(t, "98.5", snap.Bids[1].Price.String())
	assert.Equal(t, "5", snap.Bids[1].Quantity.String())
	assert.Equal(t, "97", snap.Bids[2].Price.String())
	require.Len(t, snap.Asks, 3)
	assert.Equal(t, "9", snap.Asks[1].Quantity.String())
	assert.Equal(t, int64(14), snap.Sequence)
}

func TestStaleDuplicateIsNoOp(t *testing.T) {
	b := syncedBook(t)
	before, err := b.Snapshot()
	require.NoError(t, err)

	require.NoError(t, b.ApplyDelta(Bid, d("99"), d("42"), 10))
	require.NoError(t, b.ApplyDelta(Bid, d("99"), d("42"), 5))

	after, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before.Sequence, after.Sequence)
	assert.Equal(t, "1", after.Bids[0].Quantity.String(), "duplicate delta must not mutate the book")
}

func TestSequenceGapForcesStale(t *testing.T) {
	b := syncedBook(t)

	err := b.ApplyDelta(Bid, d("99"), d("5"), 12) // expected 11
	var gap *SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, int64(11), gap.Expected)
	assert.Equal(t, int64(12), gap.Got)
	assert.Equal(t, StateStale, b.State())

	// subsequent deltas are rejected until a fresh snapshot
	err = b.ApplyDelta(Bid, d("99"), d("5"), 13)
	require.ErrorIs(t, err, ErrBookNotSynced)
	_, err = b.Snapshot()
	require.ErrorIs(t, err, ErrBookNotSynced)

	// recovery via snapshot
	require.NoError(t, b.ApplySnapshot([]Level{lv("99", "1")}, []Level{lv("100", "1")}, 50))
	assert.Equal(t, StateSynced, b.State())
	require.NoError(t, b.ApplyDelta(Bid, d("98"), d("1"), 51))
}

func TestCrossingDeltaForcesStale(t *testing.T) {
	b := syncedBook(t)

	err := b.ApplyDelta(Bid, d("100.5"), d("1"), 11)
	var crossed *CrossedBookError
	require.ErrorAs(t, err, &crossed)
	assert.Equal(t, StateStale, b.State())

	_, err = b.Snapshot()
	assert.ErrorIs(t, err, ErrBookNotSynced, "a crossed book must never be queryable")
}

func TestNegativeQuantityDeltaRejected(t *testing.T) {
	b := syncedBook(t)

	err := b.ApplyDelta(Ask, d("101"), d("-3"), 11)
	require.ErrorIs(t, err, ErrInvalidLevel)
	assert.Equal(t, int64(10), b.LastSequence(), "rejected update must not advance the sequence")

	snap, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "2", snap.Asks[1].Quantity.String())
}

func TestBatchDeltaSharesOneSequence(t *testing.T) {
	b := syncedBook(t)
	err := b.ApplyDeltas(11,
		[]Level{lv("99", "4"), lv("96", "1")},
		[]Level{lv("100", "0"), lv("103", "7")},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(11), b.LastSequence())

	snap, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "4", snap.Bids[0].Quantity.String())
	assert.Equal(t, "101", snap.Asks[0].Price.String())
}

func TestBestQuotesNeverCrossUnderContiguousStream(t *testing.T) {
	b := syncedBook(t)
	deltas := []struct {
		side Side
		p, q string
	}{
		{Bid, "99.5", "1"},
		{Ask, "100", "0"},
		{Bid, "99.9", "2"},
		{Ask, "101", "0.5"},
		{Bid, "99.9", "0"},
		{Ask, "100.1", "3"},
		{Bid, "99.5", "0"},
	}
	seq := int64(11)
	for _, dl := range deltas {
		require.NoError(t, b.ApplyDelta(dl.side, d(dl.p), d(dl.q), seq))
		bb, okB := b.BestBid()
		ba, okA := b.BestAsk()
		if okB && okA {
			assert.True(t, bb.LessThan(ba), "best bid %s must stay below best ask %s", bb, ba)
		}
		seq++
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	b := syncedBook(t)
	snap, err := b.Snapshot()
	require.NoError(t, err)

	require.NoError(t, b.ApplyDelta(Bid, d("99"), d("77"), 11))
	assert.Equal(t, "1", snap.Bids[0].Quantity.String(), "snapshot must not observe later writes")
}

func TestDeltaOnEmptyBookRejected(t *testing.T) {
	b := New("BTC-USDT")
	err := b.ApplyDelta(Bid, d("99"), d("1"), 1)
	assert.True(t, errors.Is(err, ErrBookNotSynced))
}
