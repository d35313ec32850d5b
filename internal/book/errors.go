package book

import (
	"errors"
	"fmt"
)

// Common book errors
var (
	ErrInvalidLevel  = errors.New("invalid price level")
	ErrBookNotSynced = errors.New("book not synced")
	ErrEmptyBook     = errors.New("no depth on requested side")
	ErrNoFill        = errors.New("no quantity could be filled")
)

// SequenceGapError reports a non-contiguous delta. The book is stale
// until the next snapshot is applied.
type SequenceGapError struct {
	Expected int64
	Got      int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("sequence gap: expected %d, got %d", e.Expected, e.Got)
}

// CrossedBookError reports an update that would leave best bid >= best ask.
type CrossedBookError struct {
	BestBid string
	BestAsk string
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("crossed book: best bid %s >= best ask %s", e.BestBid, e.BestAsk)
}
