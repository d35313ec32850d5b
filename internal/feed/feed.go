package feed

import (
	"context"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
)

// Event is one parsed market-data message. A snapshot carries the full
// depth of both sides; a delta carries the changed levels of either or
// both sides under a single sequence number.
//
// Adapters own the sequence contract: snapshots restart the counter and
// consecutive deltas must be numbered contiguously. An adapter that
// detects loss on its wire protocol must surface it as a gap, never
// paper over it.
type Event struct {
	Symbol   string
	Sequence int64
	Snapshot bool
	Bids     []book.Level
	Asks     []book.Level
	// Checksum, when HasChecksum is set, covers the book state after
	// this event has been applied; the updater verifies it through the
	// adapter's ChecksumVerifier.
	Checksum    int32
	HasChecksum bool
}

// Adapter delivers parsed snapshot/delta events for one instrument.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	// RequestSnapshot asks the venue for a fresh full snapshot; the
	// snapshot arrives as a regular event on Events().
	RequestSnapshot(ctx context.Context) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// ChecksumVerifier is implemented by adapters whose venue publishes a
// checksum of the post-apply book. Mismatch is treated as feed loss.
type ChecksumVerifier interface {
	VerifyBookChecksum(bids, asks []book.Level, want int32) bool
}
