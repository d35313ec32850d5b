package feed

import (
	"context"
	"errors"
	"time"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/log"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/metrics"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/network"
)

// Updater is the single writer of a Book. It consumes adapter events in
// arrival order, applies them, and requests a fresh snapshot whenever
// book integrity breaks (sequence gap, crossed book, delta while
// stale). Resync requests pass through a token bucket so a flapping
// feed cannot cause a snapshot-request storm.
type Updater struct {
	book    *book.Book
	adapter Adapter
	logger  log.Logger
	resync  *network.TokenBucket
}

func NewUpdater(b *book.Book, a Adapter, logger log.Logger, resyncBurst int, resyncPerMinute float64) *Updater {
	if resyncBurst <= 0 {
		resyncBurst = 1
	}
	return &Updater{
		book:    b,
		adapter: a,
		logger:  logger.With().Str("component", "updater").Str("feed", a.Name()).Logger(),
		resync:  network.NewTokenBucket(resyncBurst, resyncPerMinute/60.0),
	}
}

// Run consumes the adapter until ctx is done. Book-integrity errors are
// recovered locally by going stale and requesting a resync; they never
// stop the loop.
func (u *Updater) Run(ctx context.Context) error {
	staleness := time.NewTicker(time.Second)
	defer staleness.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-u.adapter.Events():
			if !ok {
				return errors.New("feed event channel closed")
			}
			u.handle(ctx, ev)
		case err, ok := <-u.adapter.Errors():
			if !ok {
				return errors.New("feed error channel closed")
			}
			u.logger.Warn().Err(err).Msg("feed error; invalidating book")
			u.book.Invalidate()
			u.requestResync(ctx, "feed_error")
		case <-staleness.C:
			if at := u.book.UpdatedAt(); !at.IsZero() {
				metrics.BookStalenessMs.Set(float64(time.Since(at).Milliseconds()))
			}
		}
	}
}

func (u *Updater) handle(ctx context.Context, ev Event) {
	if ev.Snapshot {
		err := u.book.ApplySnapshot(ev.Bids, ev.Asks, ev.Sequence)
		if err != nil {
			u.report(ctx, ev, err)
			return
		}
		metrics.BookUpdatesTotal.WithLabelValues("snapshot").Inc()
		u.observeBook()
		u.logger.Info().Int64("seq", ev.Sequence).Int("bids", len(ev.Bids)).Int("asks", len(ev.Asks)).Msg("snapshot applied")
		return
	}

	err := u.book.ApplyDeltas(ev.Sequence, ev.Bids, ev.Asks)
	if err != nil {
		u.report(ctx, ev, err)
		return
	}
	metrics.BookUpdatesTotal.WithLabelValues("delta").Inc()
	u.observeBook()
	if ev.HasChecksum {
		u.verifyChecksum(ctx, ev)
	}
}

// verifyChecksum checks the applied book against the venue checksum
// carried on the event. Mismatch means the book diverged in a way the
// sequence contract could not catch; only a fresh snapshot recovers it.
func (u *Updater) verifyChecksum(ctx context.Context, ev Event) {
	v, ok := u.adapter.(ChecksumVerifier)
	if !ok {
		return
	}
	snap, err := u.book.Snapshot()
	if err != nil {
		return
	}
	if v.VerifyBookChecksum(snap.Bids, snap.Asks, ev.Checksum) {
		return
	}
	metrics.ChecksumMismatchesTotal.Inc()
	u.logger.Warn().Int64("seq", ev.Sequence).Msg("book checksum mismatch; invalidating")
	u.book.Invalidate()
	u.requestResync(ctx, "checksum_mismatch")
}

func (u *Updater) report(ctx context.Context, ev Event, err error) {
	var gap *book.SequenceGapError
	var crossed *book.CrossedBookError
	switch {
	case errors.As(err, &gap):
		metrics.SequenceGapsTotal.Inc()
		u.logger.Warn().Int64("expected", gap.Expected).Int64("got", gap.Got).Msg("sequence gap; book stale")
		u.requestResync(ctx, "sequence_gap")
	case errors.As(err, &crossed):
		metrics.CrossedBooksTotal.Inc()
		u.logger.Warn().Str("best_bid", crossed.BestBid).Str("best_ask", crossed.BestAsk).Msg("crossed book; book stale")
		u.requestResync(ctx, "crossed_book")
	case errors.Is(err, book.ErrBookNotSynced):
		metrics.StaleDropsTotal.Inc()
		u.logger.Debug().Int64("seq", ev.Sequence).Msg("delta dropped while stale")
		u.requestResync(ctx, "stale_delta")
	case errors.Is(err, book.ErrInvalidLevel):
		metrics.InvalidLevelsTotal.Inc()
		u.logger.Warn().Err(err).Int64("seq", ev.Sequence).Msg("update rejected")
	default:
		u.logger.Error().Err(err).Int64("seq", ev.Sequence).Msg("unexpected book error")
	}
}

func (u *Updater) requestResync(ctx context.Context, reason string) {
	if !u.resync.Allow(time.Now()) {
		metrics.ResyncThrottledTotal.Inc()
		return
	}
	metrics.ResyncRequestsTotal.Inc()
	u.logger.Info().Str("reason", reason).Msg("requesting snapshot resync")
	if err := u.adapter.RequestSnapshot(ctx); err != nil {
		u.logger.Error().Err(err).Msg("snapshot request failed")
	}
}

func (u *Updater) observeBook() {
	bids, asks := u.book.Depth()
	metrics.BookLevels.WithLabelValues("bid").Set(float64(bids))
	metrics.BookLevels.WithLabelValues("ask").Set(float64(asks))
	metrics.BookLastSequence.Set(float64(u.book.LastSequence()))
	if bb, ok := u.book.BestBid(); ok {
		metrics.BestBid.Set(bb.InexactFloat64())
	}
	if ba, ok := u.book.BestAsk(); ok {
		metrics.BestAsk.Set(ba.InexactFloat64())
	}
}
