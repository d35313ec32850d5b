package mock

import (
	"context"
	"sync"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/feed"
)

// Adapter is a scripted feed for tests and dry runs. Events pushed via
// Push are delivered in order; RequestSnapshot invocations are recorded
// and optionally answered by a caller-provided hook.
type Adapter struct {
	symbol string
	events chan feed.Event
	errs   chan error

	mu         sync.Mutex
	resyncs    int
	onSnapshot func() *feed.Event
	onVerify   func(bids, asks []book.Level, want int32) bool

	closeOnce sync.Once
}

func New(symbol string) *Adapter {
	return &Adapter{
		symbol: symbol,
		events: make(chan feed.Event, 64),
		errs:   make(chan error, 8),
	}
}

func (a *Adapter) Name() string                        { return "mock" }
func (a *Adapter) Connect(ctx context.Context) error   { return nil }
func (a *Adapter) Subscribe(ctx context.Context) error { return nil }
func (a *Adapter) Events() <-chan feed.Event           { return a.events }
func (a *Adapter) Errors() <-chan error                { return a.errs }

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() { close(a.events) })
	return nil
}

// Push delivers an event as if it arrived from the venue.
func (a *Adapter) Push(ev feed.Event) {
	if ev.Symbol == "" {
		ev.Symbol = a.symbol
	}
	a.events <- ev
}

// PushError delivers a transport-level error.
func (a *Adapter) PushError(err error) { a.errs <- err }

// OnSnapshotRequest installs a hook invoked on RequestSnapshot; a
// non-nil returned event is delivered like a venue snapshot replay.
func (a *Adapter) OnSnapshotRequest(fn func() *feed.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSnapshot = fn
}

func (a *Adapter) RequestSnapshot(ctx context.Context) error {
	a.mu.Lock()
	a.resyncs++
	fn := a.onSnapshot
	a.mu.Unlock()
	if fn != nil {
		if ev := fn(); ev != nil {
			a.Push(*ev)
		}
	}
	return nil
}

// OnVerifyChecksum installs a hook backing VerifyBookChecksum; without
// one every checksum passes.
func (a *Adapter) OnVerifyChecksum(fn func(bids, asks []book.Level, want int32) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onVerify = fn
}

func (a *Adapter) VerifyBookChecksum(bids, asks []book.Level, want int32) bool {
	a.mu.Lock()
	fn := a.onVerify
	a.mu.Unlock()
	if fn == nil {
		return true
	}
	return fn(bids, asks, want)
}

// SnapshotRequests reports how many resyncs were requested.
func (a *Adapter) SnapshotRequests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resyncs
}
