package network

import (
	"sync"
	"time"
)

// TokenBucket throttles resync/snapshot requests so a flapping feed
// cannot turn into a request storm against the exchange.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

func NewTokenBucket(capacity int, rate float64) *TokenBucket {
	return &TokenBucket{capacity: capacity, tokens: float64(capacity), rate: rate, last: time.Now()}
}

func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

func (b *TokenBucket) refill(now time.Time) {
	dt := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += b.rate * dt
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}
