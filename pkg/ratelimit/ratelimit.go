package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a continuous-time token bucket with integer token accounting.
// Refill is lazy: tokens are only materialized when Allow is called, and
// lastRefill only advances once at least one whole token has accrued, so
// fractional credit carries over between calls.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   uint64
	tokens     uint64
	refillRate uint64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

type Option func(*TokenBucket)

// WithClock replaces time.Now as the bucket's time source.
func WithClock(now func() time.Time) Option {
	return func(b *TokenBucket) { b.now = now }
}

// New returns a full bucket.
func New(refillRate, capacity uint64, opts ...Option) *TokenBucket {
	b := &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastRefill = b.now()
	return b
}

// Allow reports whether one more event may happen now and consumes a token if so.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	refill := now.Sub(b.lastRefill).Seconds() * float64(b.refillRate)
	if refill >= 1.0 {
		if room := b.capacity - b.tokens; refill >= float64(room) {
			b.tokens = b.capacity
		} else {
			b.tokens += uint64(refill)
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Tokens returns the number of whole tokens left without refilling.
func (b *TokenBucket) Tokens() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

func (b *TokenBucket) Capacity() uint64 { return b.capacity }

func (b *TokenBucket) Rate() uint64 { return b.refillRate }
