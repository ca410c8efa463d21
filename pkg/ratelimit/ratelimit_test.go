package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNewBucketIsFull(t *testing.T) {
	b := New(50, 100)
	if got := b.Tokens(); got != 100 {
		t.Fatalf("Tokens = %d, want 100", got)
	}
	if b.Capacity() != 100 || b.Rate() != 50 {
		t.Fatalf("Capacity/Rate = %d/%d, want 100/50", b.Capacity(), b.Rate())
	}
}

func TestExhaustThenReject(t *testing.T) {
	clk := newFakeClock()
	b := New(50, 100, WithClock(clk.Now))

	for i := range 100 {
		if !b.Allow() {
			t.Fatalf("Allow #%d rejected, want admitted", i+1)
		}
	}
	if b.Allow() {
		t.Fatalf("Allow #101 admitted with empty bucket")
	}
	// 10ms at 50/s is half a token: still nothing.
	clk.Advance(10 * time.Millisecond)
	if b.Allow() {
		t.Fatalf("admitted after sub-token elapsed time")
	}
}

func TestRefillAfterOneInterval(t *testing.T) {
	clk := newFakeClock()
	b := New(50, 100, WithClock(clk.Now))
	for range 100 {
		b.Allow()
	}
	clk.Advance(time.Second/50 + time.Millisecond)
	if !b.Allow() {
		t.Fatalf("want admit after 1/rate seconds")
	}
	if b.Allow() {
		t.Fatalf("want exactly one token after 1/rate seconds")
	}
}

func TestFractionalCreditIsRetained(t *testing.T) {
	clk := newFakeClock()
	b := New(10, 5, WithClock(clk.Now))
	for range 5 {
		b.Allow()
	}
	// Calls 40ms apart each add 0.4 of a token; the third one sees 1.2
	// tokens only because lastRefill did not move on the first two.
	for i := range 2 {
		clk.Advance(40 * time.Millisecond)
		if b.Allow() {
			t.Fatalf("call %d admitted before a whole token accrued", i)
		}
	}
	clk.Advance(40 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("fractional credit was lost across calls")
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	clk := newFakeClock()
	b := New(500, 1000, WithClock(clk.Now))
	b.Allow()
	clk.Advance(24 * time.Hour)
	b.Allow()
	if got := b.Tokens(); got != 999 {
		t.Fatalf("Tokens = %d, want 999 (clamped to capacity then one consumed)", got)
	}
}

func TestBurstThenRecover(t *testing.T) {
	clk := newFakeClock()
	b := New(50, 100, WithClock(clk.Now))

	admitted := 0
	for range 150 {
		if b.Allow() {
			admitted++
		}
	}
	if admitted != 100 {
		t.Fatalf("admitted %d of burst, want 100", admitted)
	}

	clk.Advance(2 * time.Second)
	admitted = 0
	for range 150 {
		if b.Allow() {
			admitted++
		}
	}
	if admitted < 100 {
		t.Fatalf("admitted %d after 2s idle, want >= 100", admitted)
	}
}

func TestRealClockRefill(t *testing.T) {
	b := New(100, 1)
	if !b.Allow() {
		t.Fatalf("first Allow rejected")
	}
	if b.Allow() {
		t.Fatalf("second Allow admitted with capacity 1")
	}
	// Small buffer beyond 1/rate to avoid flakiness in CI
	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("Allow rejected after refill interval")
	}
}

func TestConcurrentAllow_NoOverdraw(t *testing.T) {
	clk := newFakeClock()
	b := New(1, 1000, WithClock(clk.Now))

	var wg sync.WaitGroup
	var admitted atomic.Int64
	const G = 16
	const N = 200

	for range G {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range N {
				if b.Allow() {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 1000 {
		t.Fatalf("admitted = %d, want exactly capacity 1000", got)
	}
	if b.Tokens() != 0 {
		t.Fatalf("Tokens = %d, want 0", b.Tokens())
	}
}
