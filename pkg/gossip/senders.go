package gossip

import (
	"time"

	"github.com/ryandielhenn/zephyrgossip/pkg/ratelimit"
	"github.com/ryandielhenn/zephyrgossip/pkg/ttlmap"
)

// SenderTable holds one token bucket per originating sender. An entry lives
// while the sender keeps showing up; after ttl of silence it is dropped and
// the sender starts over with a full bucket.
type SenderTable struct {
	m     *ttlmap.Map[uint64, *ratelimit.TokenBucket]
	rate  uint64
	burst uint64
	now   func() time.Time
}

func NewSenderTable(ttl time.Duration, rate, burst uint64, now func() time.Time) *SenderTable {
	return &SenderTable{
		m:     ttlmap.New[uint64, *ratelimit.TokenBucket](ttl, ttlmap.WithClock(now)),
		rate:  rate,
		burst: burst,
		now:   now,
	}
}

// Admit refreshes the sender's last-seen time, whether or not the message is
// let through, and spends one of its tokens.
func (t *SenderTable) Admit(sender uint64) bool {
	return t.m.Do(sender, t.newBucket, (*ratelimit.TokenBucket).Allow)
}

func (t *SenderTable) newBucket() *ratelimit.TokenBucket {
	return ratelimit.New(t.rate, t.burst, ratelimit.WithClock(t.now))
}

func (t *SenderTable) Sweep() int { return t.m.Sweep() }

func (t *SenderTable) Len() int { return t.m.Len() }
