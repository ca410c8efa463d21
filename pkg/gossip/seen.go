package gossip

import (
	"time"

	"github.com/ryandielhenn/zephyrgossip/pkg/ttlmap"
)

// SeenCache is the set of message ids observed in the last ttl.
type SeenCache struct {
	m *ttlmap.Map[uint64, struct{}]
}

func NewSeenCache(ttl time.Duration, now func() time.Time) *SeenCache {
	return &SeenCache{m: ttlmap.New[uint64, struct{}](ttl, ttlmap.WithClock(now))}
}

// IsDuplicateOrRecord reports whether id was already seen within the ttl.
// If not, id is recorded as seen now. Two concurrent callers with the same id
// never both get false.
func (c *SeenCache) IsDuplicateOrRecord(id uint64) bool {
	return !c.m.Mark(id)
}

func (c *SeenCache) Sweep() int { return c.m.Sweep() }

func (c *SeenCache) Len() int { return c.m.Len() }
