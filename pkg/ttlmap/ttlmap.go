package ttlmap

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key     K
	value   V
	touched time.Time
}

// Map is a mutex-guarded map whose entries go stale ttl after they were last
// touched. Entries are kept in a list ordered by touch time (front = newest),
// so Sweep only walks the expired tail.
type Map[K comparable, V any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[K]*list.Element
	ll   *list.List
}

type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock replaces time.Now as the map's time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func New[K comparable, V any](ttl time.Duration, opts ...Option) *Map[K, V] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Map[K, V]{
		ttl:  ttl,
		now:  cfg.now,
		data: make(map[K]*list.Element),
		ll:   list.New(),
	}
}

func (m *Map[K, V]) TTL() time.Duration { return m.ttl }

// Mark records key as seen now unless it was already seen less than ttl ago.
// It reports whether the key was fresh. The check and the write happen under
// one lock acquisition.
func (m *Map[K, V]) Mark(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if el, ok := m.data[key]; ok {
		e := el.Value.(*entry[K, V])
		if now.Sub(e.touched) < m.ttl {
			return false
		}
		e.touched = now
		m.ll.MoveToFront(el)
		return true
	}
	m.insert(key, *new(V), now)
	return true
}

// Touch returns the value stored under key, creating it with create if it is
// missing or stale, and refreshes its timestamp either way.
func (m *Map[K, V]) Touch(key K, create func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touch(key, create)
}

// Do is Touch followed by fn on the value, all under the map's lock.
func (m *Map[K, V]) Do(key K, create func() V, fn func(V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.touch(key, create))
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.data[key]; ok {
		e := el.Value.(*entry[K, V])
		if m.now().Sub(e.touched) < m.ttl {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.data[key]
	if ok {
		m.removeElement(el)
	}
	return ok
}

// Sweep drops every entry whose age is at least ttl and returns how many
// were removed.
func (m *Map[K, V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for el := m.ll.Back(); el != nil; el = m.ll.Back() {
		if now.Sub(el.Value.(*entry[K, V]).touched) < m.ttl {
			break
		}
		m.removeElement(el)
		n++
	}
	return n
}

// Len counts physically present entries, stale ones included.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *Map[K, V]) touch(key K, create func() V) V {
	now := m.now()
	if el, ok := m.data[key]; ok {
		e := el.Value.(*entry[K, V])
		if now.Sub(e.touched) >= m.ttl {
			e.value = create()
		}
		e.touched = now
		m.ll.MoveToFront(el)
		return e.value
	}
	return m.insert(key, create(), now)
}

func (m *Map[K, V]) insert(key K, v V, now time.Time) V {
	e := &entry[K, V]{key: key, value: v, touched: now}
	m.data[key] = m.ll.PushFront(e)
	return v
}

func (m *Map[K, V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[K, V])
	delete(m.data, e.key)
	m.ll.Remove(el)
}
