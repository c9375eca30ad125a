package cache

import (
	"container/list"
	"sync"
	"time"
)

// Ensure Memory implements Store
var _ Store[int] = (*Memory[int])(nil)

// Memory is an in-process TTL cache with LRU eviction.
//
// The LRU list is ordered by LastAccessedAt: the front is the most recently
// accessed entry, the back is the next eviction candidate.
type Memory[T any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	opts    Options
}

type node[T any] struct {
	key   string
	entry Entry[T]
}

// NewMemory creates an in-process store.
func NewMemory[T any](opts Options) *Memory[T] {
	opts = opts.withDefaults()
	return &Memory[T]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		opts:    opts,
	}
}

// Name returns the store name.
func (m *Memory[T]) Name() string {
	return m.opts.Name
}

// Get returns the value for key if present and not expired.
func (m *Memory[T]) Get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	el, ok := m.entries[key]
	if !ok {
		m.recordMiss()
		return zero, false
	}

	n := el.Value.(*node[T])
	now := m.opts.Clock()
	if n.entry.IsExpired(now) {
		m.removeElement(el)
		m.recordExpiration()
		m.recordMiss()
		return zero, false
	}

	n.entry.AccessCount++
	n.entry.LastAccessedAt = now
	m.order.MoveToFront(el)
	m.recordHit()

	return n.entry.Value, true
}

// Has reports whether key holds a live value.
func (m *Memory[T]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value with the default TTL.
func (m *Memory[T]) Set(key string, value T) {
	m.SetWithTTL(key, value, m.opts.DefaultTTL)
}

// SetWithTTL stores value with an explicit TTL.
func (m *Memory[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		if el, ok := m.entries[key]; ok {
			m.removeElement(el)
		}
		return
	}

	now := m.opts.Clock()
	m.cleanupLocked(now)

	entry := Entry[T]{
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessedAt: now,
	}

	if el, ok := m.entries[key]; ok {
		n := el.Value.(*node[T])
		entry.AccessCount = n.entry.AccessCount
		n.entry = entry
		m.order.MoveToFront(el)
		return
	}

	if len(m.entries) >= m.opts.MaxSize {
		m.evictLocked()
	}

	m.entries[key] = m.order.PushFront(&node[T]{key: key, entry: entry})
	cacheEntries.WithLabelValues(m.opts.Name).Set(float64(len(m.entries)))
}

// Delete removes key.
func (m *Memory[T]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
}

// Clear removes every entry.
func (m *Memory[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
	cacheEntries.WithLabelValues(m.opts.Name).Set(0)
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Cleanup removes all expired entries.
func (m *Memory[T]) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cleanupLocked(m.opts.Clock())
}

// Stats returns the current size, the number of expired entries not yet
// removed, and the capacity.
func (m *Memory[T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	expired := 0
	for el := m.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*node[T]).entry.IsExpired(now) {
			expired++
		}
	}

	return Stats{
		Name:         m.opts.Name,
		Size:         len(m.entries),
		ExpiredCount: expired,
		MaxSize:      m.opts.MaxSize,
	}
}

// snapshot copies all entries, least recently accessed first.
func (m *Memory[T]) snapshot() []node[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]node[T], 0, len(m.entries))
	for el := m.order.Back(); el != nil; el = el.Prev() {
		out = append(out, *el.Value.(*node[T]))
	}
	return out
}

// restore inserts an entry with its original timestamps as the most
// recently accessed one, evicting if the store is full.
func (m *Memory[T]) restore(key string, entry Entry[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeElement(el)
	}
	if len(m.entries) >= m.opts.MaxSize {
		m.evictLocked()
	}
	m.entries[key] = m.order.PushFront(&node[T]{key: key, entry: entry})
	cacheEntries.WithLabelValues(m.opts.Name).Set(float64(len(m.entries)))
}

func (m *Memory[T]) cleanupLocked(now time.Time) int {
	removed := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*node[T]).entry.IsExpired(now) {
			m.removeElement(el)
			m.recordExpiration()
			removed++
		}
		el = prev
	}
	return removed
}

func (m *Memory[T]) evictLocked() {
	el := m.order.Back()
	if el == nil {
		return
	}
	m.removeElement(el)
	cacheEvictions.WithLabelValues(m.opts.Name).Inc()
	m.opts.Observer.CacheEviction(m.opts.Name)
}

func (m *Memory[T]) removeElement(el *list.Element) {
	n := el.Value.(*node[T])
	delete(m.entries, n.key)
	m.order.Remove(el)
	cacheEntries.WithLabelValues(m.opts.Name).Set(float64(len(m.entries)))
}

func (m *Memory[T]) recordHit() {
	cacheHits.WithLabelValues(m.opts.Name).Inc()
	m.opts.Observer.CacheHit(m.opts.Name)
}

func (m *Memory[T]) recordMiss() {
	cacheMisses.WithLabelValues(m.opts.Name).Inc()
	m.opts.Observer.CacheMiss(m.opts.Name)
}

func (m *Memory[T]) recordExpiration() {
	cacheExpirations.WithLabelValues(m.opts.Name).Inc()
	m.opts.Observer.CacheExpiration(m.opts.Name)
}
