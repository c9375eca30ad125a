package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/rs/zerolog"
)

// Persisted namespaces mirrored from the storefront's browser caches.
const (
	NamespaceProducts   = "products-cache"
	NamespaceImages     = "images-cache"
	NamespaceCategories = "categories-cache"
)

// Backend stores one serialized namespace blob.
type Backend interface {
	// Load returns the blob for namespace, or ErrCacheMiss when absent.
	Load(ctx context.Context, namespace string) ([]byte, error)

	// Save replaces the blob for namespace.
	Save(ctx context.Context, namespace string, payload []byte) error
}

// Ensure Persisted implements Store
var _ Store[int] = (*Persisted[int])(nil)

// Persisted is a Memory store whose contents are written to a Backend as a
// single JSON map after every mutation, or after Options.SaveDelay when
// saves are batched. Reads are not saved on their own; access stamps reach
// the backend with the next save.
type Persisted[T any] struct {
	mem         *Memory[T]
	backend     Backend
	namespace   string
	saveDelay   time.Duration
	saveTimeout time.Duration
	logger      zerolog.Logger

	// saveMu orders snapshot+write so blobs reach the backend in order
	saveMu sync.Mutex

	// mu guards the pending delayed save
	mu    sync.Mutex
	dirty bool
	timer *time.Timer
}

// wireEntry is the serialized entry format. Pointer fields let the decoder
// tell a missing field from a zero value.
type wireEntry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp *int64          `json:"timestamp"`
	TTL       *int64          `json:"ttl"`

	// LastAccess is optional; entries without it count as accessed when
	// created
	LastAccess *int64 `json:"lastAccess,omitempty"`
}

// NewPersisted loads namespace from backend and returns a store seeded with
// its live entries. Corrupt or expired entries are dropped; a backend load
// failure yields an empty store rather than an error.
func NewPersisted[T any](ctx context.Context, backend Backend, namespace string, opts Options) (*Persisted[T], error) {
	if backend == nil {
		return nil, fmt.Errorf("cache backend is required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("cache namespace is required")
	}
	if opts.Name == "" {
		opts.Name = namespace
	}

	p := &Persisted[T]{
		mem:         NewMemory[T](opts),
		backend:     backend,
		namespace:   namespace,
		saveDelay:   opts.SaveDelay,
		saveTimeout: 2 * time.Second,
		logger:      logging.NewCacheLogger(namespace),
	}

	if err := p.load(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the store name.
func (p *Persisted[T]) Name() string {
	return p.mem.Name()
}

// Namespace returns the persisted namespace.
func (p *Persisted[T]) Namespace() string {
	return p.namespace
}

// Get returns the value for key if present and not expired.
func (p *Persisted[T]) Get(key string) (T, bool) {
	return p.mem.Get(key)
}

// Has reports whether key holds a live value.
func (p *Persisted[T]) Has(key string) bool {
	return p.mem.Has(key)
}

// Set stores value with the default TTL and persists the namespace.
func (p *Persisted[T]) Set(key string, value T) {
	p.mem.Set(key, value)
	p.changed()
}

// SetWithTTL stores value with an explicit TTL and persists the namespace.
func (p *Persisted[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	p.mem.SetWithTTL(key, value, ttl)
	p.changed()
}

// Delete removes key and persists the namespace.
func (p *Persisted[T]) Delete(key string) {
	p.mem.Delete(key)
	p.changed()
}

// Clear removes every entry and persists the empty namespace.
func (p *Persisted[T]) Clear() {
	p.mem.Clear()
	p.changed()
}

// Cleanup removes expired entries and persists the pruned namespace.
func (p *Persisted[T]) Cleanup() int {
	removed := p.mem.Cleanup()
	p.changed()
	return removed
}

// Flush writes the current contents to the backend now, replacing any
// pending delayed save.
func (p *Persisted[T]) Flush() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.dirty = false
	p.mu.Unlock()

	p.save()
}

// changed saves right away, or schedules one save for every mutation made
// within saveDelay.
func (p *Persisted[T]) changed() {
	if p.saveDelay <= 0 {
		p.save()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dirty = true
	if p.timer == nil {
		p.timer = time.AfterFunc(p.saveDelay, p.savePending)
	}
}

func (p *Persisted[T]) savePending() {
	p.mu.Lock()
	p.timer = nil
	dirty := p.dirty
	p.dirty = false
	p.mu.Unlock()

	if dirty {
		p.save()
	}
}

// Len returns the number of entries in the in-memory mirror.
func (p *Persisted[T]) Len() int {
	return p.mem.Len()
}

// Stats returns diagnostic counters of the in-memory mirror.
func (p *Persisted[T]) Stats() Stats {
	return p.mem.Stats()
}

func (p *Persisted[T]) load(ctx context.Context) error {
	payload, err := p.backend.Load(ctx, p.namespace)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		persistErrors.WithLabelValues(p.Name(), "load").Inc()
		p.logger.Warn().Err(err).Msg("Failed to load persisted cache, starting empty")
		return nil
	}

	entries, corrupt, expired := decodeNamespace[T](payload, p.mem.opts.Clock())
	if corrupt > 0 {
		persistErrors.WithLabelValues(p.Name(), "decode").Add(float64(corrupt))
		p.logger.Warn().Int("corrupt", corrupt).Msg("Discarded corrupt persisted cache entries")
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	// Least recently used first so restore rebuilds the LRU order
	sort.Slice(keys, func(i, j int) bool {
		a, b := entries[keys[i]], entries[keys[j]]
		if a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return keys[i] < keys[j]
		}
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	})
	for _, k := range keys {
		p.mem.restore(k, entries[k])
	}

	p.logger.Debug().
		Int("entries", len(entries)).
		Int("expired", expired).
		Msg("Loaded persisted cache")

	return nil
}

// save serializes the current entries and writes them to the backend.
func (p *Persisted[T]) save() {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	payload, err := encodeNamespace(p.mem.snapshot(), p.mem.opts.Clock())
	if err != nil {
		persistErrors.WithLabelValues(p.Name(), "save").Inc()
		p.logger.Warn().Err(err).Msg("Failed to encode persisted cache")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.saveTimeout)
	defer cancel()

	if err := p.backend.Save(ctx, p.namespace, payload); err != nil {
		persistErrors.WithLabelValues(p.Name(), "save").Inc()
		p.logger.Warn().Err(err).Msg("Failed to save persisted cache")
	}
}

func encodeNamespace[T any](nodes []node[T], now time.Time) ([]byte, error) {
	out := make(map[string]wireEntry, len(nodes))
	for _, n := range nodes {
		if n.entry.IsExpired(now) {
			continue
		}
		value, err := json.Marshal(n.entry.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", n.key, err)
		}
		ts := n.entry.CreatedAt.UnixMilli()
		ttl := n.entry.TTL.Milliseconds()
		access := n.entry.LastAccessedAt.UnixMilli()
		out[n.key] = wireEntry{Value: value, Timestamp: &ts, TTL: &ttl, LastAccess: &access}
	}
	return json.Marshal(out)
}

// decodeNamespace parses a namespace blob, returning the live entries and
// the number of entries discarded as corrupt or expired.
func decodeNamespace[T any](payload []byte, now time.Time) (entries map[string]Entry[T], corrupt, expired int) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		// The whole namespace is unusable
		return map[string]Entry[T]{}, 1, 0
	}

	entries = make(map[string]Entry[T], len(raw))
	for key, msg := range raw {
		entry, err := decodeEntry[T](msg)
		if err != nil {
			corrupt++
			continue
		}
		if entry.IsExpired(now) {
			expired++
			continue
		}
		entries[key] = entry
	}
	return entries, corrupt, expired
}

func decodeEntry[T any](msg json.RawMessage) (Entry[T], error) {
	var entry Entry[T]

	var w wireEntry
	if err := json.Unmarshal(msg, &w); err != nil {
		return entry, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if len(w.Value) == 0 || bytes.Equal(w.Value, []byte("null")) {
		return entry, fmt.Errorf("%w: missing value", ErrCorruptEntry)
	}
	if w.Timestamp == nil || w.TTL == nil {
		return entry, fmt.Errorf("%w: missing timestamp or ttl", ErrCorruptEntry)
	}

	var value T
	if err := json.Unmarshal(w.Value, &value); err != nil {
		return entry, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}

	entry.Value = value
	entry.CreatedAt = time.UnixMilli(*w.Timestamp)
	entry.TTL = time.Duration(*w.TTL) * time.Millisecond
	entry.LastAccessedAt = entry.CreatedAt
	if w.LastAccess != nil && *w.LastAccess > *w.Timestamp {
		entry.LastAccessedAt = time.UnixMilli(*w.LastAccess)
	}
	return entry, nil
}
