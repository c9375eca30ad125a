package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultSampleSize is the number of latency samples kept per operation.
const DefaultSampleSize = 1000

var operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "storefront_operation_duration_seconds",
	Help:    "Latency of storefront operations",
	Buckets: prometheus.DefBuckets,
}, []string{"operation"})

var _ cache.Observer = (*Recorder)(nil)

// Recorder collects cache effectiveness counters and latency samples.
type Recorder struct {
	mu         sync.Mutex
	sampleSize int
	caches     map[string]*cacheCounters
	latencies  map[string]*ring
}

type cacheCounters struct {
	hits, misses, evictions, expirations uint64
}

// ring is a fixed-size buffer of the most recent samples.
type ring struct {
	samples []time.Duration
	next    int
	full    bool
	count   uint64
}

func (r *ring) add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.count++
}

func (r *ring) values() []time.Duration {
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	out := make([]time.Duration, n)
	copy(out, r.samples[:n])
	return out
}

// NewRecorder creates a recorder keeping sampleSize latency samples per
// operation (DefaultSampleSize when <= 0).
func NewRecorder(sampleSize int) *Recorder {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Recorder{
		sampleSize: sampleSize,
		caches:     make(map[string]*cacheCounters),
		latencies:  make(map[string]*ring),
	}
}

func (r *Recorder) counters(name string) *cacheCounters {
	c, ok := r.caches[name]
	if !ok {
		c = &cacheCounters{}
		r.caches[name] = c
	}
	return c
}

// CacheHit implements cache.Observer.
func (r *Recorder) CacheHit(name string) {
	r.mu.Lock()
	r.counters(name).hits++
	r.mu.Unlock()
}

// CacheMiss implements cache.Observer.
func (r *Recorder) CacheMiss(name string) {
	r.mu.Lock()
	r.counters(name).misses++
	r.mu.Unlock()
}

// CacheEviction implements cache.Observer.
func (r *Recorder) CacheEviction(name string) {
	r.mu.Lock()
	r.counters(name).evictions++
	r.mu.Unlock()
}

// CacheExpiration implements cache.Observer.
func (r *Recorder) CacheExpiration(name string) {
	r.mu.Lock()
	r.counters(name).expirations++
	r.mu.Unlock()
}

// ObserveLatency records one latency sample for operation.
func (r *Recorder) ObserveLatency(operation string, d time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(d.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.latencies[operation]
	if !ok {
		buf = &ring{samples: make([]time.Duration, r.sampleSize)}
		r.latencies[operation] = buf
	}
	buf.add(d)
}

// CacheSnapshot holds the counters of one cache.
type CacheSnapshot struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hitRate"`
}

// LatencySnapshot summarizes the retained samples of one operation.
type LatencySnapshot struct {
	Count uint64  `json:"count"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	MaxMs float64 `json:"maxMs"`
}

// Snapshot is a point-in-time copy of the recorder.
type Snapshot struct {
	Caches     map[string]CacheSnapshot   `json:"caches"`
	Operations map[string]LatencySnapshot `json:"operations"`
}

// Snapshot returns the current counters and latency percentiles.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Caches:     make(map[string]CacheSnapshot, len(r.caches)),
		Operations: make(map[string]LatencySnapshot, len(r.latencies)),
	}
	for name, c := range r.caches {
		cs := CacheSnapshot{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Expirations: c.expirations}
		if total := c.hits + c.misses; total > 0 {
			cs.HitRate = float64(c.hits) / float64(total)
		}
		snap.Caches[name] = cs
	}
	for op, buf := range r.latencies {
		values := buf.values()
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		snap.Operations[op] = LatencySnapshot{
			Count: buf.count,
			P50Ms: millis(percentile(values, 0.50)),
			P95Ms: millis(percentile(values, 0.95)),
			MaxMs: millis(percentile(values, 1)),
		}
	}
	return snap
}

// Reset clears all counters and samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches = make(map[string]*cacheCounters)
	r.latencies = make(map[string]*ring)
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.999999) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
