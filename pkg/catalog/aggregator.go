package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Lookup resources.
const (
	ResourcePrice = "price"
	ResourceStock = "stock"
)

var (
	aggregationBranchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_aggregation_branches_total",
		Help: "Total lookups by resource and result (hit, fetched, failed)",
	}, []string{"resource", "result"})

	aggregationBranchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_aggregation_branch_duration_seconds",
		Help:    "Duration of upstream lookups by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"resource"})

	aggregationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_aggregation_failures_total",
		Help: "Total failed lookups substituted with a default by resource",
	}, []string{"resource"})
)

// Upstream resolves the price and stock of a single identifier.
type Upstream interface {
	FetchPrice(ctx context.Context, id string) (PriceInfo, error)
	FetchStock(ctx context.Context, id string) (StockLevel, error)
}

// LatencyObserver receives operation latencies.
type LatencyObserver interface {
	ObserveLatency(operation string, d time.Duration)
}

// Config configures an Aggregator.
type Config struct {
	// MaxConcurrency bounds the concurrent upstream lookups of one batch
	MaxConcurrency int

	// BranchTimeout bounds each lookup
	BranchTimeout time.Duration

	// Currency is used for defaulted prices
	Currency string

	// Latency optionally records batch latency
	Latency LatencyObserver
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		BranchTimeout:  5 * time.Second,
		Currency:       DefaultCurrency,
	}
}

// Aggregator resolves prices and stock for batches of identifiers.
type Aggregator struct {
	upstream Upstream
	prices   cache.Store[PriceInfo]
	stock    cache.Store[StockLevel]
	config   Config
	inflight singleflight.Group
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator over the given caches.
func NewAggregator(upstream Upstream, prices cache.Store[PriceInfo], stock cache.Store[StockLevel], cfg Config) (*Aggregator, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if prices == nil || stock == nil {
		return nil, fmt.Errorf("price and stock caches are required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = 5 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}

	return &Aggregator{
		upstream: upstream,
		prices:   prices,
		stock:    stock,
		config:   cfg,
		logger:   logging.NewLogger("aggregator"),
	}, nil
}

// Dedupe trims identifiers and drops blanks and duplicates, keeping the
// order of first occurrence.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Resolve returns the price and stock of every distinct identifier. Cache
// hits are used as is; misses are fetched concurrently and cached. Lookups
// run detached from ctx cancellation, each under its own timeout, and the
// call waits for all of them.
func (a *Aggregator) Resolve(ctx context.Context, ids []string) Result {
	start := time.Now()
	ids = Dedupe(ids)

	res := Result{
		Prices: make(map[string]PriceInfo, len(ids)),
		Stock:  make(map[string]*StockLevel, len(ids)),
	}

	var priceMisses, stockMisses []string
	for _, id := range ids {
		if p, ok := a.prices.Get(cache.PriceKey(id)); ok {
			res.Prices[id] = p
			aggregationBranchesTotal.WithLabelValues(ResourcePrice, "hit").Inc()
		} else {
			priceMisses = append(priceMisses, id)
		}

		if s, ok := a.stock.Get(cache.StockKey(id)); ok {
			level := s.Clone()
			res.Stock[id] = &level
			aggregationBranchesTotal.WithLabelValues(ResourceStock, "hit").Inc()
		} else {
			stockMisses = append(stockMisses, id)
		}
	}

	if len(priceMisses) > 0 || len(stockMisses) > 0 {
		a.fetchMisses(ctx, priceMisses, stockMisses, &res)
	}

	sortFailures(res.Failures)

	if a.config.Latency != nil {
		a.config.Latency.ObserveLatency("aggregate", time.Since(start))
	}
	a.logger.Debug().
		Int("ids", len(ids)).
		Int("price_misses", len(priceMisses)).
		Int("stock_misses", len(stockMisses)).
		Int("failures", len(res.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Batch resolved")

	return res
}

func (a *Aggregator) fetchMisses(ctx context.Context, priceMisses, stockMisses []string, res *Result) {
	// Branches outlive a disconnected client
	base := context.WithoutCancel(ctx)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrency)

	for _, id := range priceMisses {
		g.Go(func() error {
			price, err := a.fetchPrice(base, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Prices[id] = PriceInfo{Currency: a.config.Currency}
				res.Failures = append(res.Failures, a.recordFailure(ctx, id, ResourcePrice, err))
				return nil
			}
			res.Prices[id] = price
			return nil
		})
	}

	for _, id := range stockMisses {
		g.Go(func() error {
			level, err := a.fetchStock(base, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Stock[id] = nil
				res.Failures = append(res.Failures, a.recordFailure(ctx, id, ResourceStock, err))
				return nil
			}
			res.Stock[id] = &level
			return nil
		})
	}

	// Branches never return an error
	_ = g.Wait()
}

func (a *Aggregator) fetchPrice(ctx context.Context, id string) (PriceInfo, error) {
	v, err, shared := a.inflight.Do(ResourcePrice+":"+id, func() (any, error) {
		start := time.Now()
		bctx, cancel := context.WithTimeout(ctx, a.config.BranchTimeout)
		defer cancel()

		price, err := a.upstream.FetchPrice(bctx, id)
		aggregationBranchDuration.WithLabelValues(ResourcePrice).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if price.Currency == "" {
			price.Currency = a.config.Currency
		}
		a.prices.Set(cache.PriceKey(id), price)
		aggregationBranchesTotal.WithLabelValues(ResourcePrice, "fetched").Inc()
		return price, nil
	})
	if err != nil {
		return PriceInfo{}, err
	}
	if shared {
		a.logger.Debug().Str("id", id).Msg("Shared in-flight price lookup")
	}
	return v.(PriceInfo), nil
}

func (a *Aggregator) fetchStock(ctx context.Context, id string) (StockLevel, error) {
	v, err, _ := a.inflight.Do(ResourceStock+":"+id, func() (any, error) {
		start := time.Now()
		bctx, cancel := context.WithTimeout(ctx, a.config.BranchTimeout)
		defer cancel()

		level, err := a.upstream.FetchStock(bctx, id)
		aggregationBranchDuration.WithLabelValues(ResourceStock).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if level.ByWarehouse == nil {
			level.ByWarehouse = map[string]float64{}
		}
		a.stock.Set(cache.StockKey(id), level)
		aggregationBranchesTotal.WithLabelValues(ResourceStock, "fetched").Inc()
		return level, nil
	})
	if err != nil {
		return StockLevel{}, err
	}
	return v.(StockLevel).Clone(), nil
}

func (a *Aggregator) recordFailure(ctx context.Context, id, resource string, err error) BranchFailure {
	aggregationBranchesTotal.WithLabelValues(resource, "failed").Inc()
	aggregationFailuresTotal.WithLabelValues(resource).Inc()

	logger := logging.FromContext(ctx)
	logger.Warn().
		Err(err).
		Str("id", id).
		Str("resource", resource).
		Msg("Lookup failed, using default")

	return BranchFailure{ID: id, Resource: resource, Err: err}
}

// PriceResult is one entry of a batch price response.
type PriceResult struct {
	ItemName       string     `json:"itemName"`
	Success        bool       `json:"success"`
	Price          *PriceInfo `json:"price,omitempty"`
	EffectivePrice float64    `json:"effectivePrice"`
	Error          string     `json:"error,omitempty"`
}

// BatchPrices resolves prices for names and returns one result per input
// name, in input order.
func (a *Aggregator) BatchPrices(ctx context.Context, names []string) []PriceResult {
	res := a.Resolve(ctx, names)

	out := make([]PriceResult, 0, len(names))
	for _, name := range names {
		id := strings.TrimSpace(name)
		r := PriceResult{ItemName: name}
		if f, failed := res.FailureFor(id, ResourcePrice); failed {
			r.Error = f.Err.Error()
		} else if p, ok := res.Prices[id]; ok {
			price := p
			r.Success = true
			r.Price = &price
			r.EffectivePrice = p.Effective()
		} else {
			r.Error = "invalid item name"
		}
		out = append(out, r)
	}
	return out
}
