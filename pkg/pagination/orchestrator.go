package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	pageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_page_requests_total",
		Help: "Total assembled responses by kind and result (hit, miss, error)",
	}, []string{"kind", "result"})

	pageAssemblyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_page_assembly_duration_seconds",
		Help:    "Duration of assembling a response on cache miss",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

// ProductPage is a cached listing page.
type ProductPage = Page[catalog.CatalogItem]

// Source is the upstream read side used by the orchestrator.
type Source interface {
	ListItems(ctx context.Context, offset, limit int) ([]erp.Item, error)
	ItemNames(ctx context.Context) ([]string, error)
	Variants(ctx context.Context, template string) ([]erp.Item, error)
	Item(ctx context.Context, id string) (erp.Item, error)
	ItemGroups(ctx context.Context) ([]erp.ItemGroup, error)
}

// Resolver resolves price and stock for a batch of identifiers.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) catalog.Result
}

// Stores holds the caches the orchestrator reads and fills.
type Stores struct {
	Pages      cache.Store[ProductPage]
	Products   cache.Store[catalog.CatalogItem]
	Names      cache.Store[[]string]
	Count      cache.Store[int]
	Categories cache.Store[[]catalog.Category]
}

func (s Stores) validate() error {
	if s.Pages == nil || s.Products == nil || s.Names == nil || s.Count == nil || s.Categories == nil {
		return errors.New("all orchestrator stores are required")
	}
	return nil
}

// Config configures an Orchestrator.
type Config struct {
	// DefaultLimit is the page size when none is requested
	DefaultLimit int

	// CountTTL applies to the total count and the full name list
	CountTTL time.Duration

	// DegradedTTL applies to responses assembled with failed lookups,
	// so defaulted values are not served for the full page TTL
	DegradedTTL time.Duration

	// VariantConcurrency bounds concurrent variant lookups of one page
	VariantConcurrency int

	// ScanTimeout bounds the shared full name scan, which runs detached
	// from the caller that started it
	ScanTimeout time.Duration

	// Currency is used for defaulted prices
	Currency string

	// Latency optionally records assembly latency
	Latency catalog.LatencyObserver
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:       DefaultLimit,
		CountTTL:           30 * time.Minute,
		DegradedTTL:        2 * time.Minute,
		VariantConcurrency: 10,
		ScanTimeout:        2 * time.Minute,
		Currency:           catalog.DefaultCurrency,
	}
}

// ListResult is the response of ListProducts.
type ListResult struct {
	Products   []catalog.CatalogItem `json:"products"`
	Pagination Info                  `json:"pagination"`
	Cached     bool                  `json:"cached"`

	// LoadTime is in milliseconds
	LoadTime int64 `json:"loadTime"`
}

// ProductResult is the response of GetProduct.
type ProductResult struct {
	Product catalog.CatalogItem `json:"product"`
	Cached  bool                `json:"cached"`
}

// CategoriesResult is the response of ListCategories.
type CategoriesResult struct {
	Categories []catalog.Category `json:"categories"`
	Cached     bool               `json:"cached"`
}

// Orchestrator assembles cached catalog pages, products and categories.
type Orchestrator struct {
	source   Source
	resolver Resolver
	images   *catalog.ImageResolver
	stores   Stores
	config   Config
	scans    singleflight.Group
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator. images may be nil.
func NewOrchestrator(source Source, resolver Resolver, images *catalog.ImageResolver, stores Stores, cfg Config) (*Orchestrator, error) {
	if source == nil || resolver == nil {
		return nil, errors.New("source and resolver are required")
	}
	if err := stores.validate(); err != nil {
		return nil, err
	}

	d := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = d.DefaultLimit
	}
	if cfg.CountTTL <= 0 {
		cfg.CountTTL = d.CountTTL
	}
	if cfg.DegradedTTL <= 0 {
		cfg.DegradedTTL = d.DegradedTTL
	}
	if cfg.VariantConcurrency <= 0 {
		cfg.VariantConcurrency = d.VariantConcurrency
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = d.ScanTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = d.Currency
	}

	return &Orchestrator{
		source:   source,
		resolver: resolver,
		images:   images,
		stores:   stores,
		config:   cfg,
		logger:   logging.NewLogger("orchestrator"),
	}, nil
}

// Window clamps a requested page and limit using the configured default.
func (o *Orchestrator) Window(page, limit int) Window {
	return NewWindow(page, limit, o.config.DefaultLimit)
}

// ListProducts returns one listing page, from cache when present. On any
// fetch error nothing is cached.
func (o *Orchestrator) ListProducts(ctx context.Context, page, limit int) (ListResult, error) {
	start := time.Now()
	w := o.Window(page, limit)
	key := cache.ProductsPageKey(w.Page, w.Limit)

	if cached, ok := o.stores.Pages.Get(key); ok {
		pageRequestsTotal.WithLabelValues("page", "hit").Inc()
		return ListResult{
			Products:   cached.Items,
			Pagination: cached.Info,
			Cached:     true,
			LoadTime:   time.Since(start).Milliseconds(),
		}, nil
	}

	assembled, degraded, err := o.assemblePage(ctx, w)
	if err != nil {
		pageRequestsTotal.WithLabelValues("page", "error").Inc()
		return ListResult{}, err
	}

	store(o, o.stores.Pages, key, assembled, degraded)
	pageRequestsTotal.WithLabelValues("page", "miss").Inc()
	pageAssemblyDuration.WithLabelValues("page").Observe(time.Since(start).Seconds())
	o.observe("list_products", start)

	logger := logging.FromContext(ctx)
	logger.Debug().
		Int("page", w.Page).
		Int("limit", w.Limit).
		Int("items", len(assembled.Items)).
		Bool("degraded", degraded).
		Dur("duration", time.Since(start)).
		Msg("Page assembled")

	return ListResult{
		Products:   assembled.Items,
		Pagination: assembled.Info,
		Cached:     false,
		LoadTime:   time.Since(start).Milliseconds(),
	}, nil
}

func (o *Orchestrator) assemblePage(ctx context.Context, w Window) (ProductPage, bool, error) {
	var (
		items []erp.Item
		total int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = o.source.ListItems(gctx, w.Offset, w.Limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = o.TotalCount(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProductPage{}, false, fmt.Errorf("fetch page %d: %w", w.Page, err)
	}

	variants, err := o.fetchVariants(ctx, items)
	if err != nil {
		return ProductPage{}, false, fmt.Errorf("fetch page %d: %w", w.Page, err)
	}

	res := o.resolver.Resolve(ctx, catalog.Identifiers(items, variants))

	products := make([]catalog.CatalogItem, 0, len(items))
	for _, item := range items {
		products = append(products, catalog.ToCatalogItem(item, variants[item.Name], res, o.images, o.config.Currency))
	}

	return NewPage(products, w.Page, w.Limit, total), len(res.Failures) > 0, nil
}

// fetchVariants loads the variants of every family in items concurrently.
func (o *Orchestrator) fetchVariants(ctx context.Context, items []erp.Item) (map[string][]erp.Item, error) {
	out := make(map[string][]erp.Item)
	results := make([][]erp.Item, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.VariantConcurrency)
	for i, item := range items {
		if !item.HasVariants {
			continue
		}
		g.Go(func() error {
			v, err := o.source.Variants(gctx, item.Name)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, item := range items {
		if item.HasVariants {
			out[item.Name] = results[i]
		}
	}
	return out, nil
}

// TotalCount returns the number of listable products. The count comes from
// a full name scan and is cached together with the name list; concurrent
// callers share one scan.
func (o *Orchestrator) TotalCount(ctx context.Context) (int, error) {
	if n, ok := o.stores.Count.Get(cache.KeyProductsTotalCount); ok {
		return n, nil
	}

	names, err := o.AllNames(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// AllNames returns the names of every listable product. The scan outlives
// a cancelled caller so that waiters sharing it still get the result; a
// cancelled caller returns its own context error.
func (o *Orchestrator) AllNames(ctx context.Context) ([]string, error) {
	if names, ok := o.stores.Names.Get(cache.KeyProductsAll); ok {
		if _, counted := o.stores.Count.Get(cache.KeyProductsTotalCount); !counted {
			o.stores.Count.SetWithTTL(cache.KeyProductsTotalCount, len(names), o.config.CountTTL)
		}
		return names, nil
	}

	ch := o.scans.DoChan(cache.KeyProductsAll, func() (any, error) {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.ScanTimeout)
		defer cancel()

		names, err := o.source.ItemNames(scanCtx)
		if err != nil {
			return nil, fmt.Errorf("count products: %w", err)
		}
		o.stores.Names.SetWithTTL(cache.KeyProductsAll, names, o.config.CountTTL)
		o.stores.Count.SetWithTTL(cache.KeyProductsTotalCount, len(names), o.config.CountTTL)
		o.logger.Info().Int("total", len(names)).Msg("Product count refreshed")
		return names, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]string), nil
	}
}

// GetProduct assembles one product with its variants, from cache when
// present. Unknown products return an error matching erp.ErrNotFound.
func (o *Orchestrator) GetProduct(ctx context.Context, id string) (ProductResult, error) {
	start := time.Now()
	key := cache.ProductKey(id)

	if cached, ok := o.stores.Products.Get(key); ok {
		pageRequestsTotal.WithLabelValues("product", "hit").Inc()
		return ProductResult{Product: cached, Cached: true}, nil
	}

	item, err := o.source.Item(ctx, id)
	if err != nil {
		pageRequestsTotal.WithLabelValues("product", "error").Inc()
		return ProductResult{}, err
	}

	var variants []erp.Item
	if item.HasVariants {
		variants, err = o.source.Variants(ctx, item.Name)
		if err != nil {
			pageRequestsTotal.WithLabelValues("product", "error").Inc()
			return ProductResult{}, err
		}
	}

	ids := []string{item.Name}
	for _, v := range variants {
		ids = append(ids, v.Name)
	}
	res := o.resolver.Resolve(ctx, ids)
	product := catalog.ToCatalogItem(item, variants, res, o.images, o.config.Currency)

	store(o, o.stores.Products, key, product, len(res.Failures) > 0)
	pageRequestsTotal.WithLabelValues("product", "miss").Inc()
	pageAssemblyDuration.WithLabelValues("product").Observe(time.Since(start).Seconds())
	o.observe("get_product", start)

	return ProductResult{Product: product, Cached: false}, nil
}

// ListCategories returns the category tree, from cache when present.
func (o *Orchestrator) ListCategories(ctx context.Context) (CategoriesResult, error) {
	start := time.Now()

	if cached, ok := o.stores.Categories.Get(cache.KeyCategoriesAll); ok {
		pageRequestsTotal.WithLabelValues("categories", "hit").Inc()
		return CategoriesResult{Categories: cached, Cached: true}, nil
	}

	groups, err := o.source.ItemGroups(ctx)
	if err != nil {
		pageRequestsTotal.WithLabelValues("categories", "error").Inc()
		return CategoriesResult{}, err
	}

	tree := catalog.BuildCategoryTree(groups)
	o.stores.Categories.Set(cache.KeyCategoriesAll, tree)
	pageRequestsTotal.WithLabelValues("categories", "miss").Inc()
	o.observe("list_categories", start)

	return CategoriesResult{Categories: tree, Cached: false}, nil
}

func (o *Orchestrator) observe(operation string, start time.Time) {
	if o.config.Latency != nil {
		o.config.Latency.ObserveLatency(operation, time.Since(start))
	}
}

// store caches v under key, degraded responses with the shorter TTL.
func store[T any](o *Orchestrator, s cache.Store[T], key string, v T, degraded bool) {
	if degraded {
		s.SetWithTTL(key, v, o.config.DegradedTTL)
		return
	}
	s.Set(key, v)
}
