package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/api"
	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/cart"
	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/config"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/Sternrassler/erp-storefront/pkg/metrics"
	"github.com/Sternrassler/erp-storefront/pkg/pagination"
	"github.com/Sternrassler/erp-storefront/pkg/ratelimit"
	"github.com/Sternrassler/erp-storefront/pkg/refresh"
	"github.com/redis/go-redis/v9"
)

// App holds the wired storefront services.
type App struct {
	Config       *config.Config
	Recorder     *metrics.Recorder
	Client       *erp.Client
	Source       *catalog.Source
	Aggregator   *catalog.Aggregator
	Images       *catalog.ImageResolver
	Orchestrator *pagination.Orchestrator
	Invalidator  *refresh.Invalidator
	Warmer       *refresh.Warmer
	Checkout     *cart.Checkout

	redis  *redis.Client
	sqlite *cache.SQLiteBackend
	stores []api.StatsProvider

	// persisted namespaces flushed on Close
	persisted []interface{ Flush() }
}

// NewApp builds every service from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewLogger("wire")
	app := &App{
		Config:   cfg,
		Recorder: metrics.NewRecorder(0),
	}

	backend, err := app.openBackend(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	gate := ratelimit.DefaultConfig()
	gate.Redis = app.redis
	tracker := ratelimit.NewTracker(gate, logging.NewLogger("ratelimit"))

	erpCfg := erp.DefaultConfig(cfg.ERP.Domain, cfg.ERP.APIKey, cfg.ERP.APISecret)
	erpCfg.Timeout = cfg.ERP.Timeout
	erpCfg.Retry.MaxAttempts = cfg.ERP.MaxRetries
	erpCfg.Gate = tracker
	if cfg.ERP.UserAgent != "" {
		erpCfg.UserAgent = cfg.ERP.UserAgent
	}
	app.Client, err = erp.New(erpCfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create erp client: %w", err)
	}

	app.Source = catalog.NewSource(app.Client, catalog.SourceConfig{
		PriceList:     cfg.ERP.PriceList,
		SalePriceList: cfg.ERP.SalePriceList,
		Currency:      cfg.Currency,
	})

	ttl := cfg.Cache.TTL
	prices := newMemory[catalog.PriceInfo](app, "prices", ttl.Prices)
	stock := newMemory[catalog.StockLevel](app, "stock", ttl.Stock)
	products := newMemory[catalog.CatalogItem](app, "products-detail", ttl.Products)
	names := newMemory[[]string](app, "products-all", ttl.Products)
	count := newMemory[int](app, "products-count", ttl.Products)

	pages, err := newNamespace[pagination.ProductPage](ctx, app, backend, cache.NamespaceProducts, ttl.Products)
	if err != nil {
		app.Close()
		return nil, err
	}
	categories, err := newNamespace[[]catalog.Category](ctx, app, backend, cache.NamespaceCategories, ttl.Categories)
	if err != nil {
		app.Close()
		return nil, err
	}
	imageStore, err := newNamespace[string](ctx, app, backend, cache.NamespaceImages, ttl.Images)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Aggregator, err = catalog.NewAggregator(app.Source, prices, stock, catalog.Config{
		MaxConcurrency: cfg.Aggregate.Concurrency,
		BranchTimeout:  cfg.Aggregate.BranchTimeout,
		Currency:       cfg.Currency,
		Latency:        app.Recorder,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create aggregator: %w", err)
	}

	app.Images = catalog.NewImageResolver(catalog.ImageConfig{
		BaseURL:        cfg.ERP.Domain,
		ResizeURL:      cfg.Images.ResizeURL,
		Width:          cfg.Images.Width,
		Quality:        cfg.Images.Quality,
		MaxConcurrency: cfg.Aggregate.Concurrency,
	}, imageStore)

	orchCfg := pagination.DefaultConfig()
	orchCfg.DefaultLimit = cfg.Server.PageSize
	orchCfg.CountTTL = ttl.Products
	orchCfg.VariantConcurrency = cfg.Aggregate.Concurrency
	orchCfg.Currency = cfg.Currency
	orchCfg.Latency = app.Recorder
	app.Orchestrator, err = pagination.NewOrchestrator(app.Source, app.Aggregator, app.Images, pagination.Stores{
		Pages:      pages,
		Products:   products,
		Names:      names,
		Count:      count,
		Categories: categories,
	}, orchCfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	app.Invalidator = refresh.NewInvalidator(refresh.Stores{
		Products: products,
		Names:    names,
		Prices:   prices,
		Stock:    stock,
	}, count, pages, categories, imageStore)

	warm := refresh.DefaultWarmConfig()
	warm.Pages = cfg.Warmup.Pages
	warm.Limit = cfg.Server.PageSize
	app.Warmer = refresh.NewWarmer(app.Orchestrator, warm)

	app.Checkout = cart.NewCheckout(cart.NewERPWriter(app.Client), app.Invalidator, cfg.Currency)

	logger.Info().
		Str("erp", cfg.ERP.Domain).
		Str("persist", cfg.Cache.Persist).
		Int("stores", len(app.stores)).
		Msg("Storefront wired")

	return app, nil
}

func (a *App) openBackend(ctx context.Context) (cache.Backend, error) {
	switch a.Config.Cache.Persist {
	case config.PersistRedis:
		client, err := newRedisClient(a.Config.Redis.URL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", a.Config.Redis.URL, err)
		}
		a.redis = client
		return cache.NewRedisBackend(client), nil
	case config.PersistSQLite:
		backend, err := cache.OpenSQLiteBackend(a.Config.Cache.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		a.sqlite = backend
		return backend, nil
	default:
		return nil, nil
	}
}

func newRedisClient(raw string) (*redis.Client, error) {
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func newMemory[T any](a *App, name string, ttl time.Duration) *cache.Memory[T] {
	s := cache.NewMemory[T](a.storeOptions(name, ttl))
	a.stores = append(a.stores, s)
	return s
}

// newNamespace returns a persisted store, or a memory store when no
// backend is configured.
func newNamespace[T any](ctx context.Context, a *App, backend cache.Backend, namespace string, ttl time.Duration) (cache.Store[T], error) {
	if backend == nil {
		return newMemory[T](a, namespace, ttl), nil
	}
	opts := a.storeOptions(namespace, ttl)
	opts.SaveDelay = a.Config.Cache.SaveDelay
	s, err := cache.NewPersisted[T](ctx, backend, namespace, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", namespace, err)
	}
	a.stores = append(a.stores, s)
	a.persisted = append(a.persisted, s)
	return s, nil
}

func (a *App) storeOptions(name string, ttl time.Duration) cache.Options {
	return cache.Options{
		Name:       name,
		MaxSize:    a.Config.Cache.MaxSize,
		DefaultTTL: ttl,
		Observer:   a.Recorder,
	}
}

// imageLookup returns the raw image field of an item.
func (a *App) imageLookup(ctx context.Context, name string) (string, error) {
	item, err := a.Source.Item(ctx, name)
	if err != nil {
		return "", err
	}
	return item.Image, nil
}

// Server builds the HTTP server over the wired services.
func (a *App) Server() (*api.Server, error) {
	var ready []api.Check
	if a.redis != nil {
		ready = append(ready, api.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
		})
	}

	ttl := a.Config.Cache.TTL
	return api.NewServer(api.Deps{
		Catalog:     a.Orchestrator,
		Prices:      a.Aggregator,
		Images:      a.Images,
		ImageLookup: a.imageLookup,
		Stock:       a.Source,
		Checkout:    a.Checkout,
		Invalidator: a.Invalidator,
		Telemetry:   a.Recorder,
		Stores:      a.stores,
		Ready:       ready,
		TTLs: api.TTLs{
			Products:   ttl.Products,
			Categories: ttl.Categories,
			Stock:      ttl.Stock,
			Prices:     ttl.Prices,
			Images:     ttl.Images,
		},
	})
}

// Close flushes pending cache writes and releases the cache backends.
func (a *App) Close() error {
	for _, p := range a.persisted {
		p.Flush()
	}

	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.sqlite != nil {
		errs = append(errs, a.sqlite.Close())
	}
	return errors.Join(errs...)
}
