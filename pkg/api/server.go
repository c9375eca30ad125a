// Package api exposes the storefront over HTTP.
//
// Routes:
//
//	GET  /products?page=&limit=   paginated catalog
//	GET  /products/{id}           product detail
//	GET  /categories              category tree
//	GET  /stock?item=             per-warehouse stock of one item
//	POST /images/batch            image URLs for many items
//	POST /prices/batch            prices for many items
//	POST /checkout                cart to Sales Invoice
//	POST /cache/invalidate        drop cached entries of an entity
//	GET  /cache/stats             store stats and telemetry snapshot
//	GET  /health, /ready, /metrics
//
// Cached reads carry X-Cache: HIT|MISS and a Cache-Control max-age derived
// from the resource TTL.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/cart"
	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/Sternrassler/erp-storefront/pkg/metrics"
	"github.com/Sternrassler/erp-storefront/pkg/pagination"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Catalog serves products and categories.
type Catalog interface {
	ListProducts(ctx context.Context, page, limit int) (pagination.ListResult, error)
	GetProduct(ctx context.Context, id string) (pagination.ProductResult, error)
	ListCategories(ctx context.Context) (pagination.CategoriesResult, error)
}

// Prices resolves prices for many items.
type Prices interface {
	BatchPrices(ctx context.Context, names []string) []catalog.PriceResult
}

// Images resolves image URLs for many items.
type Images interface {
	BatchImages(ctx context.Context, names []string, lookup catalog.ImageLookup) []catalog.ImageResult
}

// Stock reads the stock rows of one item.
type Stock interface {
	Bins(ctx context.Context, id string) ([]erp.Bin, error)
}

// Checkout submits carts.
type Checkout interface {
	Submit(ctx context.Context, req cart.Request) (erp.SalesInvoice, error)
}

// Invalidator drops cached entries of an entity.
type Invalidator interface {
	Invalidate(entity, id string) error
}

// Telemetry provides the in-process telemetry snapshot.
type Telemetry interface {
	Snapshot() metrics.Snapshot
}

// StatsProvider is any store reporting cache stats.
type StatsProvider interface {
	Stats() cache.Stats
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// TTLs drive the Cache-Control max-age of each resource.
type TTLs struct {
	Products   time.Duration
	Categories time.Duration
	Stock      time.Duration
	Prices     time.Duration
	Images     time.Duration
}

// Deps are the services behind the routes.
type Deps struct {
	Catalog     Catalog
	Prices      Prices
	Images      Images
	ImageLookup catalog.ImageLookup
	Stock       Stock
	Checkout    Checkout
	Invalidator Invalidator
	Telemetry   Telemetry
	Stores      []StatsProvider
	Ready       []Check
	TTLs        TTLs
}

// Server is the storefront HTTP server.
type Server struct {
	deps   Deps
	router *mux.Router
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a server and its routes.
func NewServer(deps Deps) (*Server, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	s := &Server{
		deps:   deps,
		logger: logging.NewLogger("api"),
	}
	s.router = s.createRouter()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestID, s.instrument)

	// Catalog
	router.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	router.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	router.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	router.HandleFunc("/stock", s.handleStock).Methods(http.MethodGet)

	// Batch lookups
	router.HandleFunc("/images/batch", s.handleBatchImages).Methods(http.MethodPost)
	router.HandleFunc("/prices/batch", s.handleBatchPrices).Methods(http.MethodPost)

	// Checkout
	router.HandleFunc("/checkout", s.handleCheckout).Methods(http.MethodPost)

	// Cache administration
	router.HandleFunc("/cache/invalidate", s.handleInvalidate).Methods(http.MethodPost)
	router.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)

	// Health checks
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting storefront HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping storefront HTTP server")
	return s.server.Shutdown(ctx)
}
