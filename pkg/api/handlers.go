package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/cart"
	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// maxBatchSize caps the item names of one batch request.
const maxBatchSize = 500

var validate = validator.New()

// BatchRequest is the body of the batch lookup routes.
type BatchRequest struct {
	ItemNames []string `json:"itemNames" validate:"required,min=1,max=500"`
}

// InvalidateRequest is the body of /cache/invalidate.
type InvalidateRequest struct {
	Entity string `json:"entity" validate:"required,oneof=product stock all"`
	ID     string `json:"id"`
}

// StockResponse is the body of /stock.
type StockResponse struct {
	Stock      []erp.Bin `json:"stock"`
	TotalStock float64   `json:"totalStock"`
	ItemCode   string    `json:"itemCode"`
}

// StatsResponse is the body of /cache/stats.
type StatsResponse struct {
	Stores    []cache.Stats    `json:"stores"`
	Telemetry metrics.Snapshot `json:"telemetry"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := s.deps.Catalog.ListProducts(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeaders(w, result.Cached, s.deps.TTLs.Products)
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, r, fmt.Errorf("%w: product id is required", errBadRequest))
		return
	}

	result, err := s.deps.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeaders(w, result.Cached, s.deps.TTLs.Products)
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeaders(w, result.Cached, s.deps.TTLs.Categories)
	writeJSON(w, r, http.StatusOK, map[string]any{"categories": result.Categories})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	item := strings.TrimSpace(r.URL.Query().Get("item"))
	if item == "" {
		writeError(w, r, fmt.Errorf("%w: query parameter item is required", errBadRequest))
		return
	}
	if s.deps.Stock == nil {
		writeError(w, r, errors.New("stock lookups are not configured"))
		return
	}

	bins, err := s.deps.Stock.Bins(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bins == nil {
		bins = []erp.Bin{}
	}
	setCacheHeaders(w, false, s.deps.TTLs.Stock)
	writeJSON(w, r, http.StatusOK, StockResponse{
		Stock:      bins,
		TotalStock: catalog.TotalStock(bins),
		ItemCode:   item,
	})
}

func (s *Server) parseBatch(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req BatchRequest
	if err := parseRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: itemNames must hold 1 to %d names", errBadRequest, maxBatchSize))
		return nil, false
	}
	return req.ItemNames, true
}

func (s *Server) handleBatchImages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil || s.deps.ImageLookup == nil {
		writeError(w, r, errors.New("image lookups are not configured"))
		return
	}
	names, ok := s.parseBatch(w, r)
	if !ok {
		return
	}

	results := s.deps.Images.BatchImages(r.Context(), names, s.deps.ImageLookup)
	setCacheHeaders(w, false, s.deps.TTLs.Images)
	writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleBatchPrices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prices == nil {
		writeError(w, r, errors.New("price lookups are not configured"))
		return
	}
	names, ok := s.parseBatch(w, r)
	if !ok {
		return
	}

	results := s.deps.Prices.BatchPrices(r.Context(), names)
	setCacheHeaders(w, false, s.deps.TTLs.Prices)
	writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checkout == nil {
		writeError(w, r, errors.New("checkout is not configured"))
		return
	}
	var req cart.Request
	if err := parseRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	invoice, err := s.deps.Checkout.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Invalidator == nil {
		writeError(w, r, errors.New("invalidation is not configured"))
		return
	}
	var req InvalidateRequest
	if err := parseRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: entity must be product, stock or all", errBadRequest))
		return
	}
	if err := s.deps.Invalidator.Invalidate(req.Entity, strings.TrimSpace(req.ID)); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"entity":  req.Entity,
		"id":      req.ID,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stores: make([]cache.Stats, 0, len(s.deps.Stores))}
	for _, st := range s.deps.Stores {
		resp.Stores = append(resp.Stores, st.Stats())
	}
	if s.deps.Telemetry != nil {
		resp.Telemetry = s.deps.Telemetry.Snapshot()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Ready))
	for _, c := range s.deps.Ready {
		if err := c.Probe(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, r, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
