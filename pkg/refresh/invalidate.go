// Package refresh invalidates cached entries after entity mutations and
// warms the caches at startup.
//
// Invalidation is coarse: removing a product drops its detail entry, the
// full product list and its price and stock lookups, but listing pages
// that contain the product are left to expire on their own TTL.
package refresh

import (
	"fmt"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/rs/zerolog"
)

// Entities accepted by Invalidate.
const (
	EntityProduct = "product"
	EntityStock   = "stock"
	EntityAll     = "all"
)

// Stores are the caches touched by entity invalidation.
type Stores struct {
	Products cache.Invalidatable
	Names    cache.Invalidatable
	Prices   cache.Invalidatable
	Stock    cache.Invalidatable
}

// Invalidator removes cached entries tied to mutated entities.
type Invalidator struct {
	stores Stores
	all    []cache.Invalidatable
	logger zerolog.Logger
}

// NewInvalidator creates an invalidator. InvalidateAll clears the entity
// stores and every extra store.
func NewInvalidator(stores Stores, extra ...cache.Invalidatable) *Invalidator {
	var all []cache.Invalidatable
	for _, s := range []cache.Invalidatable{stores.Products, stores.Names, stores.Prices, stores.Stock} {
		if s != nil {
			all = append(all, s)
		}
	}
	for _, s := range extra {
		if s != nil {
			all = append(all, s)
		}
	}
	return &Invalidator{
		stores: stores,
		all:    all,
		logger: logging.NewLogger("invalidator"),
	}
}

// InvalidateProduct removes the product entry, the full product list and
// the product's price and stock lookups.
func (inv *Invalidator) InvalidateProduct(id string) {
	deleteKey(inv.stores.Products, cache.ProductKey(id))
	deleteKey(inv.stores.Names, cache.KeyProductsAll)
	deleteKey(inv.stores.Prices, cache.PriceKey(id))
	deleteKey(inv.stores.Stock, cache.StockKey(id))

	inv.logger.Debug().Str("id", id).Msg("Product invalidated")
}

// InvalidateStock removes the stock lookups of ids.
func (inv *Invalidator) InvalidateStock(ids ...string) {
	for _, id := range ids {
		deleteKey(inv.stores.Stock, cache.StockKey(id))
	}
	inv.logger.Debug().Strs("ids", ids).Msg("Stock invalidated")
}

// InvalidateAll clears every registered store.
func (inv *Invalidator) InvalidateAll() {
	for _, s := range inv.all {
		s.Clear()
	}
	inv.logger.Info().Int("stores", len(inv.all)).Msg("All caches cleared")
}

// Invalidate dispatches on entity. product and stock require an id.
func (inv *Invalidator) Invalidate(entity, id string) error {
	switch entity {
	case EntityProduct:
		if id == "" {
			return fmt.Errorf("entity %q requires an id", entity)
		}
		inv.InvalidateProduct(id)
	case EntityStock:
		if id == "" {
			return fmt.Errorf("entity %q requires an id", entity)
		}
		inv.InvalidateStock(id)
	case EntityAll:
		inv.InvalidateAll()
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
	return nil
}

func deleteKey(s cache.Invalidatable, key string) {
	if s != nil {
		s.Delete(key)
	}
}
