package refresh

import (
	"testing"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/catalog"
)

type testStores struct {
	products *cache.Memory[catalog.CatalogItem]
	names    *cache.Memory[[]string]
	prices   *cache.Memory[catalog.PriceInfo]
	stock    *cache.Memory[catalog.StockLevel]
	pages    *cache.Memory[int]
}

func newTestInvalidator() (*Invalidator, testStores) {
	s := testStores{
		products: cache.NewMemory[catalog.CatalogItem](cache.Options{Name: "products"}),
		names:    cache.NewMemory[[]string](cache.Options{Name: "names"}),
		prices:   cache.NewMemory[catalog.PriceInfo](cache.Options{Name: "prices"}),
		stock:    cache.NewMemory[catalog.StockLevel](cache.Options{Name: "stock"}),
		pages:    cache.NewMemory[int](cache.Options{Name: "pages"}),
	}
	inv := NewInvalidator(Stores{
		Products: s.products,
		Names:    s.names,
		Prices:   s.prices,
		Stock:    s.stock,
	}, s.pages)

	s.products.Set(cache.ProductKey("A"), catalog.CatalogItem{ID: "A"})
	s.products.Set(cache.ProductKey("B"), catalog.CatalogItem{ID: "B"})
	s.names.Set(cache.KeyProductsAll, []string{"A", "B"})
	s.prices.Set(cache.PriceKey("A"), catalog.PriceInfo{BasePrice: 1})
	s.stock.Set(cache.StockKey("A"), catalog.StockLevel{})
	s.stock.Set(cache.StockKey("B"), catalog.StockLevel{})
	s.pages.Set(cache.ProductsPageKey(1, 12), 1)
	return inv, s
}

func TestInvalidateProduct(t *testing.T) {
	inv, s := newTestInvalidator()

	inv.InvalidateProduct("A")

	if s.products.Has(cache.ProductKey("A")) {
		t.Error("product-A should be removed")
	}
	if !s.products.Has(cache.ProductKey("B")) {
		t.Error("product-B should survive")
	}
	if s.names.Has(cache.KeyProductsAll) {
		t.Error("products-all should be removed")
	}
	if s.prices.Has(cache.PriceKey("A")) || s.stock.Has(cache.StockKey("A")) {
		t.Error("price and stock of A should be removed")
	}
	if !s.pages.Has(cache.ProductsPageKey(1, 12)) {
		t.Error("listing pages should expire on their own TTL")
	}
}

func TestInvalidateStock(t *testing.T) {
	inv, s := newTestInvalidator()

	inv.InvalidateStock("A", "B")

	if s.stock.Stats().Size != 0 {
		t.Errorf("stock size = %d, want 0", s.stock.Stats().Size)
	}
	if !s.prices.Has(cache.PriceKey("A")) {
		t.Error("prices should not be touched")
	}
}

func TestInvalidateAll(t *testing.T) {
	inv, s := newTestInvalidator()

	inv.InvalidateAll()

	for name, size := range map[string]int{
		"products": s.products.Stats().Size,
		"names":    s.names.Stats().Size,
		"prices":   s.prices.Stats().Size,
		"stock":    s.stock.Stats().Size,
		"pages":    s.pages.Stats().Size,
	} {
		if size != 0 {
			t.Errorf("%s size = %d, want 0", name, size)
		}
	}
}

func TestInvalidate_Dispatch(t *testing.T) {
	tests := []struct {
		entity  string
		id      string
		wantErr bool
	}{
		{EntityProduct, "A", false},
		{EntityProduct, "", true},
		{EntityStock, "B", false},
		{EntityStock, "", true},
		{EntityAll, "", false},
		{"order", "1", true},
	}

	for _, tt := range tests {
		inv, _ := newTestInvalidator()
		err := inv.Invalidate(tt.entity, tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("Invalidate(%q, %q) error = %v, wantErr %v", tt.entity, tt.id, err, tt.wantErr)
		}
	}
}

func TestNewInvalidator_NilStores(t *testing.T) {
	inv := NewInvalidator(Stores{}, nil)

	inv.InvalidateProduct("A")
	inv.InvalidateStock("A")
	inv.InvalidateAll()
}
