package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fixed keys for aggregate entries.
const (
	// KeyProductsTotalCount holds the total number of listable products
	KeyProductsTotalCount = "products-total-count"

	// KeyProductsAll holds the full, unpaginated product name list
	KeyProductsAll = "products-all"

	// KeyCategoriesAll holds the full category tree
	KeyCategoriesAll = "categories-all"
)

// ProductsPageKey returns the key of one assembled listing page.
// Page size is part of the key, so different sizes never share entries.
//
// Example:
//
//	products-page-1-limit-12
func ProductsPageKey(page, limit int) string {
	return fmt.Sprintf("products-page-%d-limit-%d", page, limit)
}

// ProductKey returns the key of a single assembled product.
func ProductKey(id string) string {
	return "product-" + normalizeID(id)
}

// PriceKey returns the key of one identifier's price lookup.
func PriceKey(id string) string {
	return "price-" + normalizeID(id)
}

// StockKey returns the key of one identifier's stock lookup.
func StockKey(id string) string {
	return "stock-" + normalizeID(id)
}

// ImageKey returns the key of a derived image URL. The source URL is
// hashed so arbitrary URLs produce short, stable keys.
//
// Example:
//
//	image-5e2f0c1d9a8b7c6d-w600-q80
func ImageKey(sourceURL string, width, quality int) string {
	return fmt.Sprintf("image-%016x-w%d-q%d", xxhash.Sum64String(sourceURL), width, quality)
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
