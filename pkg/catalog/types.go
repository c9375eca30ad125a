package catalog

import (
	"encoding/json"
	"sort"
)

// DefaultCurrency is used when the upstream omits a currency.
const DefaultCurrency = "EUR"

// PriceInfo is the resolved price of one identifier.
type PriceInfo struct {
	BasePrice float64 `json:"basePrice"`
	SalePrice float64 `json:"salePrice,omitempty"`
	Currency  string  `json:"currency"`
}

// Effective returns the price a customer pays.
func (p PriceInfo) Effective() float64 {
	return EffectivePrice(p.SalePrice, p.BasePrice)
}

// StockLevel is the stock of one identifier by warehouse.
type StockLevel struct {
	ByWarehouse map[string]float64 `json:"byWarehouse"`
}

// Total sums the quantity over all warehouses.
func (s *StockLevel) Total() float64 {
	if s == nil {
		return 0
	}
	total := 0.0
	for _, qty := range s.ByWarehouse {
		total += qty
	}
	return total
}

// Clone returns a copy that shares no map with s.
func (s StockLevel) Clone() StockLevel {
	if s.ByWarehouse == nil {
		return s
	}
	out := StockLevel{ByWarehouse: make(map[string]float64, len(s.ByWarehouse))}
	for wh, qty := range s.ByWarehouse {
		out.ByWarehouse[wh] = qty
	}
	return out
}

// PriceRange is the min/max effective price of a variant family.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Images holds the source and the optimized URL of an item image.
type Images struct {
	Source    string `json:"source"`
	Optimized string `json:"optimized"`
}

// CatalogItem is the public shape of a product.
//
// Derived values (effective price, price range, display price, total stock)
// are computed from Price, Variants and Stock on every call and when the
// item is serialized.
type CatalogItem struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	IsVariantFamily bool          `json:"isVariantFamily"`
	Variants        []CatalogItem `json:"variants,omitempty"`

	// RawPrice is the item's own standard rate
	RawPrice float64   `json:"rawPrice"`
	Price    PriceInfo `json:"price"`
	Currency string    `json:"currency"`

	// Stock is nil when the stock lookup failed
	Stock *StockLevel `json:"stock"`

	Images Images `json:"images"`
}

// EffectivePrice applies the effective price rule, falling back to the
// item's own rate when no base price was resolved.
func (c *CatalogItem) EffectivePrice() float64 {
	base := c.Price.BasePrice
	if base <= 0 {
		base = c.RawPrice
	}
	return EffectivePrice(c.Price.SalePrice, base)
}

// PriceRange returns the variant price range, or nil when the item is not a
// family or no variant has a positive price.
func (c *CatalogItem) PriceRange() *PriceRange {
	if !c.IsVariantFamily {
		return nil
	}
	prices := make([]float64, 0, len(c.Variants))
	for i := range c.Variants {
		prices = append(prices, c.Variants[i].EffectivePrice())
	}
	return ComputePriceRange(prices)
}

// DisplayPrice is the price shown on listing cards.
func (c *CatalogItem) DisplayPrice() float64 {
	if r := c.PriceRange(); r != nil {
		return r.Min
	}
	return c.EffectivePrice()
}

// TotalStock sums the item's own stock and that of its variants. The bool
// is false when no stock value is known at all.
func (c *CatalogItem) TotalStock() (float64, bool) {
	total := 0.0
	known := false
	if c.Stock != nil {
		total += c.Stock.Total()
		known = true
	}
	for i := range c.Variants {
		if v, ok := c.Variants[i].TotalStock(); ok {
			total += v
			known = true
		}
	}
	return total, known
}

// MarshalJSON adds the derived fields.
func (c CatalogItem) MarshalJSON() ([]byte, error) {
	type plain CatalogItem
	var total *float64
	if v, ok := c.TotalStock(); ok {
		total = &v
	}
	return json.Marshal(struct {
		plain
		EffectivePrice float64     `json:"effectivePrice"`
		PriceRange     *PriceRange `json:"priceRange"`
		DisplayPrice   float64     `json:"displayPrice"`
		TotalStock     *float64    `json:"totalStock"`
	}{
		plain:          plain(c),
		EffectivePrice: c.EffectivePrice(),
		PriceRange:     c.PriceRange(),
		DisplayPrice:   c.DisplayPrice(),
		TotalStock:     total,
	})
}

// Category is a node of the item group tree.
type Category struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Parent   string     `json:"parent,omitempty"`
	IsGroup  bool       `json:"isGroup"`
	Image    string     `json:"image,omitempty"`
	Children []Category `json:"children,omitempty"`
}

// BranchFailure records one failed lookup of a batch.
type BranchFailure struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Err      error  `json:"-"`
}

// MarshalJSON includes the error text.
func (f BranchFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		ID       string `json:"id"`
		Resource string `json:"resource"`
		Error    string `json:"error"`
	}{f.ID, f.Resource, msg})
}

// Result is the merged outcome of a batch resolution. Prices and Stock
// contain exactly the distinct requested identifiers; a nil stock value
// means unknown.
type Result struct {
	Prices   map[string]PriceInfo
	Stock    map[string]*StockLevel
	Failures []BranchFailure
}

// Failed reports whether any lookup for id failed.
func (r Result) Failed(id string) bool {
	for _, f := range r.Failures {
		if f.ID == id {
			return true
		}
	}
	return false
}

// FailureFor returns the first failure recorded for id and resource.
func (r Result) FailureFor(id, resource string) (BranchFailure, bool) {
	for _, f := range r.Failures {
		if f.ID == id && f.Resource == resource {
			return f, true
		}
	}
	return BranchFailure{}, false
}

func sortFailures(failures []BranchFailure) {
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].ID == failures[j].ID {
			return failures[i].Resource < failures[j].Resource
		}
		return failures[i].ID < failures[j].ID
	})
}
