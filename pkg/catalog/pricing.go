package catalog

import "github.com/Sternrassler/erp-storefront/pkg/erp"

// EffectivePrice returns sale if positive, else base if positive, else 0.
func EffectivePrice(sale, base float64) float64 {
	if sale > 0 {
		return sale
	}
	if base > 0 {
		return base
	}
	return 0
}

// ComputePriceRange returns the min/max over the positive prices, or nil
// when there are none.
func ComputePriceRange(prices []float64) *PriceRange {
	var r *PriceRange
	for _, p := range prices {
		if p <= 0 {
			continue
		}
		if r == nil {
			r = &PriceRange{Min: p, Max: p}
			continue
		}
		if p < r.Min {
			r.Min = p
		}
		if p > r.Max {
			r.Max = p
		}
	}
	return r
}

// StockFromBins groups bins by warehouse. A null actual_qty counts as 0.
func StockFromBins(bins []erp.Bin) StockLevel {
	level := StockLevel{ByWarehouse: make(map[string]float64, len(bins))}
	for _, b := range bins {
		level.ByWarehouse[b.Warehouse] += float64(b.ActualQty)
	}
	return level
}

// TotalStock sums actual_qty over bins.
func TotalStock(bins []erp.Bin) float64 {
	total := 0.0
	for _, b := range bins {
		total += float64(b.ActualQty)
	}
	return total
}
