// Package catalog assembles storefront catalog views from upstream ERP data.
//
// The Aggregator resolves prices and stock for a batch of item identifiers,
// checking the price and stock caches independently and fetching misses
// concurrently. A failed lookup for one identifier never fails the batch:
// the price defaults to 0 and the stock to unknown, and the failure is
// recorded in the Result.
//
// Pricing rules:
//
//	effective price = sale price if > 0, else base price if > 0, else 0
//	price range     = min/max over variant effective prices > 0
//	display price   = price range min, else the family's own effective price
//	total stock     = sum of actual_qty over all warehouse bins (null = 0)
//
// Usage:
//
//	agg, _ := catalog.NewAggregator(source, prices, stock, catalog.DefaultConfig())
//	res := agg.Resolve(ctx, []string{"SKU-1", "SKU-2", "SKU-1"})
//	price := res.Prices["SKU-1"].Effective()
//
// Metrics:
//   - storefront_aggregation_branches_total{resource,result}
//   - storefront_aggregation_branch_duration_seconds{resource}
//   - storefront_aggregation_failures_total{resource}
package catalog
