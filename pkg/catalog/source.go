package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/erp-storefront/pkg/erp"
)

// DefaultPriceList is the base price list when none is configured.
const DefaultPriceList = "Standard Selling"

// SourceConfig configures a Source.
type SourceConfig struct {
	// PriceList holds base prices (default DefaultPriceList)
	PriceList string

	// SalePriceList optionally holds sale prices
	SalePriceList string

	// Currency is used when a price row has none
	Currency string

	// Scan bounds full listings
	Scan erp.FetchAllOptions
}

// Source reads catalog data from the ERP. It implements Upstream.
type Source struct {
	client *erp.Client
	config SourceConfig
}

// NewSource creates a Source over client.
func NewSource(client *erp.Client, cfg SourceConfig) *Source {
	if cfg.PriceList == "" {
		cfg.PriceList = DefaultPriceList
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Scan.PageSize <= 0 {
		cfg.Scan.PageSize = erp.DefaultFetchAllOptions().PageSize
	}
	return &Source{client: client, config: cfg}
}

// listableFilters select templates and simple items, never variants.
func listableFilters() []erp.Filter {
	return []erp.Filter{
		{Field: "variant_of", Operator: "is", Value: "not set"},
		erp.Eq("disabled", 0),
	}
}

// FetchPrice resolves the base and optional sale price of id. An item with
// no price row resolves to a zero price, not an error.
func (s *Source) FetchPrice(ctx context.Context, id string) (PriceInfo, error) {
	info := PriceInfo{Currency: s.config.Currency}

	base, found, err := s.priceRow(ctx, id, s.config.PriceList)
	if err != nil {
		return PriceInfo{}, err
	}
	if found {
		info.BasePrice = float64(base.PriceListRate)
		if base.Currency != "" {
			info.Currency = base.Currency
		}
	}

	if s.config.SalePriceList != "" {
		sale, found, err := s.priceRow(ctx, id, s.config.SalePriceList)
		if err != nil {
			return PriceInfo{}, err
		}
		if found {
			info.SalePrice = float64(sale.PriceListRate)
		}
	}

	return info, nil
}

func (s *Source) priceRow(ctx context.Context, id, priceList string) (erp.ItemPrice, bool, error) {
	rows, err := erp.ListAs[erp.ItemPrice](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceItemPrice,
		Filters:  []erp.Filter{erp.Eq("item_code", id), erp.Eq("price_list", priceList)},
		Fields:   erp.ItemPriceFields,
		Limit:    1,
	})
	if err != nil {
		return erp.ItemPrice{}, false, fmt.Errorf("fetch %s price of %q: %w", priceList, id, err)
	}
	if len(rows) == 0 {
		return erp.ItemPrice{}, false, nil
	}
	return rows[0], true, nil
}

// FetchStock resolves the stock of id by warehouse.
func (s *Source) FetchStock(ctx context.Context, id string) (StockLevel, error) {
	bins, err := s.Bins(ctx, id)
	if err != nil {
		return StockLevel{}, err
	}
	return StockFromBins(bins), nil
}

// Bins returns the raw stock records of id.
func (s *Source) Bins(ctx context.Context, id string) ([]erp.Bin, error) {
	bins, err := erp.ListAs[erp.Bin](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceBin,
		Filters:  []erp.Filter{erp.Eq("item_code", id)},
		Fields:   erp.BinFields,
		Limit:    s.config.Scan.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch stock of %q: %w", id, err)
	}
	return bins, nil
}

// ListItems returns one window of listable items ordered by name.
func (s *Source) ListItems(ctx context.Context, offset, limit int) ([]erp.Item, error) {
	items, err := erp.ListAs[erp.Item](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceItem,
		Filters:  listableFilters(),
		Fields:   erp.ItemFields,
		OrderBy:  "item_name asc",
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list items at %d: %w", offset, err)
	}
	return items, nil
}

// ItemNames scans the names of every listable item.
func (s *Source) ItemNames(ctx context.Context) ([]string, error) {
	rows, err := erp.FetchAllAs[erp.Item](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceItem,
		Filters:  listableFilters(),
		Fields:   []string{"name"},
		OrderBy:  "item_name asc",
	}, s.config.Scan)
	if err != nil {
		return nil, fmt.Errorf("scan item names: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// Variants returns the enabled variants of template.
func (s *Source) Variants(ctx context.Context, template string) ([]erp.Item, error) {
	items, err := erp.ListAs[erp.Item](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceItem,
		Filters:  []erp.Filter{erp.Eq("variant_of", template), erp.Eq("disabled", 0)},
		Fields:   erp.ItemFields,
		OrderBy:  "item_name asc",
		Limit:    s.config.Scan.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch variants of %q: %w", template, err)
	}
	return items, nil
}

// Item fetches one item by name.
func (s *Source) Item(ctx context.Context, id string) (erp.Item, error) {
	item, err := erp.GetAs[erp.Item](ctx, s.client, erp.ResourceItem, strings.TrimSpace(id))
	if err != nil {
		return erp.Item{}, fmt.Errorf("fetch item %q: %w", id, err)
	}
	return item, nil
}

// ItemGroups scans every item group.
func (s *Source) ItemGroups(ctx context.Context) ([]erp.ItemGroup, error) {
	groups, err := erp.FetchAllAs[erp.ItemGroup](ctx, s.client, erp.ListRequest{
		Resource: erp.ResourceItemGroup,
		Fields:   erp.ItemGroupFields,
		OrderBy:  "name asc",
	}, s.config.Scan)
	if err != nil {
		return nil, fmt.Errorf("scan item groups: %w", err)
	}
	return groups, nil
}
