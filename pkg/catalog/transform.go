package catalog

import (
	"sort"

	"github.com/Sternrassler/erp-storefront/pkg/erp"
)

// ToCatalogItem maps an upstream item, its variants and the resolved batch
// data to the public shape. Identifiers missing from res get a zero price
// and unknown stock. images may be nil.
func ToCatalogItem(item erp.Item, variants []erp.Item, res Result, images *ImageResolver, currency string) CatalogItem {
	if currency == "" {
		currency = DefaultCurrency
	}

	out := toItem(item, res, images, currency)
	out.IsVariantFamily = bool(item.HasVariants)

	if len(variants) > 0 {
		out.Variants = make([]CatalogItem, 0, len(variants))
		for _, v := range variants {
			ci := toItem(v, res, images, currency)
			if ci.Category == "" {
				ci.Category = out.Category
			}
			if ci.Images.Source == "" {
				ci.Images = out.Images
			}
			out.Variants = append(out.Variants, ci)
		}
	}

	return out
}

func toItem(item erp.Item, res Result, images *ImageResolver, currency string) CatalogItem {
	id := item.Name

	price, ok := res.Prices[id]
	if !ok {
		price = PriceInfo{Currency: currency}
	}
	if price.Currency == "" {
		price.Currency = currency
	}

	ci := CatalogItem{
		ID:          id,
		Name:        item.ItemName,
		Description: item.Description,
		Category:    item.ItemGroup,
		RawPrice:    float64(item.StandardRate),
		Price:       price,
		Currency:    price.Currency,
		Stock:       res.Stock[id],
	}
	if images != nil {
		ci.Images = images.Resolve(item.Image)
	} else if item.Image != "" {
		ci.Images = Images{Source: item.Image, Optimized: item.Image}
	}
	return ci
}

// Identifiers returns the item names whose price and stock a page needs:
// every item followed by its variants.
func Identifiers(items []erp.Item, variants map[string][]erp.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Name)
		for _, v := range variants[item.Name] {
			ids = append(ids, v.Name)
		}
	}
	return ids
}

// BuildCategoryTree arranges item groups into a forest. Groups whose parent
// is unknown become roots. Siblings are sorted by name.
func BuildCategoryTree(groups []erp.ItemGroup) []Category {
	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g.Name] = true
	}

	children := make(map[string][]erp.ItemGroup)
	var roots []erp.ItemGroup
	for _, g := range groups {
		if g.ParentItemGroup == "" || g.ParentItemGroup == g.Name || !known[g.ParentItemGroup] {
			roots = append(roots, g)
			continue
		}
		children[g.ParentItemGroup] = append(children[g.ParentItemGroup], g)
	}

	visited := make(map[string]bool, len(groups))
	var build func(g erp.ItemGroup) Category
	build = func(g erp.ItemGroup) Category {
		visited[g.Name] = true
		c := Category{
			ID:      g.Name,
			Name:    g.ItemGroupName,
			Parent:  g.ParentItemGroup,
			IsGroup: bool(g.IsGroup),
			Image:   g.Image,
		}
		kids := children[g.Name]
		sortGroups(kids)
		for _, k := range kids {
			if visited[k.Name] {
				continue
			}
			c.Children = append(c.Children, build(k))
		}
		return c
	}

	sortGroups(roots)
	tree := make([]Category, 0, len(roots))
	for _, r := range roots {
		tree = append(tree, build(r))
	}
	return tree
}

func sortGroups(groups []erp.ItemGroup) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})
}
