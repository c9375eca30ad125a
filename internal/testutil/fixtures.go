package testutil

import "fmt"

// Item returns a simple item document.
func Item(code, group string, rate float64) map[string]any {
	return map[string]any{
		"name":          code,
		"item_code":     code,
		"item_name":     "Item " + code,
		"description":   "Description of " + code,
		"item_group":    group,
		"image":         "/files/" + code + ".jpg",
		"has_variants":  0,
		"variant_of":    nil,
		"standard_rate": rate,
		"stock_uom":     "Nos",
		"disabled":      0,
	}
}

// Template returns a variant family document.
func Template(code, group string, rate float64) map[string]any {
	doc := Item(code, group, rate)
	doc["has_variants"] = 1
	return doc
}

// Variant returns a variant document of template.
func Variant(code, template string, rate float64) map[string]any {
	doc := Item(code, "", rate)
	doc["variant_of"] = template
	return doc
}

// Price returns an Item Price document.
func Price(code, priceList string, rate float64) map[string]any {
	return map[string]any{
		"name":            fmt.Sprintf("PRICE-%s-%s", code, priceList),
		"item_code":       code,
		"price_list":      priceList,
		"price_list_rate": rate,
		"currency":        "EUR",
	}
}

// Bin returns a stock record.
func Bin(code, warehouse string, qty any) map[string]any {
	return map[string]any{
		"item_code":     code,
		"warehouse":     warehouse,
		"actual_qty":    qty,
		"reserved_qty":  0,
		"projected_qty": qty,
	}
}

// ItemGroup returns a category document.
func ItemGroup(name, parent string, isGroup bool) map[string]any {
	flag := 0
	if isGroup {
		flag = 1
	}
	return map[string]any{
		"name":              name,
		"item_group_name":   name,
		"parent_item_group": parent,
		"is_group":          flag,
		"image":             "",
	}
}

// SeedCatalog fills m with n simple items in group "Products", each with a
// standard price of 10*(i+1) and one bin of i units.
func SeedCatalog(m *MockERP, n int) {
	m.AddDocs("Item Group", ItemGroup("All Item Groups", "", true), ItemGroup("Products", "All Item Groups", false))
	for i := 0; i < n; i++ {
		code := fmt.Sprintf("SKU-%03d", i+1)
		rate := float64(10 * (i + 1))
		m.AddDocs("Item", Item(code, "Products", rate))
		m.AddDocs("Item Price", Price(code, "Standard Selling", rate))
		m.AddDocs("Bin", Bin(code, "Stores - S", float64(i)))
	}
}
