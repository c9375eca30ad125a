package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Resource types used by the storefront.
const (
	ResourceItem             = "Item"
	ResourceItemPrice        = "Item Price"
	ResourceBin              = "Bin"
	ResourceItemGroup        = "Item Group"
	ResourceSalesInvoice     = "Sales Invoice"
	ResourceSalesInvoiceItem = "Sales Invoice Item"
)

// Field lists requested from the upstream.
var (
	ItemFields      = []string{"name", "item_code", "item_name", "description", "item_group", "image", "has_variants", "variant_of", "standard_rate", "stock_uom", "disabled"}
	ItemPriceFields = []string{"name", "item_code", "price_list", "price_list_rate", "currency"}
	BinFields       = []string{"item_code", "warehouse", "actual_qty", "reserved_qty", "projected_qty"}
	ItemGroupFields = []string{"name", "item_group_name", "parent_item_group", "is_group", "image"}
)

// Flag is an upstream check field. It accepts 0/1, booleans, numeric
// strings and null.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`, "0", "false", `"0"`:
		*f = false
		return nil
	case "1", "true", `"1"`:
		*f = true
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}
	return fmt.Errorf("invalid check value %s", data)
}

// MarshalJSON encodes the flag as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Number is an upstream float that tolerates null and numeric strings.
// Null decodes as 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" || string(data) == `""` {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = Number(v)
	return nil
}

// Item is an upstream "Item" document.
type Item struct {
	Name         string `json:"name"`
	ItemCode     string `json:"item_code"`
	ItemName     string `json:"item_name"`
	Description  string `json:"description"`
	ItemGroup    string `json:"item_group"`
	Image        string `json:"image"`
	HasVariants  Flag   `json:"has_variants"`
	VariantOf    string `json:"variant_of"`
	StandardRate Number `json:"standard_rate"`
	StockUOM     string `json:"stock_uom"`
	Disabled     Flag   `json:"disabled"`
}

// Normalize fills fallbacks so every field has a defined value.
func (i *Item) Normalize() {
	i.Name = strings.TrimSpace(i.Name)
	i.ItemCode = strings.TrimSpace(i.ItemCode)
	if i.ItemCode == "" {
		i.ItemCode = i.Name
	}
	if i.Name == "" {
		i.Name = i.ItemCode
	}
	i.ItemName = strings.TrimSpace(i.ItemName)
	if i.ItemName == "" {
		i.ItemName = i.ItemCode
	}
	i.Description = strings.TrimSpace(i.Description)
	i.ItemGroup = strings.TrimSpace(i.ItemGroup)
	i.Image = strings.TrimSpace(i.Image)
	i.VariantOf = strings.TrimSpace(i.VariantOf)
	if i.StandardRate < 0 {
		i.StandardRate = 0
	}
	if i.StockUOM == "" {
		i.StockUOM = "Nos"
	}
}

// ItemPrice is an upstream "Item Price" document.
type ItemPrice struct {
	Name          string `json:"name"`
	ItemCode      string `json:"item_code"`
	PriceList     string `json:"price_list"`
	PriceListRate Number `json:"price_list_rate"`
	Currency      string `json:"currency"`
}

// Normalize fills fallbacks so every field has a defined value.
func (p *ItemPrice) Normalize() {
	p.ItemCode = strings.TrimSpace(p.ItemCode)
	p.PriceList = strings.TrimSpace(p.PriceList)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.PriceListRate < 0 {
		p.PriceListRate = 0
	}
}

// Bin is an upstream stock record for one item in one warehouse.
type Bin struct {
	ItemCode     string `json:"item_code"`
	Warehouse    string `json:"warehouse"`
	ActualQty    Number `json:"actual_qty"`
	ReservedQty  Number `json:"reserved_qty"`
	ProjectedQty Number `json:"projected_qty"`
}

// Normalize fills fallbacks so every field has a defined value.
func (b *Bin) Normalize() {
	b.ItemCode = strings.TrimSpace(b.ItemCode)
	b.Warehouse = strings.TrimSpace(b.Warehouse)
}

// ItemGroup is an upstream "Item Group" document (a category).
type ItemGroup struct {
	Name            string `json:"name"`
	ItemGroupName   string `json:"item_group_name"`
	ParentItemGroup string `json:"parent_item_group"`
	IsGroup         Flag   `json:"is_group"`
	Image           string `json:"image"`
}

// Normalize fills fallbacks so every field has a defined value.
func (g *ItemGroup) Normalize() {
	g.Name = strings.TrimSpace(g.Name)
	g.ItemGroupName = strings.TrimSpace(g.ItemGroupName)
	if g.ItemGroupName == "" {
		g.ItemGroupName = g.Name
	}
	g.ParentItemGroup = strings.TrimSpace(g.ParentItemGroup)
	g.Image = strings.TrimSpace(g.Image)
}

// SalesInvoiceItem is one invoice row.
type SalesInvoiceItem struct {
	ItemCode string  `json:"item_code"`
	ItemName string  `json:"item_name,omitempty"`
	Qty      float64 `json:"qty"`
	Rate     float64 `json:"rate"`
}

// SalesInvoice is an upstream "Sales Invoice" document.
type SalesInvoice struct {
	Name        string             `json:"name,omitempty"`
	Customer    string             `json:"customer"`
	Currency    string             `json:"currency,omitempty"`
	UpdateStock Flag               `json:"update_stock"`
	GrandTotal  Number             `json:"grand_total,omitempty"`
	DocStatus   int                `json:"docstatus"`
	Items       []SalesInvoiceItem `json:"items"`
}

// Normalize fills fallbacks so every field has a defined value.
func (s *SalesInvoice) Normalize() {
	s.Customer = strings.TrimSpace(s.Customer)
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Items == nil {
		s.Items = []SalesInvoiceItem{}
	}
}
