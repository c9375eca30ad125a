// Package cart converts client-side cart lines into upstream invoices.
//
// Carts live entirely on the client. The server sees the lines only at
// checkout, where they are validated, priced with the same effective-price
// rule as the catalog and turned into Sales Invoice Item rows.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidLine is returned for cart lines that fail validation
	ErrInvalidLine = errors.New("invalid cart line")

	// ErrMixedCurrency is returned when lines do not share a currency
	ErrMixedCurrency = errors.New("cart lines use different currencies")
)

var validate = validator.New()

// Line is one cart position. Bundles carry their component lines.
type Line struct {
	Identifier    string   `json:"identifier" validate:"required"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity" validate:"min=1"`
	UnitBasePrice float64  `json:"unitBasePrice" validate:"gte=0"`
	UnitSalePrice *float64 `json:"unitSalePrice,omitempty" validate:"omitempty,gte=0"`
	Currency      string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	IsBundle      bool     `json:"isBundle"`
	BundleLines   []Line   `json:"bundleLines,omitempty" validate:"omitempty,dive"`
}

// Validate checks the line and, for bundles, every component line.
func (l Line) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidLine, l.Identifier, err)
	}
	if l.IsBundle && len(l.BundleLines) == 0 {
		return fmt.Errorf("%w %q: bundle without lines", ErrInvalidLine, l.Identifier)
	}
	for _, bl := range l.BundleLines {
		if err := bl.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UnitPrice is the sale price when positive, else the base price.
func (l Line) UnitPrice() float64 {
	var sale float64
	if l.UnitSalePrice != nil {
		sale = *l.UnitSalePrice
	}
	return catalog.EffectivePrice(sale, l.UnitBasePrice)
}

// Total is UnitPrice times Quantity.
func (l Line) Total() float64 {
	return l.UnitPrice() * float64(l.Quantity)
}

// ToInvoiceItems converts lines into invoice rows. Bundles are invoiced as
// their parent item; component lines are not billed separately.
func ToInvoiceItems(lines []Line) []erp.SalesInvoiceItem {
	items := make([]erp.SalesInvoiceItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, erp.SalesInvoiceItem{
			ItemCode: strings.TrimSpace(l.Identifier),
			ItemName: l.Name,
			Qty:      float64(l.Quantity),
			Rate:     l.UnitPrice(),
		})
	}
	return items
}

// Identifiers lists every identifier the lines touch, bundle components
// included, in first-seen order.
func Identifiers(lines []Line) []string {
	seen := make(map[string]struct{})
	var ids []string
	var walk func([]Line)
	walk = func(ls []Line) {
		for _, l := range ls {
			id := strings.TrimSpace(l.Identifier)
			if _, ok := seen[id]; !ok && id != "" {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			walk(l.BundleLines)
		}
	}
	walk(lines)
	return ids
}

// Currency returns the shared currency of the lines, or fallback when no
// line names one.
func Currency(lines []Line, fallback string) (string, error) {
	currency := ""
	for _, l := range lines {
		c := strings.ToUpper(strings.TrimSpace(l.Currency))
		if c == "" {
			continue
		}
		if currency != "" && c != currency {
			return "", fmt.Errorf("%w: %s and %s", ErrMixedCurrency, currency, c)
		}
		currency = c
	}
	if currency == "" {
		currency = fallback
	}
	return currency, nil
}
