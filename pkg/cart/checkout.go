package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/catalog"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts by result",
		},
		[]string{"result"}, // "success", "invalid", "failed"
	)

	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Time to post a checkout invoice upstream",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// InvoiceWriter posts invoices upstream.
type InvoiceWriter interface {
	CreateInvoice(ctx context.Context, invoice erp.SalesInvoice) (erp.SalesInvoice, error)
}

// StockInvalidator drops cached stock after a sale.
type StockInvalidator interface {
	InvalidateStock(ids ...string)
}

// ERPWriter writes invoices through the upstream client.
type ERPWriter struct {
	client *erp.Client
}

// NewERPWriter creates an invoice writer.
func NewERPWriter(client *erp.Client) *ERPWriter {
	return &ERPWriter{client: client}
}

// CreateInvoice inserts a Sales Invoice document.
func (w *ERPWriter) CreateInvoice(ctx context.Context, invoice erp.SalesInvoice) (erp.SalesInvoice, error) {
	return erp.InsertAs[erp.SalesInvoice](ctx, w.client, erp.ResourceSalesInvoice, &invoice)
}

// Request is a checkout submission.
type Request struct {
	Customer string `json:"customer" validate:"required"`
	Lines    []Line `json:"lines" validate:"required,min=1"`
}

// Validate checks the customer and every line.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Customer) == "" {
		return fmt.Errorf("%w: customer is required", ErrInvalidLine)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLine, err)
	}
	for _, l := range r.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Checkout turns cart submissions into upstream invoices.
type Checkout struct {
	writer   InvoiceWriter
	stock    StockInvalidator
	currency string
}

// NewCheckout creates a checkout service. stock may be nil.
func NewCheckout(writer InvoiceWriter, stock StockInvalidator, currency string) *Checkout {
	if currency == "" {
		currency = catalog.DefaultCurrency
	}
	return &Checkout{writer: writer, stock: stock, currency: currency}
}

// Submit validates the request, posts a submitted Sales Invoice that
// updates stock, and invalidates cached stock of every touched item.
func (c *Checkout) Submit(ctx context.Context, req Request) (erp.SalesInvoice, error) {
	logger := logging.FromContext(ctx)

	if err := req.Validate(); err != nil {
		checkoutsTotal.WithLabelValues("invalid").Inc()
		return erp.SalesInvoice{}, err
	}
	currency, err := Currency(req.Lines, c.currency)
	if err != nil {
		checkoutsTotal.WithLabelValues("invalid").Inc()
		return erp.SalesInvoice{}, err
	}

	invoice := erp.SalesInvoice{
		Customer:    strings.TrimSpace(req.Customer),
		Currency:    currency,
		UpdateStock: true,
		DocStatus:   1,
		Items:       ToInvoiceItems(req.Lines),
	}

	start := time.Now()
	created, err := c.writer.CreateInvoice(ctx, invoice)
	checkoutDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		checkoutsTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Str("customer", invoice.Customer).Msg("Checkout failed")
		return erp.SalesInvoice{}, fmt.Errorf("create invoice: %w", err)
	}
	checkoutsTotal.WithLabelValues("success").Inc()

	ids := Identifiers(req.Lines)
	if c.stock != nil {
		c.stock.InvalidateStock(ids...)
	}

	logger.Info().
		Str("invoice", created.Name).
		Str("customer", invoice.Customer).
		Int("lines", len(invoice.Items)).
		Msg("Checkout completed")

	return created, nil
}
