package cart

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Sternrassler/erp-storefront/internal/testutil"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
)

type recordingStock struct {
	ids []string
}

func (r *recordingStock) InvalidateStock(ids ...string) {
	r.ids = append(r.ids, ids...)
}

func newTestWriter(t *testing.T, mock *testutil.MockERP) *ERPWriter {
	t.Helper()
	client, err := erp.New(erp.DefaultConfig(mock.URL(), testutil.TestAPIKey, testutil.TestAPISecret))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return NewERPWriter(client)
}

func TestCheckout_Submit(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	stock := &recordingStock{}
	checkout := NewCheckout(newTestWriter(t, mock), stock, "EUR")

	invoice, err := checkout.Submit(context.Background(), Request{
		Customer: "Guest",
		Lines: []Line{
			{Identifier: "A", Quantity: 2, UnitBasePrice: 10},
			{Identifier: "KIT", Quantity: 1, UnitBasePrice: 30, IsBundle: true, BundleLines: []Line{{Identifier: "B", Quantity: 1}}},
		},
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if invoice.Name == "" {
		t.Error("invoice should have a name")
	}
	if invoice.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", invoice.Currency)
	}

	stored := mock.Docs(erp.ResourceSalesInvoice)
	if len(stored) != 1 {
		t.Fatalf("stored invoices = %d, want 1", len(stored))
	}
	items, _ := stored[0]["items"].([]any)
	if len(items) != 2 {
		t.Errorf("invoice items = %d, want 2 (bundle as parent)", len(items))
	}
	if stored[0]["update_stock"] != 1.0 {
		t.Errorf("update_stock = %v, want 1", stored[0]["update_stock"])
	}

	if len(stock.ids) != 3 {
		t.Errorf("invalidated stock = %v, want A KIT B", stock.ids)
	}
}

func TestCheckout_InvalidRequest(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	stock := &recordingStock{}
	checkout := NewCheckout(newTestWriter(t, mock), stock, "")

	tests := []struct {
		name string
		req  Request
	}{
		{"no customer", Request{Lines: []Line{{Identifier: "A", Quantity: 1}}}},
		{"no lines", Request{Customer: "Guest"}},
		{"bad line", Request{Customer: "Guest", Lines: []Line{{Identifier: "A"}}}},
	}

	for _, tt := range tests {
		if _, err := checkout.Submit(context.Background(), tt.req); !errors.Is(err, ErrInvalidLine) {
			t.Errorf("%s: Submit() error = %v, want ErrInvalidLine", tt.name, err)
		}
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("upstream requests = %d, want 0", mock.GetRequestCount())
	}
	if len(stock.ids) != 0 {
		t.Errorf("stock invalidated on invalid request: %v", stock.ids)
	}
}

func TestCheckout_UpstreamRejected(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	mock.AddFailure(testutil.Failure{
		Resource:   erp.ResourceSalesInvoice,
		StatusCode: http.StatusExpectationFailed,
		Message:    "Item A is out of stock",
	})

	stock := &recordingStock{}
	checkout := NewCheckout(newTestWriter(t, mock), stock, "EUR")

	_, err := checkout.Submit(context.Background(), Request{
		Customer: "Guest",
		Lines:    []Line{{Identifier: "A", Quantity: 1, UnitBasePrice: 10}},
	})
	if !errors.Is(err, erp.ErrUpstreamRejected) {
		t.Fatalf("Submit() error = %v, want ErrUpstreamRejected", err)
	}
	if len(stock.ids) != 0 {
		t.Errorf("stock invalidated after failed checkout: %v", stock.ids)
	}
}
