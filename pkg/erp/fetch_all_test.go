package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/erp-storefront/internal/testutil"
)

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	for i := 0; i < 25; i++ {
		mock.AddDocs(ResourceItem, testutil.Item(fmt.Sprintf("SKU-%02d", i), "Products", 1))
	}

	client := newTestClient(t, mock)

	rows, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem, Fields: []string{"name"}}, FetchAllOptions{PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 25 {
		t.Errorf("len(rows) = %d, want 25", len(rows))
	}
	// 10 + 10 + 5
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
}

func TestFetchAll_ExactMultipleNeedsEmptyPage(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	for i := 0; i < 20; i++ {
		mock.AddDocs(ResourceItem, testutil.Item(fmt.Sprintf("SKU-%02d", i), "Products", 1))
	}

	client := newTestClient(t, mock)

	rows, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem}, FetchAllOptions{PageSize: 10})
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 20 {
		t.Errorf("len(rows) = %d, want 20", len(rows))
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3 (last page empty)", got)
	}
}

func TestFetchAll_MaxPagesCap(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	// A misbehaving upstream that always returns a full page
	mock.SetHandler("/api/resource/Item", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"name": "a"}, {"name": "b"}]}`))
	})

	client := newTestClient(t, mock)

	rows, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem}, FetchAllOptions{PageSize: 2, MaxPages: 4})
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 8 {
		t.Errorf("len(rows) = %d, want 8", len(rows))
	}
	if got := mock.GetRequestCount(); got != 4 {
		t.Errorf("RequestCount = %d, want 4", got)
	}
}

func TestFetchAll_ConsecutiveFailures(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/resource/Item", testutil.NewServerErrorResponse())

	client := newTestClient(t, mock)

	_, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem}, FetchAllOptions{PageSize: 10, MaxConsecutiveFailures: 3})
	if !errors.Is(err, ErrScanIncomplete) {
		t.Fatalf("err = %v, want ErrScanIncomplete", err)
	}
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Errorf("err should wrap the last upstream error, got %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
}

func TestFetchAll_RecoversFromTransientFailure(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	var calls int32
	mock.SetHandler("/api/resource/Item", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("limit_start") == "" {
			w.Write([]byte(`{"data": [{"name": "a"}, {"name": "b"}]}`))
			return
		}
		w.Write([]byte(`{"data": [{"name": "c"}]}`))
	})

	client := newTestClient(t, mock)

	rows, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem}, FetchAllOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("len(rows) = %d, want 3", len(rows))
	}
}

func TestFetchAll_ClientErrorStops(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/resource/Item", testutil.MockERPResponse{StatusCode: http.StatusForbidden, Body: `{"exc_type": "PermissionError"}`})

	client := newTestClient(t, mock)

	_, err := client.FetchAll(context.Background(), ListRequest{Resource: ResourceItem}, FetchAllOptions{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if errors.Is(err, ErrScanIncomplete) {
		t.Error("client errors should stop immediately")
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("RequestCount = %d, want 1", got)
	}
}

func TestFetchAllAs(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.AddDocs(ResourceItemGroup,
		testutil.ItemGroup("All Item Groups", "", true),
		testutil.ItemGroup("Tools", "All Item Groups", false),
	)

	client := newTestClient(t, mock)

	groups, err := FetchAllAs[ItemGroup](context.Background(), client, ListRequest{Resource: ResourceItemGroup, Fields: ItemGroupFields}, DefaultFetchAllOptions())
	if err != nil {
		t.Fatalf("FetchAllAs() failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if !groups[0].IsGroup || groups[1].ParentItemGroup != "All Item Groups" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestFetchAllOptions_Defaults(t *testing.T) {
	opts := FetchAllOptions{}.withDefaults()
	d := DefaultFetchAllOptions()
	if opts != d {
		t.Errorf("withDefaults() = %+v, want %+v", opts, d)
	}
}
