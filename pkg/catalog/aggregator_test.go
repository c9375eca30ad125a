package catalog

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/rs/zerolog"
)

// fakeUpstream serves canned prices and stock and counts calls.
type fakeUpstream struct {
	mu         sync.Mutex
	priceCalls map[string]int
	stockCalls map[string]int

	prices   map[string]PriceInfo
	stock    map[string]StockLevel
	priceErr map[string]error
	stockErr map[string]error

	// priceGate, when set, blocks price lookups until closed
	priceGate    chan struct{}
	priceStarted chan struct{}

	// hang makes lookups wait for their context
	hang bool
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		priceCalls: make(map[string]int),
		stockCalls: make(map[string]int),
		prices:     make(map[string]PriceInfo),
		stock:      make(map[string]StockLevel),
		priceErr:   make(map[string]error),
		stockErr:   make(map[string]error),
	}
}

func (f *fakeUpstream) FetchPrice(ctx context.Context, id string) (PriceInfo, error) {
	f.mu.Lock()
	f.priceCalls[id]++
	gate, started := f.priceGate, f.priceStarted
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if f.hang {
		<-ctx.Done()
		return PriceInfo{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return PriceInfo{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.priceErr[id]; err != nil {
		return PriceInfo{}, err
	}
	return f.prices[id], nil
}

func (f *fakeUpstream) FetchStock(ctx context.Context, id string) (StockLevel, error) {
	f.mu.Lock()
	f.stockCalls[id]++
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return StockLevel{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return StockLevel{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stockErr[id]; err != nil {
		return StockLevel{}, err
	}
	return f.stock[id], nil
}

func (f *fakeUpstream) calls() (prices, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.priceCalls {
		prices += n
	}
	for _, n := range f.stockCalls {
		stock += n
	}
	return prices, stock
}

func newTestAggregator(t *testing.T, up Upstream, cfg Config) (*Aggregator, *cache.Memory[PriceInfo], *cache.Memory[StockLevel]) {
	t.Helper()
	prices := cache.NewMemory[PriceInfo](cache.Options{Name: "prices", DefaultTTL: 15 * time.Minute})
	stock := cache.NewMemory[StockLevel](cache.Options{Name: "stock", DefaultTTL: 2 * time.Minute})
	agg, err := NewAggregator(up, prices, stock, cfg)
	if err != nil {
		t.Fatalf("NewAggregator() failed: %v", err)
	}
	return agg, prices, stock
}

func TestNewAggregator_Validation(t *testing.T) {
	prices := cache.NewMemory[PriceInfo](cache.Options{})
	stock := cache.NewMemory[StockLevel](cache.Options{})

	if _, err := NewAggregator(nil, prices, stock, DefaultConfig()); err == nil {
		t.Error("expected error for nil upstream")
	}
	if _, err := NewAggregator(newFakeUpstream(), nil, stock, DefaultConfig()); err == nil {
		t.Error("expected error for nil price cache")
	}

	agg, err := NewAggregator(newFakeUpstream(), prices, stock, Config{})
	if err != nil {
		t.Fatalf("NewAggregator() failed: %v", err)
	}
	if agg.config.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", agg.config.MaxConcurrency)
	}
	if agg.config.BranchTimeout != 5*time.Second {
		t.Errorf("BranchTimeout = %v, want 5s", agg.config.BranchTimeout)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"B", " A ", "", "B", "C", "A", "  "})
	want := []string{"B", "A", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe() = %v, want %v", got, want)
	}
}

func TestResolve_CompletenessWithDuplicates(t *testing.T) {
	up := newFakeUpstream()
	up.prices["A"] = PriceInfo{BasePrice: 10, Currency: "EUR"}
	up.prices["B"] = PriceInfo{BasePrice: 20, Currency: "EUR"}
	up.stock["A"] = StockLevel{ByWarehouse: map[string]float64{"Main": 3}}

	agg, _, _ := newTestAggregator(t, up, DefaultConfig())

	res := agg.Resolve(context.Background(), []string{"A", "B", "A", "C"})

	if len(res.Prices) != 3 {
		t.Errorf("len(Prices) = %d, want 3", len(res.Prices))
	}
	if len(res.Stock) != 3 {
		t.Errorf("len(Stock) = %d, want 3", len(res.Stock))
	}
	for _, id := range []string{"A", "B", "C"} {
		if _, ok := res.Prices[id]; !ok {
			t.Errorf("Prices missing %q", id)
		}
		if _, ok := res.Stock[id]; !ok {
			t.Errorf("Stock missing %q", id)
		}
	}
	if got := res.Prices["B"].BasePrice; got != 20 {
		t.Errorf("Prices[B].BasePrice = %v, want 20", got)
	}
	if got := res.Stock["A"].Total(); got != 3 {
		t.Errorf("Stock[A].Total() = %v, want 3", got)
	}

	// Duplicates are fetched once
	if n := up.priceCalls["A"]; n != 1 {
		t.Errorf("price calls for A = %d, want 1", n)
	}
	if len(res.Failures) != 0 {
		t.Errorf("Failures = %v, want none", res.Failures)
	}
}

func TestResolve_PartialFailureIsolation(t *testing.T) {
	up := newFakeUpstream()
	for _, id := range []string{"A", "B", "C"} {
		up.prices[id] = PriceInfo{BasePrice: 10, Currency: "EUR"}
		up.stock[id] = StockLevel{ByWarehouse: map[string]float64{"Main": 1}}
	}
	up.stockErr["B"] = errors.New("upstream error")

	agg, _, stockCache := newTestAggregator(t, up, DefaultConfig())

	res := agg.Resolve(context.Background(), []string{"A", "B", "C"})

	if res.Stock["B"] != nil {
		t.Errorf("Stock[B] = %v, want nil (unknown)", res.Stock["B"])
	}
	if res.Stock["A"] == nil || res.Stock["C"] == nil {
		t.Error("successful branches should be populated")
	}
	if got := res.Prices["B"].BasePrice; got != 10 {
		t.Errorf("Prices[B] = %v, want 10 (price branch unaffected)", got)
	}

	if len(res.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(res.Failures))
	}
	f := res.Failures[0]
	if f.ID != "B" || f.Resource != ResourceStock {
		t.Errorf("Failure = %s/%s, want B/stock", f.ID, f.Resource)
	}
	if !res.Failed("B") || res.Failed("A") {
		t.Error("Failed() should report only B")
	}

	// Failures are never cached
	if stockCache.Has(cache.StockKey("B")) {
		t.Error("failed stock lookup was cached")
	}
	if !stockCache.Has(cache.StockKey("A")) {
		t.Error("successful stock lookup was not cached")
	}
}

func TestResolve_FailureLoggedWithRequestID(t *testing.T) {
	up := newFakeUpstream()
	up.stockErr["A"] = errors.New("upstream error")
	agg, _, _ := newTestAggregator(t, up, DefaultConfig())

	buf := &bytes.Buffer{}
	ctx := logging.WithContext(context.Background(), zerolog.New(buf))
	ctx = logging.WithRequestID(ctx, "req-42")

	agg.Resolve(ctx, []string{"A"})

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-42"`) || !strings.Contains(out, `"resource":"stock"`) {
		t.Errorf("failure log = %s, want request_id and resource fields", out)
	}
}

func TestResolve_StockNotSharedWithCache(t *testing.T) {
	up := newFakeUpstream()
	up.stock["A"] = StockLevel{ByWarehouse: map[string]float64{"Main": 3}}
	agg, _, stockCache := newTestAggregator(t, up, DefaultConfig())
	ctx := context.Background()

	fetched := agg.Resolve(ctx, []string{"A"})
	fetched.Stock["A"].ByWarehouse["Main"] = 99

	hit := agg.Resolve(ctx, []string{"A"})
	if got := hit.Stock["A"].ByWarehouse["Main"]; got != 3 {
		t.Fatalf("cached stock after mutating a fetched result = %v, want 3", got)
	}
	hit.Stock["A"].ByWarehouse["Main"] = 42

	cached, _ := stockCache.Get(cache.StockKey("A"))
	if got := cached.ByWarehouse["Main"]; got != 3 {
		t.Errorf("cached stock after mutating a hit = %v, want 3", got)
	}
}

func TestResolve_PriceFailureDefaultsToZero(t *testing.T) {
	up := newFakeUpstream()
	up.priceErr["A"] = errors.New("boom")

	agg, _, _ := newTestAggregator(t, up, Config{Currency: "USD"})
	res := agg.Resolve(context.Background(), []string{"A"})

	got := res.Prices["A"]
	if got.BasePrice != 0 || got.SalePrice != 0 {
		t.Errorf("Prices[A] = %+v, want zero price", got)
	}
	if got.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", got.Currency)
	}
	if _, ok := res.FailureFor("A", ResourcePrice); !ok {
		t.Error("price failure not recorded")
	}
}

func TestResolve_CacheHitsSkipUpstream(t *testing.T) {
	up := newFakeUpstream()
	agg, prices, stock := newTestAggregator(t, up, DefaultConfig())

	prices.Set(cache.PriceKey("A"), PriceInfo{BasePrice: 5, Currency: "EUR"})
	stock.Set(cache.StockKey("A"), StockLevel{ByWarehouse: map[string]float64{"Main": 2}})

	res := agg.Resolve(context.Background(), []string{"A"})

	p, s := up.calls()
	if p != 0 || s != 0 {
		t.Errorf("upstream calls = %d/%d, want 0/0", p, s)
	}
	if res.Prices["A"].BasePrice != 5 {
		t.Errorf("Prices[A] = %v, want 5", res.Prices["A"].BasePrice)
	}
}

func TestResolve_CachesIndependently(t *testing.T) {
	up := newFakeUpstream()
	up.stock["A"] = StockLevel{ByWarehouse: map[string]float64{"Main": 4}}
	agg, prices, _ := newTestAggregator(t, up, DefaultConfig())

	prices.Set(cache.PriceKey("A"), PriceInfo{BasePrice: 5})

	res := agg.Resolve(context.Background(), []string{"A"})

	p, s := up.calls()
	if p != 0 {
		t.Errorf("price calls = %d, want 0", p)
	}
	if s != 1 {
		t.Errorf("stock calls = %d, want 1", s)
	}
	if res.Stock["A"].Total() != 4 {
		t.Errorf("Stock[A].Total() = %v, want 4", res.Stock["A"].Total())
	}
}

func TestResolve_SharesInFlightLookups(t *testing.T) {
	up := newFakeUpstream()
	up.prices["A"] = PriceInfo{BasePrice: 7}
	up.priceGate = make(chan struct{})
	up.priceStarted = make(chan struct{}, 1)

	agg, _, _ := newTestAggregator(t, up, DefaultConfig())

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = agg.Resolve(context.Background(), []string{"A"})
	}()

	<-up.priceStarted

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = agg.Resolve(context.Background(), []string{"A"})
	}()

	// Let the second caller join the in-flight lookup
	time.Sleep(50 * time.Millisecond)
	close(up.priceGate)
	wg.Wait()

	if n := up.priceCalls["A"]; n != 1 {
		t.Errorf("price calls = %d, want 1", n)
	}
	for i, res := range results {
		if res.Prices["A"].BasePrice != 7 {
			t.Errorf("results[%d].Prices[A] = %v, want 7", i, res.Prices["A"].BasePrice)
		}
	}
}

func TestResolve_BranchTimeout(t *testing.T) {
	up := newFakeUpstream()
	up.hang = true

	agg, _, _ := newTestAggregator(t, up, Config{BranchTimeout: 50 * time.Millisecond})

	start := time.Now()
	res := agg.Resolve(context.Background(), []string{"A", "B"})
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("Resolve took %v, branches should time out after 50ms", elapsed)
	}
	if len(res.Failures) != 4 {
		t.Fatalf("len(Failures) = %d, want 4", len(res.Failures))
	}
	for _, f := range res.Failures {
		if !errors.Is(f.Err, context.DeadlineExceeded) {
			t.Errorf("failure %s/%s error = %v, want deadline exceeded", f.ID, f.Resource, f.Err)
		}
	}

	// Sorted by id, then resource
	if res.Failures[0].ID != "A" || res.Failures[0].Resource != ResourcePrice {
		t.Errorf("Failures[0] = %s/%s, want A/price", res.Failures[0].ID, res.Failures[0].Resource)
	}
}

func TestResolve_DetachedFromCallerCancellation(t *testing.T) {
	up := newFakeUpstream()
	up.prices["A"] = PriceInfo{BasePrice: 3}

	agg, prices, _ := newTestAggregator(t, up, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := agg.Resolve(ctx, []string{"A"})

	if len(res.Failures) != 0 {
		t.Errorf("Failures = %v, want none", res.Failures)
	}
	if !prices.Has(cache.PriceKey("A")) {
		t.Error("lookup should complete and be cached after the caller went away")
	}
}

func TestResolve_Empty(t *testing.T) {
	up := newFakeUpstream()
	agg, _, _ := newTestAggregator(t, up, DefaultConfig())

	res := agg.Resolve(context.Background(), []string{"", "  "})
	if len(res.Prices) != 0 || len(res.Stock) != 0 {
		t.Errorf("Resolve(blank) = %d prices, %d stock; want empty", len(res.Prices), len(res.Stock))
	}
}

func TestBatchPrices_RequestOrder(t *testing.T) {
	up := newFakeUpstream()
	up.prices["A"] = PriceInfo{BasePrice: 150, SalePrice: 80, Currency: "EUR"}
	up.prices["B"] = PriceInfo{BasePrice: 20, Currency: "EUR"}
	up.priceErr["C"] = errors.New("not reachable")

	agg, _, _ := newTestAggregator(t, up, DefaultConfig())
	got := agg.BatchPrices(context.Background(), []string{"B", "A", "", "C", "A"})

	if len(got) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(got))
	}

	tests := []struct {
		name      string
		success   bool
		effective float64
	}{
		{"B", true, 20},
		{"A", true, 80},
		{"", false, 0},
		{"C", false, 0},
		{"A", true, 80},
	}
	for i, tt := range tests {
		r := got[i]
		if r.ItemName != tt.name {
			t.Errorf("results[%d].ItemName = %q, want %q", i, r.ItemName, tt.name)
		}
		if r.Success != tt.success {
			t.Errorf("results[%d].Success = %v, want %v", i, r.Success, tt.success)
		}
		if r.EffectivePrice != tt.effective {
			t.Errorf("results[%d].EffectivePrice = %v, want %v", i, r.EffectivePrice, tt.effective)
		}
		if !r.Success && r.Error == "" {
			t.Errorf("results[%d] failed without an error message", i)
		}
	}
}
