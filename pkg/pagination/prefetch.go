package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PrefetchConfig configures parallel page prefetching.
type PrefetchConfig struct {
	// MaxConcurrency is the number of workers
	MaxConcurrency int

	// Timeout bounds each page
	Timeout time.Duration
}

// DefaultPrefetchConfig returns the default prefetch configuration.
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// PageResult is the outcome of prefetching one page.
type PageResult struct {
	PageNumber int
	Items      int
	Cached     bool
	Error      error
}

// Prefetch assembles pages 1..pages at limit into the page cache using a
// worker pool. Page 1 is fetched first so the total count is cached before
// the workers start; pages beyond the last page are skipped. Failed pages
// are reported in the results and do not stop the others.
func (o *Orchestrator) Prefetch(ctx context.Context, pages, limit int, cfg PrefetchConfig) ([]PageResult, error) {
	start := time.Now()
	if pages <= 0 {
		return nil, nil
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultPrefetchConfig().MaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPrefetchConfig().Timeout
	}

	first := o.prefetchPage(ctx, 1, limit, cfg.Timeout)
	if first.Error != nil {
		return []PageResult{first}, fmt.Errorf("failed to prefetch first page: %w", first.Error)
	}

	total, err := o.TotalCount(ctx)
	if err != nil {
		return []PageResult{first}, err
	}
	w := o.Window(1, limit)
	lastPage := (total + w.Limit - 1) / w.Limit
	if pages > lastPage {
		pages = lastPage
	}

	results := []PageResult{first}
	if pages <= 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Prefetch complete (single page)")
		return results, nil
	}

	pageQueue := make(chan int, pages)
	pageResults := make(chan PageResult, pages)

	for page := 2; page <= pages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go o.prefetchWorker(ctx, limit, cfg.Timeout, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	failed := 0
	for result := range pageResults {
		if result.Error != nil {
			failed++
			log.Warn().
				Err(result.Error).
				Int("page", result.PageNumber).
				Msg("Page prefetch failed")
		}
		results = append(results, result)
	}

	log.Info().
		Int("pages", len(results)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Prefetch complete")

	return results, nil
}

func (o *Orchestrator) prefetchWorker(ctx context.Context, limit int, timeout time.Duration, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for page := range pageQueue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		results <- o.prefetchPage(ctx, page, limit, timeout)
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func (o *Orchestrator) prefetchPage(ctx context.Context, page, limit int, timeout time.Duration) PageResult {
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := o.ListProducts(pageCtx, page, limit)
	if err != nil {
		return PageResult{PageNumber: page, Error: err}
	}
	return PageResult{PageNumber: page, Items: len(res.Products), Cached: res.Cached}
}
