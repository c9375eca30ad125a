package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/Sternrassler/erp-storefront/pkg/pagination"
	"github.com/rs/zerolog"
)

// Target is what the warmer pre-populates.
type Target interface {
	ListCategories(ctx context.Context) (pagination.CategoriesResult, error)
	TotalCount(ctx context.Context) (int, error)
	Prefetch(ctx context.Context, pages, limit int, cfg pagination.PrefetchConfig) ([]pagination.PageResult, error)
}

// WarmConfig configures a Warmer.
type WarmConfig struct {
	// Pages is the number of listing pages warmed at Limit
	Pages int

	// Limit is the page size warmed (0 = orchestrator default)
	Limit int

	// Timeout bounds the whole warm-up
	Timeout time.Duration

	Prefetch pagination.PrefetchConfig
}

// DefaultWarmConfig returns the default warm-up configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Pages:    2,
		Timeout:  2 * time.Minute,
		Prefetch: pagination.DefaultPrefetchConfig(),
	}
}

// Warmer pre-populates categories, the total count and the first pages.
type Warmer struct {
	target Target
	config WarmConfig
	logger zerolog.Logger
}

// NewWarmer creates a warmer.
func NewWarmer(target Target, cfg WarmConfig) *Warmer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmConfig().Timeout
	}
	return &Warmer{
		target: target,
		config: cfg,
		logger: logging.NewLogger("warmer"),
	}
}

// Run warms synchronously and returns the joined step errors.
func (w *Warmer) Run(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	var errs []error

	if _, err := w.target.ListCategories(ctx); err != nil {
		errs = append(errs, fmt.Errorf("warm categories: %w", err))
	}

	total, err := w.target.TotalCount(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("warm total count: %w", err))
	}

	warmed := 0
	if w.config.Pages > 0 && err == nil {
		results, err := w.target.Prefetch(ctx, w.config.Pages, w.config.Limit, w.config.Prefetch)
		if err != nil {
			errs = append(errs, fmt.Errorf("warm pages: %w", err))
		}
		for _, r := range results {
			if r.Error != nil {
				errs = append(errs, fmt.Errorf("warm page %d: %w", r.PageNumber, r.Error))
				continue
			}
			warmed++
		}
	}

	joined := errors.Join(errs...)
	event := w.logger.Info()
	if joined != nil {
		event = w.logger.Warn().Err(joined)
	}
	event.
		Int("total_products", total).
		Int("pages_warmed", warmed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm-up finished")

	return joined
}

// Start warms in the background. Failures are logged only. The returned
// channel is closed when warm-up finishes.
func (w *Warmer) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return done
}
