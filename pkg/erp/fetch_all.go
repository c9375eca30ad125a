package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var erpScanPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_erp_scan_pages_total",
	Help: "Total pages fetched by full scans by resource and result",
}, []string{"resource", "result"})

// ErrScanIncomplete is returned when a full scan gives up after repeated
// page failures.
var ErrScanIncomplete = errors.New("scan incomplete")

// FetchAllOptions bounds a full scan.
type FetchAllOptions struct {
	// PageSize is the window requested per call
	PageSize int

	// MaxPages caps the number of pages requested in total
	MaxPages int

	// MaxConsecutiveFailures stops the scan after this many failed pages in a row
	MaxConsecutiveFailures int
}

// DefaultFetchAllOptions returns the default scan bounds.
func DefaultFetchAllOptions() FetchAllOptions {
	return FetchAllOptions{
		PageSize:               500,
		MaxPages:               200,
		MaxConsecutiveFailures: 3,
	}
}

func (o FetchAllOptions) withDefaults() FetchAllOptions {
	d := DefaultFetchAllOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	return o
}

// FetchAll loops offset pages until a short or empty page. Failed pages are
// retried at the same offset; after MaxConsecutiveFailures in a row the scan
// stops with ErrScanIncomplete. Hitting MaxPages stops the scan and returns
// what was collected.
func (c *Client) FetchAll(ctx context.Context, req ListRequest, opts FetchAllOptions) ([]json.RawMessage, error) {
	opts = opts.withDefaults()
	req.Limit = opts.PageSize

	var all []json.RawMessage
	failures := 0
	offset := req.Offset

	for page := 0; page < opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req.Offset = offset
		rows, err := c.List(ctx, req)
		if err != nil {
			if errors.Is(err, ErrRequestBlocked) || classOf(err) == ErrorClassClient {
				// Not worth repeating
				erpScanPagesTotal.WithLabelValues(req.Resource, "error").Inc()
				return nil, err
			}

			failures++
			erpScanPagesTotal.WithLabelValues(req.Resource, "error").Inc()
			c.logger.Warn().
				Err(err).
				Str("resource", req.Resource).
				Int("offset", offset).
				Int("consecutive_failures", failures).
				Msg("Scan page failed")

			if failures >= opts.MaxConsecutiveFailures {
				return nil, fmt.Errorf("%w: %s after %d consecutive failures: %w",
					ErrScanIncomplete, req.Resource, failures, err)
			}
			continue
		}

		failures = 0
		erpScanPagesTotal.WithLabelValues(req.Resource, "ok").Inc()
		all = append(all, rows...)

		if len(rows) < opts.PageSize {
			return all, nil
		}
		offset += len(rows)
	}

	c.logger.Warn().
		Str("resource", req.Resource).
		Int("max_pages", opts.MaxPages).
		Int("rows", len(all)).
		Msg("Scan stopped at page limit")
	return all, nil
}
