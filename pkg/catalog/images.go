package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/erp-storefront/pkg/cache"
	"golang.org/x/sync/errgroup"
)

// ImageConfig configures an ImageResolver.
type ImageConfig struct {
	// BaseURL prefixes relative image paths (the upstream domain)
	BaseURL string

	// ResizeURL is the resize endpoint; empty disables optimization
	ResizeURL string

	Width   int
	Quality int

	// MaxConcurrency bounds batch resolution
	MaxConcurrency int
}

// ImageResolver derives absolute and optimized image URLs.
type ImageResolver struct {
	config ImageConfig
	cache  cache.Store[string]
}

// NewImageResolver creates a resolver. The store caches optimized URLs.
func NewImageResolver(cfg ImageConfig, store cache.Store[string]) *ImageResolver {
	if cfg.Width <= 0 {
		cfg.Width = 600
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ImageResolver{config: cfg, cache: store}
}

// SourceURL turns an upstream image field into an absolute URL. Empty input
// yields an empty URL.
func (r *ImageResolver) SourceURL(image string) string {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return ""
	case strings.HasPrefix(image, "http://"), strings.HasPrefix(image, "https://"):
		return image
	case strings.HasPrefix(image, "//"):
		return "https:" + image
	case strings.HasPrefix(image, "/"):
		return r.config.BaseURL + image
	default:
		return r.config.BaseURL + "/" + image
	}
}

// Optimize returns the resize endpoint URL for an absolute source URL.
// Without a resize endpoint the source is returned unchanged.
func (r *ImageResolver) Optimize(source string) string {
	if source == "" || r.config.ResizeURL == "" {
		return source
	}

	key := cache.ImageKey(source, r.config.Width, r.config.Quality)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached
		}
	}

	q := url.Values{}
	q.Set("url", source)
	q.Set("w", strconv.Itoa(r.config.Width))
	q.Set("q", strconv.Itoa(r.config.Quality))

	sep := "?"
	if strings.Contains(r.config.ResizeURL, "?") {
		sep = "&"
	}
	optimized := r.config.ResizeURL + sep + q.Encode()

	if r.cache != nil {
		r.cache.Set(key, optimized)
	}
	return optimized
}

// Resolve returns both URLs of an upstream image field.
func (r *ImageResolver) Resolve(image string) Images {
	source := r.SourceURL(image)
	return Images{Source: source, Optimized: r.Optimize(source)}
}

// ImageLookup returns the raw image field of an item.
type ImageLookup func(ctx context.Context, itemName string) (string, error)

// ImageResult is one entry of a batch image response.
type ImageResult struct {
	ItemName string  `json:"itemName"`
	Success  bool    `json:"success"`
	Images   *Images `json:"images,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// BatchImages resolves the images of names concurrently and returns one
// result per name in input order.
func (r *ImageResolver) BatchImages(ctx context.Context, names []string, lookup ImageLookup) []ImageResult {
	out := make([]ImageResult, len(names))

	var g errgroup.Group
	g.SetLimit(r.config.MaxConcurrency)

	for i, name := range names {
		g.Go(func() error {
			res := ImageResult{ItemName: name}
			id := strings.TrimSpace(name)
			if id == "" {
				res.Error = "invalid item name"
			} else if raw, err := lookup(ctx, id); err != nil {
				res.Error = err.Error()
			} else if raw == "" {
				res.Error = fmt.Sprintf("item %q has no image", id)
			} else {
				images := r.Resolve(raw)
				res.Success = true
				res.Images = &images
			}

			out[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return out
}
