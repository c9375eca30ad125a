// Package erp provides the HTTP client for a Frappe/ERPNext style resource
// API (/api/resource/{Type}) with token authentication, error
// classification, optional retry and an upstream failure gate.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/logging"
	"github.com/Sternrassler/erp-storefront/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for ERP client operations.
var (
	erpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_erp_requests_total",
		Help: "Total ERP requests by resource and status",
	}, []string{"resource", "status"})

	erpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_erp_request_duration_seconds",
		Help:    "ERP request duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	erpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_erp_errors_total",
		Help: "Total ERP errors by class",
	}, []string{"class"})
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 32 << 20

// Client talks to the upstream resource API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	gate       *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ERP origin, e.g. https://erp.example.com
	BaseURL string

	// Credential pair sent as "Authorization: token key:secret"
	APIKey    string
	APISecret string

	// UserAgent header
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry policy (default: single attempt)
	Retry RetryConfig

	// Gate optionally blocks requests during upstream cooldowns
	Gate *ratelimit.Tracker
}

// DefaultConfig returns a configuration with safe defaults.
func DefaultConfig(baseURL, apiKey, apiSecret string) Config {
	return Config{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
		UserAgent: "erp-storefront/0.1.0",
		Timeout:   15 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new ERP client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("api key and secret are required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		gate:    cfg.Gate,
		config:  cfg,
		logger:  logging.NewLogger("erp-client"),
	}, nil
}

// BaseURL returns the configured ERP origin without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Filter is one [field, operator, value] condition.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Eq returns an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Operator: "=", Value: value}
}

// MarshalJSON encodes the filter in the upstream's array form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Field, f.Operator, f.Value})
}

// ListRequest describes a filtered, paginated resource listing.
type ListRequest struct {
	Resource string
	Filters  []Filter
	Fields   []string
	OrderBy  string

	// Limit is sent as limit_page_length (0 = upstream default)
	Limit int

	// Offset is sent as limit_start
	Offset int
}

// Query encodes the request parameters.
func (r ListRequest) Query() (url.Values, error) {
	q := url.Values{}
	if len(r.Filters) > 0 {
		b, err := json.Marshal(r.Filters)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		q.Set("filters", string(b))
	}
	if len(r.Fields) > 0 {
		b, err := json.Marshal(r.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode fields: %w", err)
		}
		q.Set("fields", string(b))
	}
	if r.OrderBy != "" {
		q.Set("order_by", r.OrderBy)
	}
	if r.Offset > 0 {
		q.Set("limit_start", strconv.Itoa(r.Offset))
	}
	if r.Limit > 0 {
		q.Set("limit_page_length", strconv.Itoa(r.Limit))
	}
	return q, nil
}

type listEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

type docEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// List returns one window of documents.
func (c *Client) List(ctx context.Context, req ListRequest) ([]json.RawMessage, error) {
	if req.Resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	q, err := req.Query()
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodGet, req.Resource, resourcePath(req.Resource), q, nil)
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", req.Resource, err)
	}
	return env.Data, nil
}

// Get returns one document by name. A missing document yields an error
// matching ErrNotFound.
func (c *Client) Get(ctx context.Context, resource, name string) (json.RawMessage, error) {
	if resource == "" || name == "" {
		return nil, fmt.Errorf("resource and name are required")
	}

	body, err := c.do(ctx, http.MethodGet, resource, resourcePath(resource)+"/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}

	var env docEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &UpstreamError{Resource: resource, StatusCode: http.StatusNotFound, Class: ErrorClassClient, Message: name, Err: ErrNotFound}
	}
	return env.Data, nil
}

// Insert creates a document and returns the stored version.
func (c *Client) Insert(ctx context.Context, resource string, doc any) (json.RawMessage, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource is required")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", resource, err)
	}

	body, err := c.do(ctx, http.MethodPost, resource, resourcePath(resource), nil, payload)
	if err != nil {
		return nil, err
	}

	var env docEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	return env.Data, nil
}

// Ping checks that the upstream is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.List(ctx, ListRequest{Resource: ResourceItemGroup, Fields: []string{"name"}, Limit: 1})
	return err
}

func resourcePath(resource string) string {
	return "/api/resource/" + url.PathEscape(resource)
}

// do performs one logical request with gating, retry and error
// classification, returning the raw 2xx body.
func (c *Client) do(ctx context.Context, method, resource, path string, query url.Values, payload []byte) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		erpRequestDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	}()

	if c.gate != nil && !c.gate.ShouldAllowRequest(ctx) {
		c.logger.Warn().
			Str("resource", resource).
			Msg("Request blocked by upstream gate")
		erpRequestsTotal.WithLabelValues(resource, "blocked").Inc()
		return nil, fmt.Errorf("erp %s: %w", resource, ErrRequestBlocked)
	}

	u := *c.baseURL
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + path
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("build request path: %w", err)
	}
	u.Path = unescaped
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body []byte
	err = retryWithBackoff(ctx, c.config.Retry, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req, payload != nil)

		c.logger.Debug().
			Str("resource", resource).
			Str("method", method).
			Str("url", u.String()).
			Msg("Executing ERP request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			erpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			erpRequestsTotal.WithLabelValues(resource, "network_error").Inc()
			if c.gate != nil && ctx.Err() == nil {
				c.gate.RecordFailure(ctx)
			}
			c.logger.Error().Err(err).Str("resource", resource).Msg("HTTP request failed")
			return &UpstreamError{Resource: resource, Class: ErrorClassNetwork, Err: err}
		}
		defer resp.Body.Close()

		if c.gate != nil {
			c.gate.UpdateFromResponse(ctx, resp.StatusCode, resp.Header)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			erpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &UpstreamError{Resource: resource, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Err: err}
		}

		erpRequestsTotal.WithLabelValues(resource, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			class := classifyStatus(resp.StatusCode)
			erpErrorsTotal.WithLabelValues(string(class)).Inc()

			ue := &UpstreamError{
				Resource:   resource,
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    upstreamMessage(data, resp.Status),
			}
			if resp.StatusCode == http.StatusNotFound {
				ue.Err = ErrNotFound
			}

			c.logger.Warn().
				Str("resource", resource).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Str("message", ue.Message).
				Msg("ERP request error")
			return ue
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Authorization", "token "+c.config.APIKey+":"+c.config.APISecret)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

// upstreamMessage extracts a diagnostic message from an error body.
func upstreamMessage(body []byte, status string) string {
	var payload struct {
		Exception    string          `json:"exception"`
		ExcType      string          `json:"exc_type"`
		Message      json.RawMessage `json:"message"`
		ErrorMessage string          `json:"_error_message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Exception != "":
			return payload.Exception
		case payload.ErrorMessage != "":
			return payload.ErrorMessage
		case len(payload.Message) > 0:
			var s string
			if json.Unmarshal(payload.Message, &s) == nil && s != "" {
				return s
			}
			return string(payload.Message)
		case payload.ExcType != "":
			return payload.ExcType
		}
	}
	return status
}

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
