package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/erp-storefront/pkg/cart"
	"github.com/Sternrassler/erp-storefront/pkg/erp"
	"github.com/Sternrassler/erp-storefront/pkg/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

// parseRequest decodes a JSON body into v.
func parseRequest(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

// writeError maps err to a status and writes {"success": false, "error": ...}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, r, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	var upstream *erp.UpstreamError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, cart.ErrInvalidLine),
		errors.Is(err, cart.ErrMixedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, erp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, erp.ErrRequestBlocked):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream),
		errors.Is(err, erp.ErrUpstreamUnavailable),
		errors.Is(err, erp.ErrUpstreamRejected),
		errors.Is(err, erp.ErrRetryExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// setCacheHeaders sets X-Cache and Cache-Control for a cached resource.
func setCacheHeaders(w http.ResponseWriter, cached bool, ttl time.Duration) {
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if ttl > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
}
