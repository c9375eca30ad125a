package erp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is an upstream schema with a total normalization step.
type Document[T any] interface {
	*T
	Normalize()
}

// ListAs lists documents and decodes them into T.
func ListAs[T any, PT Document[T]](ctx context.Context, c *Client, req ListRequest) ([]T, error) {
	rows, err := c.List(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeRows[T, PT](req.Resource, rows)
}

// GetAs fetches one document and decodes it into T.
func GetAs[T any, PT Document[T]](ctx context.Context, c *Client, resource, name string) (T, error) {
	var doc T
	raw, err := c.Get(ctx, resource, name)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s %q: %w", resource, name, err)
	}
	PT(&doc).Normalize()
	return doc, nil
}

// FetchAllAs scans every page of a listing and decodes it into T.
func FetchAllAs[T any, PT Document[T]](ctx context.Context, c *Client, req ListRequest, opts FetchAllOptions) ([]T, error) {
	rows, err := c.FetchAll(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	return decodeRows[T, PT](req.Resource, rows)
}

// InsertAs creates a document and decodes the stored version into T.
func InsertAs[T any, PT Document[T]](ctx context.Context, c *Client, resource string, doc *T) (T, error) {
	var out T
	raw, err := c.Insert(ctx, resource, doc)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", resource, err)
	}
	PT(&out).Normalize()
	return out, nil
}

func decodeRows[T any, PT Document[T]](resource string, rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var doc T
		if err := json.Unmarshal(row, &doc); err != nil {
			return nil, fmt.Errorf("decode %s row %d: %w", resource, i, err)
		}
		PT(&doc).Normalize()
		out = append(out, doc)
	}
	return out, nil
}
