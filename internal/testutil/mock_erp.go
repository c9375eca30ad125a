// Package testutil provides testing utilities for the storefront.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Test credentials accepted by MockERP.
const (
	TestAPIKey    = "test-key"
	TestAPISecret = "test-secret"
)

// MockERPResponse defines a canned response for a path.
type MockERPResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Failure makes matching list requests fail.
type Failure struct {
	Resource string

	// Field/Value restrict the failure to requests filtering on Field = Value
	Field string
	Value string

	StatusCode int
	Message    string
	Delay      time.Duration
}

// MockERP is an in-memory Frappe style resource API for testing.
type MockERP struct {
	server   *httptest.Server
	mu       sync.RWMutex
	docs     map[string][]map[string]any
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures []Failure
	nextName int

	// Tracking
	RequestCount      int
	ResourceCounts    map[string]int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockERP creates a new mock ERP server.
func NewMockERP() *MockERP {
	mock := &MockERP{
		docs:           make(map[string][]map[string]any),
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		ResourceCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource, name := splitResourcePath(r.URL.Path)

		mock.mu.Lock()
		mock.RequestCount++
		mock.ResourceCounts[resource]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if r.Header.Get("Authorization") != "token "+TestAPIKey+":"+TestAPISecret {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"exc_type": "AuthenticationError", "message": "Invalid credentials"})
			return
		}
		if resource == "" {
			writeJSON(w, http.StatusNotFound, map[string]any{"exc_type": "DoesNotExistError"})
			return
		}

		switch {
		case r.Method == http.MethodGet && name == "":
			mock.handleList(w, r, resource)
		case r.Method == http.MethodGet:
			mock.handleGet(w, resource, name)
		case r.Method == http.MethodPost && name == "":
			mock.handleInsert(w, r, resource)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"exc_type": "ValidationError"})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockERP) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockERP) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockERP) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ResourceCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockERP) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockERP) SetResponse(path string, resp MockERPResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// AddDocs appends documents of a resource type.
func (m *MockERP) AddDocs(resource string, docs ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[resource] = append(m.docs[resource], docs...)
}

// Docs returns a copy of the stored documents of a resource type.
func (m *MockERP) Docs(resource string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, len(m.docs[resource]))
	copy(out, m.docs[resource])
	return out
}

// AddFailure registers a failure rule for list requests.
func (m *MockERP) AddFailure(f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
}

// ClearFailures removes all failure rules.
func (m *MockERP) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockERP) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetResourceCount returns the number of requests for one resource type.
func (m *MockERP) GetResourceCount(resource string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ResourceCounts[resource]
}

func (m *MockERP) handleList(w http.ResponseWriter, r *http.Request, resource string) {
	q := r.URL.Query()

	var filters [][]any
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			writeJSON(w, http.StatusExpectationFailed, map[string]any{"exception": "invalid filters: " + err.Error()})
			return
		}
	}

	if f, ok := m.matchFailure(resource, filters); ok {
		if f.Delay > 0 {
			time.Sleep(f.Delay)
		}
		msg := f.Message
		if msg == "" {
			msg = "injected failure"
		}
		writeJSON(w, f.StatusCode, map[string]any{"exception": msg})
		return
	}

	m.mu.RLock()
	var matched []map[string]any
	for _, doc := range m.docs[resource] {
		if matchesFilters(doc, filters) {
			matched = append(matched, doc)
		}
	}
	m.mu.RUnlock()

	if order := q.Get("order_by"); order != "" {
		field := strings.Fields(order)[0]
		desc := strings.HasSuffix(strings.ToLower(order), " desc")
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fmt.Sprint(matched[i][field]), fmt.Sprint(matched[j][field])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	start, _ := strconv.Atoi(q.Get("limit_start"))
	length := 20
	if v := q.Get("limit_page_length"); v != "" {
		length, _ = strconv.Atoi(v)
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if length > 0 && start+length < end {
		end = start + length
	}

	var fields []string
	if raw := q.Get("fields"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &fields)
	}

	data := make([]map[string]any, 0, end-start)
	for _, doc := range matched[start:end] {
		data = append(data, project(doc, fields))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *MockERP) handleGet(w http.ResponseWriter, resource, name string) {
	if f, ok := m.matchFailure(resource, [][]any{{"name", "=", name}}); ok {
		writeJSON(w, f.StatusCode, map[string]any{"exception": f.Message})
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs[resource] {
		if fmt.Sprint(doc["name"]) == name {
			writeJSON(w, http.StatusOK, map[string]any{"data": doc})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{
		"exc_type":       "DoesNotExistError",
		"_error_message": fmt.Sprintf("%s %s not found", resource, name),
	})
}

func (m *MockERP) handleInsert(w http.ResponseWriter, r *http.Request, resource string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"exception": err.Error()})
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeJSON(w, http.StatusExpectationFailed, map[string]any{"exception": "invalid document: " + err.Error()})
		return
	}
	if f, ok := m.matchFailure(resource, nil); ok {
		writeJSON(w, f.StatusCode, map[string]any{"exception": f.Message})
		return
	}

	m.mu.Lock()
	m.nextName++
	if _, ok := doc["name"]; !ok {
		doc["name"] = fmt.Sprintf("%s-%05d", strings.ToUpper(strings.ReplaceAll(resource, " ", "-")), m.nextName)
	}
	m.docs[resource] = append(m.docs[resource], doc)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (m *MockERP) matchFailure(resource string, filters [][]any) (Failure, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.failures {
		if f.Resource != resource {
			continue
		}
		if f.Field == "" {
			return f, true
		}
		for _, cond := range filters {
			if len(cond) == 3 && fmt.Sprint(cond[0]) == f.Field && fmt.Sprint(cond[2]) == f.Value {
				return f, true
			}
		}
	}
	return Failure{}, false
}

func matchesFilters(doc map[string]any, filters [][]any) bool {
	for _, cond := range filters {
		if len(cond) != 3 {
			return false
		}
		field := fmt.Sprint(cond[0])
		op := fmt.Sprint(cond[1])
		want := normalizeValue(cond[2])
		got := normalizeValue(doc[field])
		switch op {
		case "=":
			if got != want {
				return false
			}
		case "!=":
			if got == want {
				return false
			}
		case "is":
			if (want == "set") != (got != "") {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// normalizeValue compares check fields and numbers by their text form.
func normalizeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func project(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func splitResourcePath(path string) (resource, name string) {
	rest, ok := strings.CutPrefix(path, "/api/resource/")
	if !ok {
		return "", ""
	}
	resource, name, _ = strings.Cut(rest, "/")
	return resource, name
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockERPResponse {
	return MockERPResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"exception": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockERPResponse {
	return MockERPResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"exception": "Too many requests"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
