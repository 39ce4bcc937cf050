// Package testutil provides testing utilities for the team API client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request captured by the mock server.
type RecordedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

// MockAPI is a configurable mock of the team API for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request, body []byte)

	requests []RecordedRequest
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request, body []byte)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r, body)
			return
		}

		writeJSON(w, http.StatusNotFound, map[string]any{
			"error_summary": "path/not_found/",
		})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a path (e.g. "/2/team/members/list").
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request, body []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence answers successive calls with successive responses; the last
// response repeats once the sequence is exhausted.
func (m *MockAPI) SetSequence(path string, resps ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		writeMock(w, resp)
	})
}

// SetPaged serves a cursor-paginated listing. listPath answers with pages[0];
// continuePath expects {"cursor": "<c>"} and answers with the page that cursor
// points to. Each page is wrapped as {<itemsField>: [...], "cursor": ..., "has_more": ...}.
// With cursorObject the cursor is encoded as {"value": "<c>"}. An unknown cursor
// yields 409 "reset/".
func (m *MockAPI) SetPaged(listPath, continuePath, itemsField string, pages [][]any, cursorObject bool) {
	page := func(i int) map[string]any {
		items := pages[i]
		if items == nil {
			items = []any{}
		}
		hasMore := i < len(pages)-1
		cursor := ""
		if hasMore {
			cursor = "c" + strconv.Itoa(i+1)
		}
		out := map[string]any{itemsField: items, "has_more": hasMore}
		if cursorObject {
			out["cursor"] = map[string]any{"value": cursor, "expiration": "2030-01-01T00:00:00Z"}
		} else {
			out["cursor"] = cursor
		}
		return out
	}

	m.SetHandler(listPath, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		if len(pages) == 0 {
			pages = [][]any{{}}
		}
		writeJSON(w, http.StatusOK, page(0))
	})

	m.SetHandler(continuePath, func(w http.ResponseWriter, _ *http.Request, body []byte) {
		var req struct {
			Cursor string `json:"cursor"`
		}
		_ = json.Unmarshal(body, &req)
		n, err := strconv.Atoi(strings.TrimPrefix(req.Cursor, "c"))
		if err != nil || !strings.HasPrefix(req.Cursor, "c") || n < 1 || n >= len(pages) {
			writeJSON(w, http.StatusConflict, map[string]any{"error_summary": "reset/"})
			return
		}
		writeJSON(w, http.StatusOK, page(n))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns the recorded requests for a path, or all requests when path is empty.
func (m *MockAPI) Requests(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// LastRequest returns the most recent request, if any.
func (m *MockAPI) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewProviderErrorResponse creates an error response with an error_summary.
func NewProviderErrorResponse(status int, summary string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error_summary": %q, "error": {".tag": "other"}}`, summary),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "Internal Server Error",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error_summary": "too_many_requests/", "error": {"reason": {".tag": "too_many_requests"}}}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
		},
	}
}

func writeMock(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
