package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/teamadmin/internal/testutil"
)

const testToken = "test-token"

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()

	cfg := DefaultConfig(testToken, "TeamAdmin/test (ops@example.com)")
	cfg.BaseURL = baseURL
	cfg.ContentURL = baseURL
	cfg.RequestsPerSecond = 0
	cfg.MaxRetries = maxRetries
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"empty token", func(c *Config) { c.AccessToken = "" }, "access token is required"},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, "user-agent is required"},
		{"empty base url", func(c *Config) { c.BaseURL = "" }, "base url is required"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max retries must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testToken, "TeamAdmin/test")
			tt.mutate(&cfg)

			_, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errorMsg)
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testToken, "TeamAdmin/1.0")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.ContentURL != DefaultContentURL {
		t.Errorf("ContentURL = %q, want %q", cfg.ContentURL, DefaultContentURL)
	}
	if cfg.APIVersion != "2" {
		t.Errorf("APIVersion = %q, want 2", cfg.APIVersion)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
}

func TestClassifyError(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorClass
	}{
		{"network error", 0, errors.New("dial tcp: connection refused"), ErrorClassNetwork},
		{"rate limit", http.StatusTooManyRequests, nil, ErrorClassRateLimit},
		{"bad request", http.StatusBadRequest, nil, ErrorClassClient},
		{"conflict", http.StatusConflict, nil, ErrorClassClient},
		{"server error", http.StatusInternalServerError, nil, ErrorClassServer},
		{"gateway", http.StatusBadGateway, nil, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.status}
			}
			if got := c.classifyError(resp, tt.err); got != tt.want {
				t.Errorf("classifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCall_SetsHeaders(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/paper/docs/list", testutil.NewJSONResponse(`{"doc_ids": []}`))

	c := newTestClient(t, mock.URL(), 0)
	var out map[string]any
	if err := c.Call(context.Background(), "paper/docs/list", map[string]int{"limit": 10}, &out, AsMember("dbmid:abc")); err != nil {
		t.Fatalf("Call: %v", err)
	}

	req, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if got := req.Header.Get("Authorization"); got != "Bearer "+testToken {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("User-Agent"); !strings.HasPrefix(got, "TeamAdmin/test") {
		t.Errorf("User-Agent = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get(HeaderSelectUser); got != "dbmid:abc" {
		t.Errorf("%s = %q, want dbmid:abc", HeaderSelectUser, got)
	}
	if string(req.Body) != `{"limit":10}` {
		t.Errorf("body = %s", req.Body)
	}
}

func TestCall_NilBodySendsNull(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/get_info", testutil.NewJSONResponse(`{"name": "Acme"}`))

	c := newTestClient(t, mock.URL(), 0)
	var out struct {
		Name string `json:"name"`
	}
	if err := c.Call(context.Background(), "team/get_info", nil, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Name != "Acme" {
		t.Errorf("Name = %q, want Acme", out.Name)
	}
	req, _ := mock.LastRequest()
	if string(req.Body) != "null" {
		t.Errorf("body = %q, want null", req.Body)
	}
}

func TestCall_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"members": [`},
		{"wrong shape", `{"has_more": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetResponse("/2/team/members/list", testutil.MockResponse{StatusCode: http.StatusOK, Body: tt.body})

			c := newTestClient(t, mock.URL(), 0)
			var out struct {
				HasMore bool `json:"has_more"`
			}
			err := c.Call(context.Background(), "team/members/list", nil, &out)
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestCall_ProviderErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/members/list/continue", testutil.NewProviderErrorResponse(http.StatusConflict, "reset/"))

	c := newTestClient(t, mock.URL(), 3)
	err := c.Call(context.Background(), "team/members/list/continue", map[string]string{"cursor": "stale"}, &struct{}{})

	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status() != http.StatusConflict {
		t.Errorf("Status() = %d, want 409", apiErr.Status())
	}
	if apiErr.Detail() != "reset/" {
		t.Errorf("Detail() = %q, want reset/", apiErr.Detail())
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("request count = %d, want 1 (4xx not retried)", n)
	}
}

func TestCall_PlainTextErrorBody(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/members/list", testutil.MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       "Error in call to API function \"team/members/list\": bad limit",
	})

	c := newTestClient(t, mock.URL(), 0)
	err := c.Call(context.Background(), "team/members/list", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Detail(), "bad limit") {
		t.Errorf("Detail() = %q, want plain-text body", apiErr.Detail())
	}
}

func TestCall_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("/2/team/members/list",
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"members": [], "cursor": "", "has_more": false}`),
	)

	c := newTestClient(t, mock.URL(), 2)
	var out struct {
		HasMore bool `json:"has_more"`
	}
	if err := c.Call(context.Background(), "team/members/list", nil, &out); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Errorf("request count = %d, want 3", n)
	}
}

func TestCall_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/members/list", testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), 1)
	err := c.Call(context.Background(), "team/members/list", nil, &struct{}{})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status() != http.StatusInternalServerError {
		t.Errorf("expected provider status 500 in chain, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("request count = %d, want 2", n)
	}
}

func TestCall_RateLimitRecordsCooldown(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team_log/get_events", testutil.NewRateLimitResponse(2))

	c := newTestClient(t, mock.URL(), 0)
	err := c.Call(context.Background(), "team_log/get_events", nil, &struct{}{})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	state, err := c.RateLimiter().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !state.Active() {
		t.Error("expected an active cooldown after 429")
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}
}

func TestCall_TransportError(t *testing.T) {
	mock := testutil.NewMockAPI()
	url := mock.URL()
	mock.Close()

	c := newTestClient(t, url, 0)
	err := c.Call(context.Background(), "team/members/list", nil, &struct{}{})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestCall_MissingEndpoint(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 0)
	err := c.Call(context.Background(), "", nil, nil)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/members/list", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      500 * time.Millisecond,
	})

	c := newTestClient(t, mock.URL(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, "team/members/list", nil, &struct{}{})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded in chain, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/files/download", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "file contents",
	})

	c := newTestClient(t, mock.URL(), 0)
	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "files/download", map[string]string{"path": "/Reports/q1.txt"}, &buf, AsMember("dbmid:abc"))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len("file contents")) || buf.String() != "file contents" {
		t.Errorf("downloaded %d bytes %q", n, buf.String())
	}

	req, _ := mock.LastRequest()
	var arg map[string]string
	if err := json.Unmarshal([]byte(req.Header.Get(HeaderAPIArg)), &arg); err != nil {
		t.Fatalf("decode %s: %v", HeaderAPIArg, err)
	}
	if arg["path"] != "/Reports/q1.txt" {
		t.Errorf("api arg path = %q", arg["path"])
	}
	if len(req.Body) != 0 {
		t.Errorf("download request should have no body, got %q", req.Body)
	}
}

func TestCall_AdminAndCustomHeaders(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/files/list_folder", testutil.NewJSONResponse(`{"entries": []}`))

	c := newTestClient(t, mock.URL(), 0)
	err := c.Call(context.Background(), "files/list_folder", map[string]string{"path": ""}, nil,
		AsAdmin("dbmid:admin"), AsMember(""), WithHeader("Dropbox-API-Path-Root", `{".tag": "root", "root": "123"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	req, _ := mock.LastRequest()
	if got := req.Header.Get(HeaderSelectAdmin); got != "dbmid:admin" {
		t.Errorf("%s = %q, want dbmid:admin", HeaderSelectAdmin, got)
	}
	if got := req.Header.Get(HeaderSelectUser); got != "" {
		t.Errorf("%s = %q, want empty for an empty member id", HeaderSelectUser, got)
	}
	if got := req.Header.Get("Dropbox-API-Path-Root"); got != `{".tag": "root", "root": "123"}` {
		t.Errorf("Dropbox-API-Path-Root = %q", got)
	}
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(req)
}

func TestSetHTTPClient(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/get_info", testutil.NewJSONResponse(`{"name": "Acme"}`))

	c := newTestClient(t, mock.URL(), 0)
	transport := &countingTransport{next: http.DefaultTransport}
	c.SetHTTPClient(&http.Client{Transport: transport, Timeout: time.Second})

	if err := c.Call(context.Background(), "team/get_info", nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("transport calls = %d, want 1", transport.calls)
	}
}

func TestCall_CallTimeoutExcludesRateLimitCooldown(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetSequence("/2/team/members/list",
		testutil.NewRateLimitResponse(1),
		testutil.NewJSONResponse(`{"members": [], "cursor": "", "has_more": false}`),
	)

	c := newTestClient(t, mock.URL(), 2)
	ctx, cancel := WithCallTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	var out struct {
		HasMore bool `json:"has_more"`
	}
	if err := c.Call(ctx, "team/members/list", nil, &out); err != nil {
		t.Fatalf("expected success after the cooldown, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("request count = %d, want 2", n)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("elapsed = %v, expected the 1s Retry-After to be honoured", elapsed)
	}
}

func TestCall_CallTimeoutBoundsEachAttempt(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/team/members/list", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      500 * time.Millisecond,
	})

	c := newTestClient(t, mock.URL(), 1)
	ctx, cancel := WithCallTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Call(ctx, "team/members/list", nil, &struct{}{})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded in chain, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("request count = %d, want 2 (each attempt gets its own timeout)", n)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("elapsed = %v, attempts were not bounded", elapsed)
	}
}
