// Package client provides the team API HTTP client with rate limiting,
// retries and a typed error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/ratelimit"
)

// Prometheus metrics for team API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamadmin_requests_total",
		Help: "Total team API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teamadmin_request_duration_seconds",
		Help:    "Team API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamadmin_errors_total",
		Help: "Total team API errors by class",
	}, []string{"class"})
)

// Provider defaults.
const (
	DefaultBaseURL    = "https://api.dropboxapi.com"
	DefaultContentURL = "https://content.dropboxapi.com"
	DefaultAPIVersion = "2"
)

// Provider-specific headers.
const (
	HeaderSelectUser  = "Dropbox-API-Select-User"
	HeaderSelectAdmin = "Dropbox-API-Select-Admin"
	HeaderAPIArg      = "Dropbox-API-Arg"
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the team API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	retry       RetryConfig
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the RPC endpoints, ContentURL of the content (download) endpoints.
	BaseURL    string
	ContentURL string
	APIVersion string

	// AccessToken is a team-scoped bearer token (REQUIRED).
	AccessToken string

	// UserAgent header (REQUIRED).
	UserAgent string

	// Redis shares rate limit cooldowns between processes. Optional.
	Redis *redis.Client

	// RequestsPerSecond paces outgoing calls; 0 disables pacing.
	RequestsPerSecond float64

	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(accessToken, userAgent string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		ContentURL:        DefaultContentURL,
		APIVersion:        DefaultAPIVersion,
		AccessToken:       accessToken,
		UserAgent:         userAgent,
		RequestsPerSecond: 10,
		RequestTimeout:    30 * time.Second,
		MaxRetries:        2,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
	}
}

// New creates a new team API client. Validation failures are KindConfig errors.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, NewConfigError("access token is required")
	}
	if cfg.UserAgent == "" {
		return nil, NewConfigError("user-agent is required")
	}
	if cfg.BaseURL == "" {
		return nil, NewConfigError("base url is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.ContentURL == "" {
		cfg.ContentURL = cfg.BaseURL
	}
	if cfg.MaxRetries < 0 {
		return nil, NewConfigError("max retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentClient)

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		rateLimiter: ratelimit.NewTracker(cfg.Redis, cfg.RequestsPerSecond, logger),
		config:      cfg,
		retry:       retry,
		logger:      logger,
	}, nil
}

// CallOption customises a single call.
type CallOption func(*callOptions)

type callOptions struct {
	header http.Header
}

// AsMember performs the call on behalf of a team member (admin-on-behalf-of).
func AsMember(teamMemberID string) CallOption {
	return func(o *callOptions) {
		if teamMemberID != "" {
			o.header.Set(HeaderSelectUser, teamMemberID)
		}
	}
}

// AsAdmin performs a team-space call as the given admin.
func AsAdmin(teamMemberID string) CallOption {
	return func(o *callOptions) {
		if teamMemberID != "" {
			o.header.Set(HeaderSelectAdmin, teamMemberID)
		}
	}
}

// WithHeader sets an arbitrary request header.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.header.Set(key, value)
	}
}

// Call performs an RPC-style POST to endpoint (e.g. "team/members/list") with a
// JSON body and decodes the JSON response into out. A nil out discards the body.
func (c *Client) Call(ctx context.Context, endpoint string, body any, out any, opts ...CallOption) error {
	url, err := c.endpointURL(c.config.BaseURL, endpoint)
	if err != nil {
		return err
	}

	payload := []byte("null")
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindConfig, Endpoint: endpoint, Message: "encode request body", Err: err}
		}
	}

	header := c.buildHeader(opts)
	header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, endpoint, url, payload, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindTransport, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewParseError(endpoint, "empty response body", nil)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewParseError(endpoint, "decode response body", err)
	}
	return nil
}

// Download fetches a content endpoint (e.g. "files/download"), passing arg as the
// JSON-encoded Dropbox-API-Arg header, and streams the body into w.
func (c *Client) Download(ctx context.Context, endpoint string, arg any, w io.Writer, opts ...CallOption) (int64, error) {
	url, err := c.endpointURL(c.config.ContentURL, endpoint)
	if err != nil {
		return 0, err
	}

	argJSON, err := json.Marshal(arg)
	if err != nil {
		return 0, &APIError{Kind: KindConfig, Endpoint: endpoint, Message: "encode api arg", Err: err}
	}

	header := c.buildHeader(opts)
	header.Set(HeaderAPIArg, string(argJSON))

	resp, err := c.do(ctx, endpoint, url, nil, header)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &APIError{Kind: KindTransport, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "stream response body", Err: err}
	}
	return n, nil
}

// do performs a POST with rate limiting, retries and error classification.
// On success the caller owns the 2xx response body.
func (c *Client) do(ctx context.Context, endpoint, url string, payload []byte, header http.Header) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("member_id", header.Get(HeaderSelectUser)).
		Msg("Executing team API request")

	var resp *http.Response

	// Cooldowns and backoff wait under waitCtx; a call timeout bounds each attempt.
	waitCtx, attemptTimeout := splitCallTimeout(ctx)

	retryErr := retryWithBackoff(waitCtx, c.retry, func() error {
		if err := c.rateLimiter.Wait(waitCtx); err != nil {
			return &APIError{Kind: KindTransport, Endpoint: endpoint, Message: "waiting for rate limit", Err: err}
		}

		reqCtx, cancel := waitCtx, context.CancelFunc(func() {})
		if attemptTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(waitCtx, attemptTimeout)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, body)
		if err != nil {
			cancel()
			return &APIError{Kind: KindConfig, Endpoint: endpoint, Message: "create request", Err: err}
		}
		req.Header = header.Clone()

		r, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			class := c.classifyError(nil, err)
			errorsTotal.WithLabelValues(string(class)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &APIError{Kind: KindTransport, ErrorClass: class, Endpoint: endpoint, Message: "request failed", Err: err}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if _, err := c.rateLimiter.UpdateFromResponse(waitCtx, r.StatusCode, r.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit cooldown")
		}

		if r.StatusCode >= 200 && r.StatusCode < 300 {
			r.Body = &cancelOnClose{ReadCloser: r.Body, cancel: cancel}
			resp = r
			return nil
		}

		class := c.classifyError(r, nil)
		errorsTotal.WithLabelValues(string(class)).Inc()
		apiErr := providerError(endpoint, r, class)
		r.Body.Close()
		cancel()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Str("summary", apiErr.Message).
			Msg("Team API request error")

		return apiErr
	}, func(err error) ErrorClass {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.ErrorClass
		}
		return ""
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return resp, nil
}

// classifyError categorizes an error for observability and retry handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// providerError builds a KindProvider error from a non-2xx response, preferring
// the provider's error_summary over the status line.
func providerError(endpoint string, resp *http.Response, class ErrorClass) *APIError {
	msg := resp.Status
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		ErrorSummary string `json:"error_summary"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err == nil && body.ErrorSummary != "" {
			msg = body.ErrorSummary
		} else if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "{") {
			msg = text
		}
	}
	return &APIError{
		Kind:       KindProvider,
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Endpoint:   endpoint,
		Message:    msg,
	}
}

func (c *Client) endpointURL(base, endpoint string) (string, error) {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return "", NewConfigError("missing service url")
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), c.config.APIVersion, endpoint), nil
}

func (c *Client) buildHeader(opts []CallOption) http.Header {
	o := callOptions{header: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.header.Set("Authorization", "Bearer "+c.config.AccessToken)
	o.header.Set("User-Agent", c.config.UserAgent)
	return o.header
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
