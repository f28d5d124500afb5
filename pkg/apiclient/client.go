package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/idx"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every request unless overridden with WithTimeout.
	DefaultTimeout = 10 * time.Second

	// HeaderRequestID carries the per-request correlation id.
	HeaderRequestID = "X-Request-ID"
)

// Client is a configured HTTP client for the learnhub backend.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *Metrics
	timeout time.Duration

	mu           sync.RWMutex
	interceptors []Interceptor
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the request timeout. It applies regardless of
// option order, including on a client given to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient uses a copy of hc for requests. Its Timeout is kept unless
// WithTimeout is also given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.http = &cp
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit throttles outgoing requests with a token bucket.
// A limit of zero or less disables throttling.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for baseURL with a 10 second default timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the request timeout of the underlying http.Client.
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout
}

// Send runs req through the interceptor pipeline and performs the call.
// req itself is never modified.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	r := req.Clone()
	chain := c.chain()

	for _, i := range chain {
		if err := i.InterceptRequest(ctx, r); err != nil {
			return nil, err
		}
	}

	if r.Header.Get(HeaderRequestID) == "" {
		r.Header.Set(HeaderRequestID, idx.NewRequestID())
	}

	resp, err := c.roundTrip(ctx, r)
	if err == nil {
		return resp, nil
	}

	for _, i := range chain {
		resolved, ierr := i.InterceptError(ctx, c, r, err)
		if ierr == nil && resolved != nil {
			return resolved, nil
		}
		if ierr != nil {
			err = ierr
		}
	}

	return nil, err
}

// Do sends req and decodes the envelope data into out, if out is non-nil.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Get issues a GET request for path.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequest(http.MethodGet, path, nil, opts...), out)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequest(http.MethodPost, path, body, opts...), out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequest(http.MethodPut, path, body, opts...), out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequest(http.MethodPatch, path, body, opts...), out)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequest(http.MethodDelete, path, nil, opts...), out)
}

// roundTrip performs a single HTTP exchange for an already intercepted request.
func (c *Client) roundTrip(ctx context.Context, r *Request) (*Response, error) {
	start := time.Now()
	target := c.baseURL + r.URL()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: r.Method, URL: target, Err: err}
		}
	}

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create request: %w", err)
	}
	for key, values := range r.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With(
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.String("request_id", r.Header.Get(HeaderRequestID)),
	)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(r.Method, "transport", time.Since(start))
		logger.DebugContext(ctx, "request failed", slog.Any("error", err))
		return nil, &TransportError{Method: r.Method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.observe(r.Method, "transport", time.Since(start))
		return nil, &TransportError{Method: r.Method, URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}

	c.metrics.observe(r.Method, statusClass(httpResp.StatusCode), time.Since(start))
	logger.DebugContext(ctx, "request completed",
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	return decodeResponse(httpResp.StatusCode, httpResp.Header, raw)
}

// chain returns a snapshot of the registered interceptors.
func (c *Client) chain() []Interceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Interceptor, len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
