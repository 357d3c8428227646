// ABOUTME: HTTP request/response backend for gateway calls
// ABOUTME: Retries failed GETs and shares its cookie jar with the push channel

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultAttempts       = 3
)

// ErrNotSetUp is returned by calls made before Setup or after Cleanup.
var ErrNotSetUp = errors.New("http client not set up")

// Endpoint is a gateway host and port.
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

func (e Endpoint) hostport() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HTTPURL returns the base http(s) URL of the endpoint.
func (e Endpoint) HTTPURL() string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return scheme + "://" + e.hostport()
}

// WebSocketURL returns the ws(s) URL for path on the endpoint.
func (e Endpoint) WebSocketURL(path string) string {
	scheme := "ws"
	if e.TLS {
		scheme = "wss"
	}
	if path == "" {
		path = "/"
	}
	return scheme + "://" + e.hostport() + path
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsJSON reports whether the response declares a JSON body.
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	return err == nil && mediaType == "application/json"
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// HTTPClient is the request/response backend.
type HTTPClient struct {
	endpoint Endpoint
	timeout  time.Duration
	attempts int
	logger   *slog.Logger

	jar    http.CookieJar
	client *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithRequestTimeout bounds each request attempt.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithAttempts sets how many times a GET is tried on transport errors.
func WithAttempts(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// NewHTTPClient creates an HTTP backend for ep. Pass nil logger for default.
func NewHTTPClient(ep Endpoint, logger *slog.Logger, opts ...HTTPOption) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &HTTPClient{
		endpoint: ep,
		timeout:  defaultRequestTimeout,
		attempts: defaultAttempts,
		logger:   logger.With("component", "http_client", "endpoint", ep.HTTPURL()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint the client talks to.
func (c *HTTPClient) Endpoint() Endpoint {
	return c.endpoint
}

// Setup creates the underlying client and cookie jar.
func (c *HTTPClient) Setup(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	c.jar = jar
	c.client = &http.Client{Jar: jar, Timeout: c.timeout}
	c.logger.Debug("http client ready")
	return nil
}

// Cleanup releases idle connections. The client is unusable afterwards.
func (c *HTTPClient) Cleanup() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
		c.client = nil
	}
	return nil
}

// Get issues a GET for path with optional query parameters.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	u := c.endpoint.HTTPURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

// PostJSON issues a POST for path with body encoded as JSON.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.endpoint.HTTPURL()+path, data)
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body []byte) (*Response, error) {
	if c.client == nil {
		return nil, ErrNotSetUp
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.once(ctx, method, u, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(method, err) {
			return nil, fmt.Errorf("%s %s: %w", method, u, err)
		}
		lastErr = err
		c.logger.Warn("request failed",
			"method", method,
			"url", u,
			"attempt", attempt,
			"error", err)
	}
	return nil, fmt.Errorf("%s %s after %d attempts: %w", method, u, c.attempts, lastErr)
}

// retryable reports whether a failed request may be sent again. Only GETs
// are repeated, and never after a timeout: the gateway may already have
// acted on a request whose response was lost.
func retryable(method string, err error) bool {
	if method != http.MethodGet {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return false
	}
	return true
}

func (c *HTTPClient) once(ctx context.Context, method, u string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// dialer returns a WebSocket dialer sharing this client's cookie jar.
func (c *HTTPClient) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              c.jar,
	}
}
