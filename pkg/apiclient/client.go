// Package apiclient is the authenticated HTTP client for the IOTRAC backend.
//
// The client owns the bearer token (SetToken is the only way to change it),
// maps every failure to a typed *Error, and transparently recovers from an
// expired access token: on a 401 it invokes the registered Refresher once,
// then resends the original request once with the new token. A JWT that
// expires within ExpiryLeeway is refreshed before sending instead, and that
// refresh is the request's only one. Concurrent 401s share a single refresh.
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
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/idx"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTimeout        = 15 * time.Second
	DefaultRefreshTimeout = 15 * time.Second

	// ExpiryLeeway is how close to its exp claim a JWT access token may get
	// before the client refreshes it ahead of sending.
	ExpiryLeeway = 30 * time.Second
)

// Refresher obtains a new access token. It is called at most once per
// logical request.
type Refresher func(ctx context.Context) (string, error)

type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
	refreshTimeout time.Duration
	now            func() time.Time

	token atomic.Pointer[string]

	mu        sync.Mutex
	refresher Refresher
	inflight  *refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

type options struct {
	httpClient     *http.Client
	transport      http.RoundTripper
	timeout        time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger
	token          string
	refresher      Refresher
	now            func() time.Time
}

type Option func(*options)

// WithHTTPClient uses hc as-is. Timeout and transport options are ignored.
func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.httpClient = hc } }

// WithTransport sets the base round tripper under the logging transport.
func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.transport = rt } }

func WithTimeout(d time.Duration) Option        { return func(o *options) { o.timeout = d } }
func WithRefreshTimeout(d time.Duration) Option { return func(o *options) { o.refreshTimeout = d } }
func WithLogger(l *slog.Logger) Option          { return func(o *options) { o.logger = l } }
func WithToken(token string) Option             { return func(o *options) { o.token = token } }
func WithRefresher(r Refresher) Option          { return func(o *options) { o.refresher = r } }

// WithClock overrides the time source used for JWT expiry checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	o := options{
		timeout:        DefaultTimeout,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := slogx.OrDefault(o.logger)

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   o.timeout,
			Transport: slogx.NewTransport(o.transport, logger),
		}
	}

	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     hc,
		logger:         logger,
		refreshTimeout: o.refreshTimeout,
		now:            o.now,
		refresher:      o.refresher,
	}
	c.SetToken(o.token)
	return c
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer token for all subsequent requests. An empty
// token sends requests without an Authorization header.
func (c *Client) SetToken(token string) {
	c.token.Store(&token)
}

// Token returns the last committed bearer token.
func (c *Client) Token() string {
	if p := c.token.Load(); p != nil {
		return *p
	}
	return ""
}

// SetRefresher registers the callback invoked on 401. Nil disables refresh.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends an authenticated request. body is JSON-encoded when non-nil; a 2xx
// response is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	// refreshed is set once the request has used its one refresh.
	refreshed := false
	token := c.Token()
	if token != "" && c.hasRefresher() && c.expiresSoon(token) {
		fresh, err := c.refresh(ctx, token)
		if err != nil && ctx.Err() != nil {
			return transportError(ctx.Err())
		}
		if err != nil {
			return &Error{Kind: KindAuth, Detail: "session expired", Err: err}
		}
		token, refreshed = fresh, true
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !refreshed && c.hasRefresher() {
		c.logger.DebugContext(ctx, "access token rejected, refreshing", "path", path)

		fresh, rerr := c.refresh(ctx, token)
		if rerr != nil && ctx.Err() != nil {
			return transportError(ctx.Err())
		}
		if rerr != nil {
			apiErr := statusError(status, respBody)
			apiErr.Err = rerr
			return apiErr
		}

		// Retried once; a second 401 is final.
		status, respBody, err = c.send(ctx, method, path, payload, fresh)
		if err != nil {
			return err
		}
	}

	return decode(status, respBody, out)
}

// DoPublic sends a request without a bearer token and without refresh.
// Used for login, registration and the refresh call itself.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, method, path, payload, "")
	if err != nil {
		return err
	}
	return decode(status, respBody, out)
}

// DoWithToken sends one request with an explicit bearer token, bypassing the
// stored token and the refresh path. Used to call the backend with a token
// that has not been committed yet, and for best-effort logout.
func (c *Client) DoWithToken(ctx context.Context, token, method, path string, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}
	return decode(status, respBody, out)
}

func (c *Client) hasRefresher() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresher != nil
}

// refresh runs the refresher for a request that was sent with used. If
// another goroutine already replaced used, its result is reused. The
// refresher runs on a context detached from ctx so a cancelled caller does
// not discard a token the backend has already rotated.
func (c *Client) refresh(ctx context.Context, used string) (string, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		return waitRefresh(ctx, call)
	}
	if current := c.Token(); current != "" && current != used {
		c.mu.Unlock()
		return current, nil
	}
	refresher := c.refresher
	if refresher == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("no refresher registered")
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	go func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()

		token, err := refresher(rctx)
		if err == nil && token == "" {
			err = fmt.Errorf("refresher returned an empty token")
		}
		if err == nil {
			c.SetToken(token)
		}

		c.mu.Lock()
		call.token, call.err = token, err
		c.inflight = nil
		c.mu.Unlock()
		close(call.done)
	}()

	return waitRefresh(ctx, call)
}

func waitRefresh(ctx context.Context, call *refreshCall) (string, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// send performs one round trip and returns the status and full body.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idx.RequestIDHeader, idx.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, transportError(err)
	}

	return resp.StatusCode, respBody, nil
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return payload, nil
}

func decode(status int, body []byte, out any) error {
	if status < 200 || status > 299 {
		return statusError(status, body)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &Error{Kind: KindMalformed, Status: status, Err: fmt.Errorf("empty response body")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindMalformed, Status: status, Err: err}
	}
	return nil
}
