// Package api is the HTTP client for the capability registry backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/log"
	"github.com/felixgeelhaar/capboard/internal/version"
)

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Config holds the client settings.
type Config struct {
	BaseURL      string
	Profile      Profile
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns a configuration for a local registry.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8000",
		Profile:      ProfileHierarchy,
		Timeout:      30 * time.Second,
		RetryMax:     2,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the round tripper every request goes through.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithLogger sets the logger for request and retry logging.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client is the capability registry API client.
//
// A Client built by NewClient sends requests without credentials. The copy
// returned by WithAuth sends every call except Login through the wrapped
// transport, which is where bearer tokens are attached.
type Client struct {
	baseURL string
	profile Profile
	cfg     Config
	logger  *log.Logger

	base   http.RoundTripper
	authed http.RoundTripper

	plain *http.Client
	retry *retryablehttp.Client
	login *http.Client
}

// NewClient creates a new registry API client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewConfigInvalidError("api.url", cfg.BaseURL, "an absolute http(s) URL")
	}
	profile, err := ParseProfile(string(cfg.Profile))
	if err != nil {
		return nil, errors.NewConfigInvalidError("api.profile", cfg.Profile, "hierarchy, flat")
	}
	cfg.Profile = profile

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: cfg.Profile,
		cfg:     cfg,
		logger:  log.Discard(),
		base:    http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.authed = c.base
	c.build()
	return c, nil
}

// WithAuth returns a copy of the client whose authenticated calls go through
// wrap(base). The receiver is left unchanged.
func (c *Client) WithAuth(wrap func(http.RoundTripper) http.RoundTripper) *Client {
	clone := *c
	clone.authed = wrap(c.base)
	clone.build()
	return &clone
}

func (c *Client) build() {
	c.login = &http.Client{Transport: c.base, Timeout: c.cfg.Timeout}
	c.plain = &http.Client{Transport: c.authed, Timeout: c.cfg.Timeout}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: c.authed, Timeout: c.cfg.Timeout}
	rc.RetryMax = c.cfg.RetryMax
	rc.RetryWaitMin = c.cfg.RetryWaitMin
	rc.RetryWaitMax = c.cfg.RetryWaitMax
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = c.logger
	c.retry = rc
}

// BaseURL returns the registry base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Profile returns the contract profile the client speaks.
func (c *Client) Profile() Profile {
	return c.profile
}

// checkRetry retries what retryablehttp retries by default, except requests
// that were refused locally because no session exists.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if stderrors.Is(err, errors.ErrNotAuthenticated) {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// request describes one call to the registry.
type request struct {
	method      string
	path        string // already escaped
	query       url.Values
	body        io.Reader
	contentType string
	anonymous   bool // Login: never carries credentials
}

// doRequest performs an HTTP request. Idempotent authenticated GETs go
// through the retrying client; everything else is sent exactly once.
func (c *Client) doRequest(ctx context.Context, r request) (*http.Response, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	var resp *http.Response
	switch {
	case r.anonymous:
		resp, err = c.login.Do(req)
	case r.method == http.MethodGet:
		var rreq *retryablehttp.Request
		rreq, err = retryablehttp.FromRequest(req)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err = c.retry.Do(rreq)
	default:
		resp, err = c.plain.Do(req)
	}

	logger := c.logger.WithContext(ctx).With(
		"method", r.method,
		"path", r.path,
		"request_id", req.Header.Get(RequestIDHeader),
		"duration", time.Since(start),
	)
	if err != nil {
		logger.Debug("request failed", "error", err)
		return nil, err
	}
	logger.Debug("request completed", "status", resp.StatusCode)
	return resp, nil
}

// jsonBody encodes v for a request body.
func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// parseResponse decodes a 2xx body into target, or turns anything else into
// an *APIError carrying the backend's detail.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{
			Status: resp.StatusCode,
			Detail: decodeDetail(body),
		}
		if resp.Request != nil {
			apiErr.RequestID = resp.Request.Header.Get(RequestIDHeader)
		}
		return apiErr
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if d, ok := target.(decoder); ok {
		if err := d.decode(resp.Body); err != nil {
			return errors.Wrap(errors.ErrCodeDecode, "Unexpected response from the registry", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrap(errors.ErrCodeDecode, "Unexpected response from the registry", err)
	}
	return nil
}

// decoder lets response types take over decoding of the raw body.
type decoder interface {
	decode(r io.Reader) error
}
