// Package api is the single way the portal talks to the payroll backend. It
// attaches the browser's bearer credential to every call and ends the
// browser session when the backend rejects it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const maxBodyBytes = 4 << 20

// DefaultBaseURL is the backend root used when none is configured.
const DefaultBaseURL = "http://localhost:8080/api"

// InvalidationFunc runs when the backend rejects the credentials of a call.
type InvalidationFunc func(ctx context.Context)

// Observer receives request outcomes. Status is 0 for transport failures.
type Observer interface {
	ObserveBackend(method string, status int, elapsed time.Duration)
	ObserveInvalidation()
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	Logger     *slog.Logger
	Observer   Observer
	HTTPClient *http.Client
}

// Client sends JSON requests to the backend.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	logger   *slog.Logger
	observer Observer

	mu          sync.RWMutex
	invalidated []InvalidationFunc
}

// Response is a successful backend response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("api: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("api: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("api: invalid base url host")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  base,
		http:     httpClient,
		tokens:   cfg.Tokens,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

// OnInvalidated registers fn to run whenever a call comes back 401 or 403.
func (c *Client) OnInvalidated(fn InvalidationFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.invalidated = append(c.invalidated, fn)
	c.mu.Unlock()
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...Option) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, nil, opts...)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...Option) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, body, opts...)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...Option) (*Response, error) {
	return c.Send(ctx, http.MethodPut, path, body, opts...)
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...Option) (*Response, error) {
	return c.Send(ctx, http.MethodPatch, path, body, opts...)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, path, nil, opts...)
}

// Send issues a request to path, relative to the backend root. Transport
// errors are returned as they are. Non-2xx responses come back as
// *StatusError; 401 and 403 first run the invalidation handlers unless the
// call was made with SkipInvalidation.
func (c *Client) Send(ctx context.Context, method, path string, body any, opts ...Option) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	req, err := c.newRequest(ctx, method, path, body, o)
	if err != nil {
		return nil, err
	}
	c.attachCredential(ctx, req, o)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.observe(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode/100 == 2 {
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}

	statusErr := &StatusError{Status: resp.StatusCode, Message: backendMessage(data), Body: data}
	if isAuthFailure(resp.StatusCode) && !o.skipInvalidation {
		c.logger.Warn("backend rejected credentials",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		c.invalidate(ctx)
	}
	return nil, statusErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, o requestOptions) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(o.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + o.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range o.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

func (c *Client) attachCredential(ctx context.Context, req *http.Request, o requestOptions) {
	var raw string
	switch {
	case o.token != nil:
		raw = *o.token
	case c.tokens != nil:
		var ok bool
		raw, ok = c.tokens.Token(ctx)
		if !ok {
			return
		}
	default:
		return
	}
	tok, ok := bearerToken(raw)
	if !ok {
		if strings.TrimSpace(raw) != "" {
			c.logger.Debug("bearer token withheld", slog.String("path", req.URL.Path))
		}
		return
	}
	tok.SetAuthHeader(req)
}

func (c *Client) invalidate(ctx context.Context) {
	if c.observer != nil {
		c.observer.ObserveInvalidation()
	}
	c.mu.RLock()
	handlers := append([]InvalidationFunc(nil), c.invalidated...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx)
	}
}

func (c *Client) observe(method string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveBackend(method, status, elapsed)
	}
}
