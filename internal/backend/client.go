package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Roelanb/churnboard/internal/payload"
)

const maxErrorBody = 2048

// Logger is the subset of zap.SugaredLogger the client needs.
type Logger interface {
	Errorw(msg string, keysAndValues ...any)
	Debugw(msg string, keysAndValues ...any)
}

// Blob is a raw (non-JSON) response body.
type Blob struct {
	ContentType string
	Data        []byte
}

// Client talks to the analytics backend.
type Client struct {
	log Logger

	mu      sync.RWMutex
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. A zero timeout leaves the transport default.
func NewClient(log Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: normalizeBase(baseURL),
		http:    &http.Client{Timeout: timeout},
	}
}

// Configure swaps base URL and timeout, e.g. after a config reload.
func (c *Client) Configure(baseURL string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = normalizeBase(baseURL)
	c.http = &http.Client{Timeout: timeout}
}

// BaseURL returns the current backend base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func normalizeBase(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// GetJSON issues a GET and decodes the JSON body.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	return c.RequestJSON(ctx, http.MethodGet, path, query, nil)
}

// PostJSON issues a POST with body encoded as JSON and decodes the JSON reply.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (any, error) {
	return c.RequestJSON(ctx, http.MethodPost, path, nil, body)
}

// RequestJSON performs one backend call. Transport failures surface as
// *NetworkError, statuses outside 2xx as *HTTPError. Failures are logged
// before they are returned.
func (c *Client) RequestJSON(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	raw, _, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	out, err := payload.DecodeBytes(raw)
	if err != nil {
		err = fmt.Errorf("decode %s %s: %w", method, path, err)
		c.log.Errorw("backend response decode failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	return out, nil
}

// Download fetches a raw body, e.g. a CSV export.
func (c *Client) Download(ctx context.Context, path string, query url.Values) (*Blob, error) {
	raw, contentType, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return &Blob{ContentType: contentType, Data: raw}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, string, error) {
	c.mu.RLock()
	base, hc := c.baseURL, c.http
	c.mu.RUnlock()

	u, err := url.Parse(base + path)
	if err != nil {
		c.log.Errorw("backend request failed", "method", method, "url", base+path, "error", err)
		return nil, "", &NetworkError{Method: method, URL: base + path, Err: err}
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		c.log.Errorw("backend request failed", "method", method, "url", u.String(), "error", err)
		return nil, "", &NetworkError{Method: method, URL: u.String(), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		nerr := &NetworkError{Method: method, URL: u.String(), Err: err}
		c.log.Errorw("backend request failed", "method", method, "url", u.String(), "error", err)
		return nil, "", nerr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{Method: method, URL: u.String(), Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
		c.log.Errorw("backend returned error status", "method", method, "url", u.String(), "status", resp.StatusCode, "body", herr.Body)
		return nil, "", herr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		nerr := &NetworkError{Method: method, URL: u.String(), Err: err}
		c.log.Errorw("backend response read failed", "method", method, "url", u.String(), "error", err)
		return nil, "", nerr
	}
	c.log.Debugw("backend call", "method", method, "url", u.String(), "status", resp.StatusCode, "duration", time.Since(start))
	return raw, resp.Header.Get("Content-Type"), nil
}
