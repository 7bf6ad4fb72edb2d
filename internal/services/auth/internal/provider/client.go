package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxResponseBytes = 1 << 20
)

type Response struct {
	StatusCode int
	Data       map[string]any
}

// ResponseError describes a failed provider call. URL never includes the
// query string, which carries tokens.
type ResponseError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Client performs JSON calls against provider endpoints, each bounded by its
// own timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

type ClientOption func(*Client) *Client

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) *Client {
		cl.http = c
		return cl
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) *Client {
		if d > 0 {
			cl.timeout = d
		}
		return cl
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		c = opt(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (Response, error) {
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u)
}

func (c *Client) do(ctx context.Context, method, u string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	safeURL := stripQuery(u)

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return Response{}, &ResponseError{URL: safeURL, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Response{}, &ResponseError{URL: safeURL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, &ResponseError{
			URL:        safeURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{StatusCode: resp.StatusCode}, &ResponseError{
			URL:        safeURL,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var data map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return Response{StatusCode: resp.StatusCode}, &ResponseError{
				URL:        safeURL,
				StatusCode: resp.StatusCode,
				Body:       string(raw),
				Err:        fmt.Errorf("decode body: %w", err),
			}
		}
	}

	return Response{StatusCode: resp.StatusCode, Data: data}, nil
}

// HTTPClient returns the underlying client so other libraries can share it.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
