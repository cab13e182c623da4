// Package gateway is the HTTP client for application API calls. It attaches
// the current access credential as a bearer token and otherwise stays out
// of the way: no retries, no refresh. Retrying after a refresh is the
// session controller's job.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// AccessTokens yields the current access credential, "" when there is
// none. *lifecycle.Manager satisfies it.
type AccessTokens interface {
	AccessToken(ctx context.Context) (string, error)
}

type Option func(*Client)

// WithHTTPClient sends requests through hc. Its transport is wrapped, hc
// itself is not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.base = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client talks to the application API.
type Client struct {
	baseURL *url.URL
	base    *http.Client
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL string, tokens AccessTokens, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("gateway: base url %q is not absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		base:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.base
	hc.Transport = &bearerTransport{
		base:   transportOrDefault(c.base.Transport),
		tokens: tokens,
		logger: c.logger,
	}
	c.http = &hc

	return c, nil
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// URL resolves path, which may carry a query string, against the API base.
func (c *Client) URL(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse path: %w", err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	u := c.baseURL.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u, nil
}

// NewRequest builds a request for path relative to the API base.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := c.URL(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req with the current access credential, if any.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(ctx))
}

// Get is NewRequest and Do for a GET.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// bearerTransport reads the access credential per request, so a refresh
// between two calls is picked up without rebuilding the client.
type bearerTransport struct {
	base   http.RoundTripper
	tokens AccessTokens
	logger *slog.Logger
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	access, err := t.tokens.AccessToken(req.Context())
	if err != nil {
		t.logger.Warn("read access credential", "error", err)
		access = ""
	}
	if access == "" {
		return t.base.RoundTrip(req)
	}

	rt := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}),
		Base:   t.base,
	}
	return rt.RoundTrip(req)
}
