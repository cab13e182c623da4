package authsdk

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Paths are the backend endpoint paths, relative to BaseURL.
type Paths struct {
	Login    string // GET single-tenant redirect, POST multi-tenant detection
	Me       string
	Token    string
	Refresh  string
	Validate string
	Logout   string // GET local redirect, POST complete
}

// DefaultPaths returns the backend's standard route layout.
func DefaultPaths() Paths {
	return Paths{
		Login:    "/api/v1/auth/login",
		Me:       "/api/v1/auth/me",
		Token:    "/api/v1/auth/token",
		Refresh:  "/api/v1/auth/refresh",
		Validate: "/api/v1/auth/validate",
		Logout:   "/api/v1/auth/logout",
	}
}

// Client is a client for the identity-and-session backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Paths      Paths
	Logger     *slog.Logger
}

// NewClient creates a backend client. jar carries the backend's session
// cookies and may be nil when only bearer credentials are used.
func NewClient(baseURL string, jar http.CookieJar) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
		Paths:  DefaultPaths(),
		Logger: slog.Default(),
	}
}

// LoginURL is the single-tenant login redirect. The browser is sent there
// and comes back to returnTo once the identity provider is done.
func (c *Client) LoginURL(returnTo string) string {
	return c.redirectURL(c.Paths.Login, returnTo)
}

// LogoutURL is the local logout redirect, it clears the cookie session and
// bounces to returnTo.
func (c *Client) LogoutURL(returnTo string) string {
	return c.redirectURL(c.Paths.Logout, returnTo)
}

func (c *Client) redirectURL(path, returnTo string) string {
	u := c.url(path)
	if returnTo == "" {
		return u
	}
	return u + "?" + url.Values{"frontend_redirect_uri": {returnTo}}.Encode()
}
