package credstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewJar returns a cookie jar with public suffix aware domain matching.
// The same jar must be installed on every http.Client that talks to the
// identity backend so the cookies it sets are visible here.
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("credstore: create cookie jar: %w", err)
	}
	return jar, nil
}

// CookieBackend reads credentials from the cookies the identity backend set
// for its origin. It never writes credential values; the only mutation it
// supports is expiring a cookie.
type CookieBackend struct {
	jar http.CookieJar
	url *url.URL
}

// NewCookieBackend scopes jar to the backend origin at backendURL.
func NewCookieBackend(jar http.CookieJar, backendURL string) (*CookieBackend, error) {
	if jar == nil {
		return nil, fmt.Errorf("credstore: nil cookie jar")
	}

	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("credstore: parse backend url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("credstore: backend url %q has no host", backendURL)
	}

	return &CookieBackend{
		jar: jar,
		url: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
	}, nil
}

// Jar returns the underlying cookie jar.
func (c *CookieBackend) Jar() http.CookieJar { return c.jar }

func (c *CookieBackend) Get(_ context.Context, key string) (string, error) {
	for _, cookie := range c.jar.Cookies(c.url) {
		if cookie.Name == key && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", ErrNotFound
}

// Delete expires the named cookies. Cookies are matched on name and the
// root path, which is where the backend sets them.
func (c *CookieBackend) Delete(_ context.Context, keys ...string) error {
	expired := make([]*http.Cookie, 0, len(keys))
	for _, k := range keys {
		expired = append(expired, &http.Cookie{Name: k, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.url, expired)
	return nil
}
