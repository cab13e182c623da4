package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// doRequest performs a request against the backend. The shared cookie jar
// is applied by the http.Client; bearer, when non-empty, is sent in the
// Authorization header.
func (c *Client) doRequest(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	body io.Reader,
	bearer string,
	headers map[string]string,
) (*http.Response, error) {
	target := c.url(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	reqID := idx.New().String()
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, c.logger()), reqID)
	log := slogx.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("authsdk: %s: failed to create request: %w", op, err)
	}

	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Debug("backend request failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}

	log.Debug("backend request", "op", op, "status", resp.StatusCode)
	return resp, nil
}

// decodeJSON decodes a JSON response into target. Any status other than
// expectedStatus becomes an APIError.
func decodeJSON(op string, resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
