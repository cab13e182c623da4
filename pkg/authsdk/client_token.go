package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ExchangeToken trades the backend's cookie session for a Credential Set.
// This is how the client learns its credentials after returning from the
// identity provider, when the session cookie itself is HTTP-only.
func (c *Client) ExchangeToken(ctx context.Context) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, "token exchange", http.MethodGet, c.Paths.Token, nil, nil, "", nil)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON("token exchange", resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}

// Refresh renews the Credential Set using a refresh credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body, err := json.Marshal(RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("authsdk: refresh: failed to marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}

	resp, err := c.doRequest(ctx, "refresh", http.MethodPost, c.Paths.Refresh, nil, bytes.NewReader(body), "", headers)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON("refresh", resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}

// Validate asks the backend whether accessToken is still accepted.
func (c *Client) Validate(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	resp, err := c.doRequest(ctx, "validate", http.MethodPost, c.Paths.Validate, nil, nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var validateResp ValidateResponse
	if err := decodeJSON("validate", resp, &validateResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &validateResp, nil
}
