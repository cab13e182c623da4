package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// InitiateTenantLogin submits the user's email for tenant detection. The
// backend answers with the tenant's authorization URL, or Success=false
// and a message when it cannot place the email.
//
// Only non-2xx statuses and transport failures are returned as errors; a
// 200 with Success=false is a normal response the caller must inspect.
func (c *Client) InitiateTenantLogin(ctx context.Context, email, returnTo string) (*TenantLoginResponse, error) {
	query := url.Values{"email": {email}}
	if returnTo != "" {
		query.Set("frontend_redirect_uri", returnTo)
	}

	resp, err := c.doRequest(ctx, "tenant login", http.MethodPost, c.Paths.Login, query, nil, "", nil)
	if err != nil {
		return nil, err
	}

	var loginResp TenantLoginResponse
	if err := decodeJSON("tenant login", resp, &loginResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &loginResp, nil
}
