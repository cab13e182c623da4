package authsdk

import (
	"context"
	"net/http"
)

// CurrentUser resolves the authenticated profile. The cookie session is
// always sent; accessToken is optional and adds a bearer header.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*UserProfile, error) {
	resp, err := c.doRequest(ctx, "current user", http.MethodGet, c.Paths.Me, nil, nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var profile UserProfile
	if err := decodeJSON("current user", resp, &profile, http.StatusOK); err != nil {
		return nil, err
	}

	return &profile, nil
}

// LogoutComplete invalidates the session everywhere, including the identity
// provider's session.
func (c *Client) LogoutComplete(ctx context.Context, accessToken string) (*LogoutResponse, error) {
	resp, err := c.doRequest(ctx, "logout", http.MethodPost, c.Paths.Logout, nil, nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var logoutResp LogoutResponse
	if err := decodeJSON("logout", resp, &logoutResp, http.StatusOK); err != nil {
		return nil, err
	}

	return &logoutResp, nil
}
