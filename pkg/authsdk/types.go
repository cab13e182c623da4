package authsdk

// ============================================================================
// Error Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse covers the error bodies the backend is known to emit: the
// OAuth2 pair, a FastAPI style detail, or a plain message.
type ErrorResponse struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Detail           string `json:"detail,omitempty"`
	Message          string `json:"message,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is the Credential Set as returned by the token exchange and
// refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`

	// TokenType is "Bearer" when present
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is informational only, expiry is always read from the
	// credential itself.
	ExpiresIn int `json:"expires_in,omitempty"`
}

// RefreshRequest is the body of the refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ValidateResponse is returned by the validate endpoint.
type ValidateResponse struct {
	Valid bool         `json:"valid"`
	User  *UserProfile `json:"user,omitempty"`
}

// ============================================================================
// Login Types
// ============================================================================

// TenantLoginResponse is the multi-tenant login initiation response. A 200
// can still carry Success=false when the backend rejects the email.
type TenantLoginResponse struct {
	Success bool `json:"success"`

	// AuthURL is the tenant's identity provider authorization URL
	AuthURL string `json:"auth_url,omitempty"`

	// Company is the tenant label shown to the user
	Company string `json:"company,omitempty"`

	Message string `json:"message,omitempty"`
}

// LogoutResponse is returned by the complete logout endpoint.
type LogoutResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// User Types
// ============================================================================

// UserProfile is the backend's current user record.
type UserProfile struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	Name          string   `json:"name,omitempty"`
	GivenName     string   `json:"given_name,omitempty"`
	FamilyName    string   `json:"family_name,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles,omitempty"`
	Tenant        string   `json:"tenant,omitempty"`
}
