package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes used when minting development credentials.
const (
	DefaultAccessTokenTTL   = 15 * time.Minute
	DefaultIdentityTokenTTL = 15 * time.Minute
	DefaultRefreshTokenTTL  = 7 * 24 * time.Hour
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoExpiry  = errors.New("jwtx: token has no exp claim")
)

// Claims are the claims a session credential may carry. Access and refresh
// credentials normally only populate the registered claims; identity
// credentials add the display attributes.
type Claims struct {
	jwt.RegisteredClaims

	// Token use: "access", "refresh" or "id".
	Use string `json:"token_use,omitempty"`

	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified,omitempty"`
	Name          string   `json:"name,omitempty"`
	GivenName     string   `json:"given_name,omitempty"`
	FamilyName    string   `json:"family_name,omitempty"`
	Roles         []string `json:"roles,omitempty"`

	// Tenant the credential was issued for.
	Tenant string `json:"tenant,omitempty"`
}

// Decode reads the payload of a three segment JWT without checking the
// signature. The issuing backend is trusted; this is only used to learn
// expiry and display attributes.
func Decode(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}

	return &c, nil
}

// decodeSegment accepts both padded and unpadded base64url, some issuers
// still pad.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(seg)
}

// ExpiresAt returns the exp claim of token.
func ExpiresAt(token string) (time.Time, error) {
	c, err := Decode(token)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return c.ExpiresAt.Time, nil
}

// IsExpired reports whether token should no longer be used at now. Anything
// that cannot be decoded, or carries no exp, counts as expired.
func IsExpired(token string, now time.Time) bool {
	return IsExpiredWithLeeway(token, now, 0)
}

// IsExpiredWithLeeway is IsExpired with a clock skew allowance. A positive
// leeway keeps a credential alive slightly past exp, a negative one retires
// it early.
func IsExpiredWithLeeway(token string, now time.Time, leeway time.Duration) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return exp.Add(leeway).Before(now)
}

// Subject returns the sub claim, or "" if the token does not decode.
func Subject(token string) string {
	c, err := Decode(token)
	if err != nil {
		return ""
	}
	return c.Subject
}
