package session

import (
	"slices"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

// User is the signed in user's profile. It is derived from the identity
// credential or the backend's current user record and never stored.
type User struct {
	ID            string
	Email         string
	Name          string
	GivenName     string
	FamilyName    string
	EmailVerified bool
	Roles         []string
	Tenant        string
}

// DisplayName prefers the full name, then given and family names, then
// the email.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.GivenName != "" || u.FamilyName != "":
		if u.GivenName == "" || u.FamilyName == "" {
			return u.GivenName + u.FamilyName
		}
		return u.GivenName + " " + u.FamilyName
	default:
		return u.Email
	}
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func (u User) clone() User {
	u.Roles = slices.Clone(u.Roles)
	return u
}

func userFromClaims(c *jwtx.Claims) *User {
	return &User{
		ID:            c.Subject,
		Email:         c.Email,
		Name:          c.Name,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		EmailVerified: c.EmailVerified,
		Roles:         slices.Clone(c.Roles),
		Tenant:        c.Tenant,
	}
}

func userFromProfile(p *authsdk.UserProfile) *User {
	return &User{
		ID:            p.Subject,
		Email:         p.Email,
		Name:          p.Name,
		GivenName:     p.GivenName,
		FamilyName:    p.FamilyName,
		EmailVerified: p.EmailVerified,
		Roles:         slices.Clone(p.Roles),
		Tenant:        p.Tenant,
	}
}
