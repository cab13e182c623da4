package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/lifecycle"
	"github.com/aussiebroadwan/tabsession/pkg/tenantlogin"
)

// Init works out whether the user is signed in. With no usable
// credentials it makes one attempt to exchange the backend's cookie
// session for a Credential Set, which is how a user returning from the
// identity provider gets signed in. Init always settles in Authenticated
// or Unauthenticated; it returns ErrSuperseded when a Logout or a newer
// Init overtook it.
func (c *Controller) Init(ctx context.Context) error {
	gen := c.begin(StateChecking, nil, false)

	if c.lc.HasValidSession(ctx) {
		return c.finish(gen, StateAuthenticated, c.profile(ctx))
	}

	resp, err := c.api.ExchangeToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			_ = c.finish(gen, StateUnauthenticated, nil)
			return ctx.Err()
		}
		c.logger.Debug("no session to exchange", "error", err)
		return c.finish(gen, StateUnauthenticated, nil)
	}

	set := credstore.Set{Access: resp.AccessToken, Refresh: resp.RefreshToken, Identity: resp.IDToken}
	_, err = c.lc.StoreIf(ctx, set, func() bool { return c.isCurrent(gen) })
	if errors.Is(err, lifecycle.ErrStale) {
		// The exchange response may already have put cookies in the jar.
		if c.loggedOutSince(gen) {
			if err := c.lc.Clear(ctx); err != nil {
				c.logger.Warn("scrub credentials after logout", "error", err)
			}
		}
		return ErrSuperseded
	}
	if err != nil {
		c.logger.Warn("store exchanged credentials", "error", err)
		return c.finish(gen, StateUnauthenticated, nil)
	}

	if !c.lc.HasValidSession(ctx) {
		return c.finish(gen, StateUnauthenticated, nil)
	}
	return c.finish(gen, StateAuthenticated, c.profile(ctx))
}

// profile resolves the user from the identity credential, then the
// backend, and as a last resort from the access credential's subject.
func (c *Controller) profile(ctx context.Context) *User {
	set, err := c.lc.Credentials().Snapshot(ctx)
	if err != nil {
		c.logger.Warn("read credentials for profile", "error", err)
	}

	if set.Identity != "" {
		claims, err := jwtx.Decode(set.Identity)
		if err == nil && claims.Subject != "" {
			return userFromClaims(claims)
		}
		c.logger.Debug("identity credential unusable", "error", err)
	}

	p, err := c.api.CurrentUser(ctx, set.Access)
	if err == nil {
		return userFromProfile(p)
	}
	c.logger.Warn("fetch current user", "error", err)

	if claims, err := jwtx.Decode(set.Access); err == nil {
		return userFromClaims(claims)
	}
	return &User{}
}

// Login starts a tenant login for email and navigates to the tenant's
// identity provider. returnTo is where the user lands afterwards. The
// Credential Set is not touched; credentials arrive with the next Init.
func (c *Controller) Login(ctx context.Context, email, returnTo string) (*tenantlogin.Result, error) {
	if c.initiator == nil {
		return nil, ErrNoInitiator
	}

	res, err := c.initiator.Initiate(ctx, email, returnTo)
	if err != nil {
		return nil, err
	}

	if err := c.nav.Navigate(ctx, res.AuthURL); err != nil {
		return res, fmt.Errorf("session: navigate to identity provider: %w", err)
	}
	return res, nil
}

// LoginURL is the single-tenant login redirect.
func (c *Controller) LoginURL(returnTo string) string {
	return c.api.LoginURL(returnTo)
}

// Logout signs the user out locally first, so the UI flips to signed out
// even when the backend cannot be reached, then tells the backend.
func (c *Controller) Logout(ctx context.Context, mode LogoutMode) error {
	c.begin(StateUnauthenticated, nil, true)
	c.lc.StopSweep()

	access, err := c.lc.AccessToken(ctx)
	if err != nil {
		c.logger.Warn("read access credential for logout", "error", err)
	}

	var errs []error
	if err := c.lc.Clear(ctx); err != nil {
		errs = append(errs, err)
	}

	switch mode {
	case LogoutComplete:
		if _, err := c.api.LogoutComplete(ctx, access); err != nil {
			c.logger.Warn("complete logout failed", "error", err)
			errs = append(errs, fmt.Errorf("session: complete logout: %w", err))
		}
		if err := c.nav.Navigate(ctx, c.postLogout); err != nil {
			errs = append(errs, err)
		}
	default:
		if err := c.nav.Navigate(ctx, c.api.LogoutURL(c.postLogout)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RefreshSession renews the Credential Set. If the refresh fails the
// session is over: credentials are cleared and the state becomes
// Unauthenticated. A cancelled ctx leaves everything as it was.
func (c *Controller) RefreshSession(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	_, err := c.lc.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Info("refresh failed, ending session", "error", err)
		if clearErr := c.lc.Clear(ctx); clearErr != nil {
			c.logger.Warn("clear credentials after failed refresh", "error", clearErr)
		}
		if ferr := c.finish(gen, StateUnauthenticated, nil); ferr != nil {
			return ferr
		}
		return err
	}

	if !c.lc.HasValidSession(ctx) {
		_ = c.finish(gen, StateUnauthenticated, nil)
		return ErrUnauthorized
	}
	return c.finish(gen, StateAuthenticated, c.profile(ctx))
}

// Do sends an API request through the gateway. On a 401 it refreshes the
// session once and replays the request once; requests whose body cannot
// be replayed get the 401 back as is.
func (c *Controller) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.gw == nil {
		return nil, ErrNoGateway
	}

	resp, err := c.gw.Do(ctx, req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := c.RefreshSession(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("session: rewind request body: %w", err)
		}
		retry.Body = body
	}
	return c.gw.Do(ctx, retry)
}

// Validate asks the backend whether the current access credential is
// still accepted. It returns the backend's view of the user when it is.
func (c *Controller) Validate(ctx context.Context) (*User, bool, error) {
	access, err := c.lc.AccessToken(ctx)
	if err != nil {
		return nil, false, err
	}
	if access == "" {
		return nil, false, nil
	}

	res, err := c.api.Validate(ctx, access)
	if err != nil {
		return nil, false, err
	}
	if !res.Valid || res.User == nil {
		return nil, res.Valid, nil
	}
	return userFromProfile(res.User), true, nil
}
