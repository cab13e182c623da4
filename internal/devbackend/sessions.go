package devbackend

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoSession      = errors.New("devbackend: no session")
	errUnknownSession = errors.New("devbackend: session ended")
	errWrongUse       = errors.New("devbackend: credential used for the wrong purpose")
)

type session struct {
	id      string
	user    authsdk.UserProfile
	created time.Time
}

// SignIn creates a backend session for email, as if the identity provider
// had just called back. It returns the session id to place in the
// SessionCookie.
func (s *Server) SignIn(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	tenant, ok := s.tenantFor(email)
	if !ok {
		return "", errors.New("devbackend: unknown domain")
	}

	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "", errors.New("devbackend: email has no local part")
	}
	given := strings.ToUpper(local[:1]) + local[1:]

	sess := &session{
		id: idx.New().String(),
		user: authsdk.UserProfile{
			Subject:       "user-" + local,
			Email:         email,
			Name:          given + " " + tenant.Company,
			GivenName:     given,
			FamilyName:    tenant.Company,
			EmailVerified: true,
			Roles:         []string{"member"},
			Tenant:        tenant.Company,
		},
		created: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.id, "email", email)
	return sess.id, nil
}

// EndSession drops a session as if it expired server side. Every
// credential minted for it stops being accepted.
func (s *Server) EndSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	for jti, sid := range s.refresh {
		if sid == id {
			delete(s.refresh, jti)
		}
	}
}

// SessionCount reports live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) tenantFor(email string) (Tenant, bool) {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return Tenant{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[strings.ToLower(domain)]
	return t, ok
}

func (s *Server) lookup(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errUnknownSession
	}
	return sess, nil
}

// Mint issues a fresh Credential Set for session id. The access and
// identity credentials carry the session id as jti; the refresh credential
// gets its own single use jti.
func (s *Server) Mint(id string) (*authsdk.TokenResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	base := func(use string, ttl time.Duration, jti string) jwtx.Claims {
		return jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "devbackend",
				Subject:   sess.user.Subject,
				ID:        jti,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
			Use:    use,
			Tenant: sess.user.Tenant,
		}
	}

	access, err := s.minter.Mint(base("access", s.cfg.AccessTTL, sess.id))
	if err != nil {
		return nil, err
	}

	idClaims := base("id", s.cfg.IdentityTTL, sess.id)
	idClaims.Email = sess.user.Email
	idClaims.EmailVerified = sess.user.EmailVerified
	idClaims.Name = sess.user.Name
	idClaims.GivenName = sess.user.GivenName
	idClaims.FamilyName = sess.user.FamilyName
	idClaims.Roles = sess.user.Roles
	identity, err := s.minter.Mint(idClaims)
	if err != nil {
		return nil, err
	}

	refreshID := idx.New().String()
	refresh, err := s.minter.Mint(base("refresh", s.cfg.RefreshTTL, refreshID))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.refresh[refreshID] = sess.id
	s.mu.Unlock()

	return &authsdk.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		IDToken:      identity,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// verify checks a credential's signature, expiry and use, then resolves
// its session.
func (s *Server) verify(token, use string) (*session, *jwtx.Claims, error) {
	claims, err := s.minter.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	if claims.Use != use {
		return nil, nil, errWrongUse
	}

	sid := claims.ID
	if use == "refresh" {
		s.mu.Lock()
		var ok bool
		sid, ok = s.refresh[claims.ID]
		s.mu.Unlock()
		if !ok {
			return nil, nil, errUnknownSession
		}
	}

	sess, err := s.lookup(sid)
	if err != nil {
		return nil, nil, err
	}
	return sess, claims, nil
}

// rotate consumes a refresh credential.
func (s *Server) rotate(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[jti]; !ok {
		return false
	}
	delete(s.refresh, jti)
	return true
}

// sessionFromRequest resolves the caller's session from a bearer access
// credential, falling back to the session cookie.
func (s *Server) sessionFromRequest(r *http.Request) (*session, error) {
	if token, ok := httpx.BearerToken(r); ok {
		sess, _, err := s.verify(token, "access")
		return sess, err
	}

	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, errNoSession
	}
	return s.lookup(c.Value)
}

func (s *Server) resolveSubject(r *http.Request) (string, error) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		return "", err
	}
	return sess.id, nil
}

func (s *Server) setCredentialCookies(w http.ResponseWriter, set *authsdk.TokenResponse) {
	values := map[credstore.Slot]struct {
		value string
		ttl   time.Duration
	}{
		credstore.SlotAccess:   {set.AccessToken, s.cfg.AccessTTL},
		credstore.SlotRefresh:  {set.RefreshToken, s.cfg.RefreshTTL},
		credstore.SlotIdentity: {set.IDToken, s.cfg.IdentityTTL},
	}
	for _, slot := range credstore.Slots {
		v := values[slot]
		http.SetCookie(w, &http.Cookie{
			Name:     s.keys.Name(slot),
			Value:    v.value,
			Path:     "/",
			MaxAge:   int(v.ttl.Seconds()),
			HttpOnly: slot == credstore.SlotRefresh,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (s *Server) clearCookies(w http.ResponseWriter) {
	for _, name := range append(s.keys.All(), SessionCookie) {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
}

// SignInJar signs email in and drops the session cookie into jar for the
// backend at base, leaving the client where the identity provider redirect
// would have left it.
func (s *Server) SignInJar(jar http.CookieJar, base, email string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	id, err := s.SignIn(email)
	if err != nil {
		return "", err
	}

	jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, []*http.Cookie{{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	}})
	return id, nil
}
