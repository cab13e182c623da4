package devbackend

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

func writeDetail(w http.ResponseWriter, code int, detail string) {
	httpx.WriteJSON(w, code, authsdk.ErrorResponse{Detail: detail})
}

func redirectTarget(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return "/"
}

// handleLoginRedirect is the single-tenant login: straight to the identity
// provider, which here is the local callback for DefaultEmail.
func (s *Server) handleLoginRedirect(w http.ResponseWriter, r *http.Request) {
	q := url.Values{
		"email":     {s.cfg.DefaultEmail},
		"return_to": {redirectTarget(r, "frontend_redirect_uri")},
	}
	http.Redirect(w, r, CallbackPath+"?"+q.Encode(), http.StatusFound)
}

// handleTenantLogin resolves the tenant for an email.
func (s *Server) handleTenantLogin(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.TenantLoginResponse{
			Message: "email is required",
		})
		return
	}

	tenant, ok := s.tenantFor(email)
	if !ok {
		log.Info("tenant detection failed", "email", email)
		httpx.WriteJSON(w, http.StatusOK, authsdk.TenantLoginResponse{
			Message: "unknown domain",
		})
		return
	}

	authURL := tenant.AuthURL
	if authURL == "" {
		q := url.Values{
			"email":     {email},
			"return_to": {redirectTarget(r, "frontend_redirect_uri")},
		}
		authURL = baseURL(r) + CallbackPath + "?" + q.Encode()
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TenantLoginResponse{
		Success: true,
		AuthURL: authURL,
		Company: tenant.Company,
	})
}

// handleCallback completes a login: it opens a session, sets the session
// cookie and sends the browser back. Credentials are only handed out by
// the exchange.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	id, err := s.SignIn(r.URL.Query().Get("email"))
	if err != nil {
		slogx.FromContext(r.Context()).Info("callback rejected", "error", err)
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, redirectTarget(r, "return_to"), http.StatusFound)
}

// handleExchange turns the cookie session into a Credential Set.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	set, err := s.Mint(c.Value)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Session expired")
		return
	}

	s.setCredentialCookies(w, set)
	httpx.WriteJSON(w, http.StatusOK, set)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req authsdk.RefreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(s.keys.Name(credstore.SlotRefresh)); err == nil {
			req.RefreshToken = c.Value
		}
	}
	if req.RefreshToken == "" {
		writeDetail(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	sess, claims, err := s.verify(req.RefreshToken, "refresh")
	if err != nil || !s.rotate(claims.ID) {
		log.Info("refresh rejected", "error", err)
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	set, err := s.Mint(sess.id)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Session expired")
		return
	}

	s.setCredentialCookies(w, set)
	httpx.WriteJSON(w, http.StatusOK, set)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{})
		return
	}

	sess, _, err := s.verify(token, "access")
	if err != nil {
		httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{})
		return
	}

	user := sess.user
	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{Valid: true, User: &user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.SubjectFrom(r.Context())

	sess, err := s.lookup(id)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sess.user)
}

// handleLogoutRedirect ends the cookie session and bounces back.
func (s *Server) handleLogoutRedirect(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessionFromRequest(r); err == nil {
		s.EndSession(sess.id)
	}
	s.clearCookies(w)
	http.Redirect(w, r, redirectTarget(r, "frontend_redirect_uri"), http.StatusFound)
}

// handleLogoutComplete ends the session everywhere. It answers 200 even
// without a session; logging out twice is not an error.
func (s *Server) handleLogoutComplete(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessionFromRequest(r); err == nil {
		s.EndSession(sess.id)
	}
	s.clearCookies(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutResponse{Message: "Logged out successfully"})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
