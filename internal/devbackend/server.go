// Package devbackend is an in-process stand-in for the identity-and-session
// backend. It implements the login, exchange, refresh, validate, current
// user and logout endpoints on top of locally minted credentials so the
// client can be exercised end to end without a real identity provider.
package devbackend

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// SessionCookie carries the backend's own session, separate from the
// credential cookies.
const SessionCookie = "dev_session"

// CallbackPath is the fake identity provider callback that completes a
// login and sets the session cookie.
const CallbackPath = "/dev/idp/callback"

// Tenant maps an email domain to a company and its identity provider.
type Tenant struct {
	Domain  string
	Company string

	// AuthURL is returned verbatim from tenant detection. When empty the
	// backend's own CallbackPath is used, which signs the user straight in.
	AuthURL string
}

type Config struct {
	Paths     authsdk.Paths
	KeyPrefix string
	Tenants   []Tenant

	// DefaultEmail is signed in by the single-tenant GET login.
	DefaultEmail string

	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	IdentityTTL time.Duration

	// LoginLimit throttles tenant detection per client IP.
	LoginLimit httpx.RateLimitConfig

	Logger *slog.Logger
}

// DefaultConfig is a backend with a single "acme.com" tenant that signs
// users in through the local callback.
func DefaultConfig() Config {
	return Config{
		Paths:        authsdk.DefaultPaths(),
		KeyPrefix:    credstore.DefaultKeyPrefix,
		Tenants:      []Tenant{{Domain: "acme.com", Company: "Acme"}},
		DefaultEmail: "dev@acme.com",
		AccessTTL:    jwtx.DefaultAccessTokenTTL,
		RefreshTTL:   jwtx.DefaultRefreshTokenTTL,
		IdentityTTL:  jwtx.DefaultIdentityTokenTTL,
		LoginLimit:   httpx.LoginLimit,
	}
}

// Server is the development backend.
type Server struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg    Config
	keys   credstore.Keys
	minter *jwtx.Minter
	logger *slog.Logger

	mu       sync.Mutex
	tenants  map[string]Tenant
	sessions map[string]*session
	refresh  map[string]string // refresh jti -> session id

	calls sync.Map // path + method -> *atomic.Int64
}

// New builds a Server. Zero fields of cfg take their DefaultConfig values.
func New(cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.Paths == (authsdk.Paths{}) {
		cfg.Paths = def.Paths
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if len(cfg.Tenants) == 0 {
		cfg.Tenants = def.Tenants
	}
	if cfg.DefaultEmail == "" {
		cfg.DefaultEmail = def.DefaultEmail
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = def.IdentityTTL
	}
	if cfg.LoginLimit == (httpx.RateLimitConfig{}) {
		cfg.LoginLimit = def.LoginLimit
	}
	logger := slogx.OrDefault(cfg.Logger)

	minter, err := jwtx.NewMinter("devbackend-1")
	if err != nil {
		return nil, err
	}

	s := &Server{
		Mux:      http.NewServeMux(),
		cfg:      cfg,
		keys:     credstore.Keys{Prefix: cfg.KeyPrefix},
		minter:   minter,
		logger:   logger,
		tenants:  make(map[string]Tenant, len(cfg.Tenants)),
		sessions: make(map[string]*session),
		refresh:  make(map[string]string),
	}
	for _, t := range cfg.Tenants {
		s.tenants[strings.ToLower(t.Domain)] = t
	}

	s.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(logger),
		s.count,
	}
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	p := s.cfg.Paths

	s.Mux.HandleFunc("GET "+p.Login, s.handleLoginRedirect)
	s.Mux.Handle("POST "+p.Login, httpx.Chain(
		http.HandlerFunc(s.handleTenantLogin),
		httpx.RateLimitByIP(s.cfg.LoginLimit),
	))
	s.Mux.HandleFunc("GET "+CallbackPath, s.handleCallback)

	s.Mux.HandleFunc("GET "+p.Token, s.handleExchange)
	s.Mux.HandleFunc("POST "+p.Refresh, s.handleRefresh)
	s.Mux.HandleFunc("POST "+p.Validate, s.handleValidate)

	s.Mux.Handle("GET "+p.Me, httpx.Chain(
		http.HandlerFunc(s.handleMe),
		httpx.Authn(s.resolveSubject),
	))

	s.Mux.HandleFunc("GET "+p.Logout, s.handleLogoutRedirect)
	s.Mux.HandleFunc("POST "+p.Logout, s.handleLogoutComplete)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.Chain(s.Mux, s.middlewares...).ServeHTTP(w, r)
}

// Minter exposes the signing key, so tests can forge credentials the
// backend accepts.
func (s *Server) Minter() *jwtx.Minter { return s.minter }

// Calls reports how many requests hit method and path.
func (s *Server) Calls(method, path string) int64 {
	v, ok := s.calls.Load(method + " " + path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.calls.LoadOrStore(r.Method+" "+r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}
