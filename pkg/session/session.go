// Package session is the application facing controller of the
// authentication session. It decides whether the user is signed in, keeps
// the Credential Set fresh through the lifecycle manager, starts tenant
// logins and runs logouts. The UI reads State and CurrentUser and calls
// the operations; it never touches credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/gateway"
	"github.com/aussiebroadwan/tabsession/pkg/lifecycle"
	"github.com/aussiebroadwan/tabsession/pkg/observe"
	"github.com/aussiebroadwan/tabsession/pkg/tenantlogin"
)

var (
	// ErrSuperseded is returned by an operation whose result was discarded
	// because a later Init or Logout overtook it.
	ErrSuperseded = errors.New("session: superseded by a newer operation")

	ErrNoInitiator  = errors.New("session: tenant login is not configured")
	ErrNoGateway    = errors.New("session: api gateway is not configured")
	ErrUnauthorized = errors.New("session: request unauthorized")
)

// State of the session.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LogoutMode picks how far a logout reaches.
type LogoutMode int

const (
	// LogoutLocal clears local credentials and sends the user through the
	// backend's logout redirect.
	LogoutLocal LogoutMode = iota

	// LogoutComplete also ends the identity provider session.
	LogoutComplete
)

// Navigator moves the user to another page. In a browser this changes
// the location; the CLI prints or follows the URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// API is the part of the backend client the controller needs.
// *authsdk.Client satisfies it.
type API interface {
	ExchangeToken(ctx context.Context) (*authsdk.TokenResponse, error)
	CurrentUser(ctx context.Context, accessToken string) (*authsdk.UserProfile, error)
	Validate(ctx context.Context, accessToken string) (*authsdk.ValidateResponse, error)
	LogoutComplete(ctx context.Context, accessToken string) (*authsdk.LogoutResponse, error)
	LoginURL(returnTo string) string
	LogoutURL(returnTo string) string
}

type Options struct {
	API       API
	Lifecycle *lifecycle.Manager

	// Initiator runs tenant logins. Login fails with ErrNoInitiator
	// without one.
	Initiator *tenantlogin.Initiator

	// Gateway sends application API calls for Do.
	Gateway *gateway.Client

	// Navigator defaults to one that only logs the target.
	Navigator Navigator

	// PostLogoutRedirect is where logouts land, "/" when empty.
	PostLogoutRedirect string

	Logger *slog.Logger
	Hook   observe.Hook
}

// Controller owns the session state. Create one per application with New.
type Controller struct {
	api        API
	lc         *lifecycle.Manager
	initiator  *tenantlogin.Initiator
	gw         *gateway.Client
	nav        Navigator
	postLogout string
	logger     *slog.Logger
	hook       observe.Hook

	mu    sync.Mutex
	state State
	user  *User

	// gen is bumped by every Init and Logout; results carrying an older
	// generation are dropped. logoutGen is the generation of the latest
	// logout.
	gen       uint64
	logoutGen uint64

	subs    map[int]func(State)
	nextSub int
}

func New(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("session: API is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("session: Lifecycle is required")
	}

	c := &Controller{
		api:        opts.API,
		lc:         opts.Lifecycle,
		initiator:  opts.Initiator,
		gw:         opts.Gateway,
		nav:        opts.Navigator,
		postLogout: opts.PostLogoutRedirect,
		logger:     opts.Logger,
		hook:       observe.OrNop(opts.Hook),
		subs:       make(map[int]func(State)),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.postLogout == "" {
		c.postLogout = "/"
	}
	if c.nav == nil {
		c.nav = NavigatorFunc(func(_ context.Context, url string) error {
			c.logger.Info("navigation requested", "url", url)
			return nil
		})
	}
	return c, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentUser returns a copy of the signed in user, nil when signed out.
func (c *Controller) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return nil
	}
	u := c.user.clone()
	return &u
}

func (c *Controller) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// IsLoading is true until the first Init settles, and during every check.
func (c *Controller) IsLoading() bool {
	s := c.State()
	return s == StateUnknown || s == StateChecking
}

// Subscribe registers fn for state changes. fn runs on the goroutine that
// caused the change and must not block. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

type transition struct {
	from, to State
	subs     []func(State)
}

// setLocked moves to state and returns what to announce once the lock is
// released.
func (c *Controller) setLocked(state State, user *User) *transition {
	from := c.state
	c.state = state
	c.user = user
	if from == state {
		return nil
	}

	t := &transition{from: from, to: state}
	for _, fn := range c.subs {
		t.subs = append(t.subs, fn)
	}
	return t
}

func (c *Controller) announce(t *transition) {
	if t == nil {
		return
	}
	c.hook.StateChanged(t.from.String(), t.to.String())
	for _, fn := range t.subs {
		fn(t.to)
	}
}

// begin starts a new generation in state.
func (c *Controller) begin(state State, user *User, logout bool) uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if logout {
		c.logoutGen = gen
	}
	t := c.setLocked(state, user)
	c.mu.Unlock()

	c.announce(t)
	return gen
}

// finish applies a result of generation gen, unless it went stale.
func (c *Controller) finish(gen uint64, state State, user *User) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	t := c.setLocked(state, user)
	c.mu.Unlock()

	c.announce(t)
	return nil
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) loggedOutSince(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutGen > gen
}

// StartSweep starts the periodic expiry sweep. See lifecycle.StartSweep.
func (c *Controller) StartSweep(interval time.Duration) (stop func()) {
	return c.lc.StartSweep(interval)
}

// Close stops background work.
func (c *Controller) Close() {
	c.lc.StopSweep()
}
