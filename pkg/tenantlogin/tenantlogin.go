// Package tenantlogin drives the "email, then company, then identity
// provider" login flow. It asks the backend which tenant an email belongs
// to and hands back the tenant's authorization URL. It never touches the
// Credential Set; credentials only appear once the identity provider
// redirects back.
package tenantlogin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/observe"
)

var (
	ErrEmailRequired = errors.New("tenantlogin: email is required")
	ErrInFlight      = errors.New("tenantlogin: a login is already being submitted")
	ErrThrottled     = errors.New("tenantlogin: too many login attempts, wait a moment and retry")
)

// DefaultRate allows a burst of DefaultBurst submissions, then one every
// two seconds.
const (
	DefaultRate  = rate.Limit(0.5)
	DefaultBurst = 5
)

// State of the initiator.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateRedirecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateRedirecting:
		return "redirecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RejectedError is the backend declining the email. Message is the
// backend's own text, meant for the user.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

// UnreachableError means the backend could not be asked at all.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return "Unable to reach the sign-in service. Please check your connection and try again."
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Result of a successful submission.
type Result struct {
	AuthURL string
	Tenant  string
}

// Detector resolves an email to a tenant. *authsdk.Client satisfies it.
type Detector interface {
	InitiateTenantLogin(ctx context.Context, email, returnTo string) (*authsdk.TenantLoginResponse, error)
}

type Option func(*Initiator)

func WithLogger(l *slog.Logger) Option {
	return func(i *Initiator) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithHook(h observe.Hook) Option {
	return func(i *Initiator) { i.hook = observe.OrNop(h) }
}

// WithRateLimit throttles submissions. A zero limit disables throttling.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(i *Initiator) {
		if limit <= 0 {
			i.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		i.limiter = rate.NewLimiter(limit, burst)
	}
}

// PerMinute converts a per minute allowance into a rate.Limit.
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return 0
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// Initiator submits tenant logins, one at a time.
type Initiator struct {
	detector Detector
	limiter  *rate.Limiter
	logger   *slog.Logger
	hook     observe.Hook

	mu      sync.Mutex
	state   State
	lastErr error
}

func New(d Detector, opts ...Option) *Initiator {
	i := &Initiator{
		detector: d,
		limiter:  rate.NewLimiter(DefaultRate, DefaultBurst),
		logger:   slog.Default(),
		hook:     observe.Nop{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Initiator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// LastError is the failure of the last submission, nil unless Failed.
func (i *Initiator) LastError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Reset returns to Idle so the form can be submitted again. It has no
// effect while a submission is in flight.
func (i *Initiator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == StateSubmitting {
		return
	}
	i.state = StateIdle
	i.lastErr = nil
}

// Initiate asks the backend where email should sign in. returnTo is where
// the identity provider sends the user afterwards.
func (i *Initiator) Initiate(ctx context.Context, email, returnTo string) (*Result, error) {
	email = strings.TrimSpace(email)

	i.mu.Lock()
	if i.state == StateSubmitting {
		i.mu.Unlock()
		return nil, ErrInFlight
	}
	if email == "" {
		i.failLocked(ErrEmailRequired)
		i.mu.Unlock()
		return nil, ErrEmailRequired
	}
	if !i.limiter.Allow() {
		i.failLocked(ErrThrottled)
		i.mu.Unlock()
		return nil, ErrThrottled
	}
	i.state = StateSubmitting
	i.lastErr = nil
	i.mu.Unlock()

	resp, err := i.detector.InitiateTenantLogin(ctx, email, returnTo)

	res, err := i.interpret(resp, err)

	i.mu.Lock()
	switch {
	case err == nil:
		i.state = StateRedirecting
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Abandoned by the caller, not a failure worth showing.
		i.state = StateIdle
	default:
		i.failLocked(err)
	}
	i.mu.Unlock()

	if err != nil {
		i.logger.Info("tenant login failed", "error", err)
		i.hook.LoginInitiated("", err)
		return nil, err
	}

	i.logger.Info("tenant login initiated", "tenant", res.Tenant)
	i.hook.LoginInitiated(res.Tenant, nil)
	return res, nil
}

func (i *Initiator) failLocked(err error) {
	i.state = StateFailed
	i.lastErr = err
}

func (i *Initiator) interpret(resp *authsdk.TenantLoginResponse, err error) (*Result, error) {
	if err != nil {
		var apiErr *authsdk.APIError
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.As(err, &apiErr):
			return nil, &RejectedError{Message: apiErr.Message}
		default:
			return nil, &UnreachableError{Err: err}
		}
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "We could not find an organization for that email address."
		}
		return nil, &RejectedError{Message: msg}
	}

	u, perr := url.Parse(resp.AuthURL)
	if resp.AuthURL == "" || perr != nil || !u.IsAbs() {
		return nil, &RejectedError{Message: "The sign-in service did not return a login address."}
	}

	return &Result{AuthURL: resp.AuthURL, Tenant: resp.Company}, nil
}
