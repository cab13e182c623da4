// Package lifecycle keeps a Credential Set healthy: it retires expired
// credentials, refreshes the set through the backend and runs a periodic
// expiry sweep. Every mutation of the store goes through one Manager so
// that cleanup, refresh and writes never interleave.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/observe"
)

// DefaultSweepInterval is used when StartSweep is given a non-positive
// interval.
const DefaultSweepInterval = time.Minute

var (
	ErrNoRefreshToken = errors.New("lifecycle: no refresh credential")
	ErrEmptyResponse  = errors.New("lifecycle: backend returned no access credential")
	ErrStale          = errors.New("lifecycle: write discarded, session changed")
)

// Refresher trades a refresh credential for a new Credential Set.
// *authsdk.Client satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*authsdk.TokenResponse, error)
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithHook(h observe.Hook) Option {
	return func(m *Manager) { m.hook = observe.OrNop(h) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLeeway tolerates clock skew between this process and the issuer: a
// credential is only expired once exp+leeway has passed.
func WithLeeway(d time.Duration) Option {
	return func(m *Manager) { m.leeway = d }
}

// Manager owns the mutation queue of a credstore.Store.
type Manager struct {
	store     *credstore.Store
	refresher Refresher
	logger    *slog.Logger
	hook      observe.Hook
	now       func() time.Time
	leeway    time.Duration

	// mu is held for the whole of every store mutation, including the
	// refresh round trip.
	mu sync.Mutex

	sweepMu sync.Mutex
	sweep   *sweeper
}

// New builds a Manager for store. With a nil refresher Refresh always
// returns ErrNoRefreshToken.
func New(store *credstore.Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		logger:    slog.Default(),
		hook:      observe.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Credentials returns the underlying credential store for read access.
func (m *Manager) Credentials() *credstore.Store { return m.store }

// CleanupExpired removes the access and identity credentials when expired.
// If either was removed the refresh credential goes too, so a half dead
// set never lingers. It reports whether anything was removed.
func (m *Manager) CleanupExpired(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cleanupLocked(ctx)
}

func (m *Manager) cleanupLocked(ctx context.Context) (bool, error) {
	set, err := m.store.Snapshot(ctx)
	if err != nil {
		return false, err
	}

	var stale []credstore.Slot
	for _, slot := range []credstore.Slot{credstore.SlotAccess, credstore.SlotIdentity} {
		if v := set.Get(slot); v != "" && m.expired(slot, v) {
			stale = append(stale, slot)
		}
	}
	if len(stale) == 0 {
		return false, nil
	}

	stale = append(stale, credstore.SlotRefresh)
	if err := m.store.Remove(ctx, stale...); err != nil {
		return false, fmt.Errorf("lifecycle: remove expired credentials: %w", err)
	}

	m.logger.Debug("expired credentials removed", "slots", stale)
	return true, nil
}

func (m *Manager) expired(slot credstore.Slot, token string) bool {
	if _, err := jwtx.ExpiresAt(token); err != nil {
		m.logger.Debug("credential unreadable, treating as expired", "slot", slot, "error", err)
		return true
	}
	return jwtx.IsExpiredWithLeeway(token, m.now(), m.leeway)
}

// HasValidSession runs cleanup, then reports whether an unexpired access
// credential remains. Store failures count as no session.
func (m *Manager) HasValidSession(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.cleanupLocked(ctx); err != nil {
		m.logger.Warn("credential cleanup failed", "error", err)
	}

	access, err := m.store.Get(ctx, credstore.SlotAccess)
	if err != nil {
		m.logger.Warn("read access credential", "error", err)
		return false
	}
	return access != "" && !jwtx.IsExpiredWithLeeway(access, m.now(), m.leeway)
}

// AccessToken returns the current access credential, or "".
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.store.Get(ctx, credstore.SlotAccess)
}

// Refresh renews the Credential Set. Without a refresh credential it
// returns ErrNoRefreshToken and performs no network call. On failure the
// store is left untouched.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refresh, err := m.store.Get(ctx, credstore.SlotRefresh)
	if err != nil {
		return false, err
	}
	if refresh == "" || m.refresher == nil {
		return false, ErrNoRefreshToken
	}

	resp, err := m.refresher.Refresh(ctx, refresh)
	if err == nil && resp.AccessToken == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		m.hook.RefreshCompleted(false, err)
		return false, fmt.Errorf("lifecycle: refresh: %w", err)
	}

	set := credstore.Set{
		Access:   resp.AccessToken,
		Refresh:  resp.RefreshToken,
		Identity: resp.IDToken,
	}
	// Backends that do not rotate refresh credentials omit them.
	if set.Refresh == "" {
		set.Refresh = refresh
	}

	if err := m.applyLocked(ctx, set); err != nil {
		m.hook.RefreshCompleted(false, err)
		return false, err
	}

	m.hook.RefreshCompleted(true, nil)
	return true, nil
}

// Store writes a whole Credential Set through the queue.
func (m *Manager) Store(ctx context.Context, set credstore.Set) error {
	_, err := m.StoreIf(ctx, set, nil)
	return err
}

// StoreIf writes set only if guard, evaluated under the queue lock,
// still returns true. It reports ErrStale when the guard refused.
func (m *Manager) StoreIf(ctx context.Context, set credstore.Set, guard func() bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if guard != nil && !guard() {
		return false, ErrStale
	}
	if err := m.applyLocked(ctx, set); err != nil {
		return false, err
	}
	return true, nil
}

// applyLocked persists set when the active backend accepts writes. In
// same-origin mode the backend already rewrote the cookies on the response
// that produced set.
func (m *Manager) applyLocked(ctx context.Context, set credstore.Set) error {
	if !m.store.Writable() {
		m.logger.Debug("credential write skipped, backend owns the cookie jar", "backend", m.store.Active())
		return nil
	}
	if err := m.store.Set(ctx, set); err != nil {
		return fmt.Errorf("lifecycle: store credentials: %w", err)
	}
	return nil
}

// Clear removes the whole Credential Set from every backend.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("lifecycle: clear credentials: %w", err)
	}
	return nil
}
