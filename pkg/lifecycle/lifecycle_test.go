package lifecycle_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/lifecycle"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func token(t *testing.T, exp time.Time) string {
	t.Helper()

	m, err := jwtx.NewMinter("test")
	require.NoError(t, err)

	tok, err := m.Mint(jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}})
	require.NoError(t, err)
	return tok
}

type fakeRefresher struct {
	calls atomic.Int32
	fn    func(refresh string) (*authsdk.TokenResponse, error)
}

func (f *fakeRefresher) Refresh(_ context.Context, refresh string) (*authsdk.TokenResponse, error) {
	f.calls.Add(1)
	return f.fn(refresh)
}

type recordingHook struct {
	mu        sync.Mutex
	sweeps    int
	refreshes []bool
}

func (h *recordingHook) StateChanged(string, string)  {}
func (h *recordingHook) LoginInitiated(string, error) {}
func (h *recordingHook) SweepCompleted(bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweeps++
}
func (h *recordingHook) RefreshCompleted(ok bool, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes = append(h.refreshes, ok)
}

func (h *recordingHook) sweepCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sweeps
}

func newManager(t *testing.T, r lifecycle.Refresher, opts ...lifecycle.Option) (*lifecycle.Manager, *credstore.Store) {
	t.Helper()

	store, err := credstore.New(credstore.ModeCrossOrigin, nil, credstore.NewMemoryKV())
	require.NoError(t, err)

	opts = append([]lifecycle.Option{
		lifecycle.WithClock(func() time.Time { return now }),
		lifecycle.WithLogger(slogx.Discard()),
	}, opts...)
	return lifecycle.New(store, r, opts...), store
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	live := token(t, now.Add(time.Hour))
	dead := token(t, now.Add(-time.Minute))

	cases := []struct {
		name    string
		in      credstore.Set
		removed bool
		want    credstore.Set
	}{
		{
			name: "all valid",
			in:   credstore.Set{Access: live, Refresh: "r", Identity: live},
			want: credstore.Set{Access: live, Refresh: "r", Identity: live},
		},
		{
			name:    "expired access cascades to refresh",
			in:      credstore.Set{Access: dead, Refresh: "r", Identity: live},
			removed: true,
			want:    credstore.Set{Identity: live},
		},
		{
			name:    "expired identity cascades to refresh",
			in:      credstore.Set{Access: live, Refresh: "r", Identity: dead},
			removed: true,
			want:    credstore.Set{Access: live},
		},
		{
			name:    "undecodable access counts as expired",
			in:      credstore.Set{Access: "garbage", Refresh: "r"},
			removed: true,
			want:    credstore.Set{},
		},
		{
			name: "partial set is fine",
			in:   credstore.Set{Refresh: "r"},
			want: credstore.Set{Refresh: "r"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			m, store := newManager(t, nil)
			require.NoError(t, m.Store(ctx, tc.in))

			removed, err := m.CleanupExpired(ctx)
			require.NoError(t, err)
			require.Equal(t, tc.removed, removed)

			got, err := store.Snapshot(ctx)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			// Second pass has nothing left to do.
			removed, err = m.CleanupExpired(ctx)
			require.NoError(t, err)
			require.False(t, removed)
		})
	}
}

func TestHasValidSession(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m, store := newManager(t, nil)
	require.False(t, m.HasValidSession(ctx))

	require.NoError(t, m.Store(ctx, credstore.Set{Access: token(t, now.Add(time.Minute)), Refresh: "r"}))
	require.True(t, m.HasValidSession(ctx))

	require.NoError(t, m.Store(ctx, credstore.Set{Access: token(t, now.Add(-time.Minute)), Refresh: "r"}))
	require.False(t, m.HasValidSession(ctx))

	set, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, set.IsZero())
}

func TestLeeway(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m, _ := newManager(t, nil, lifecycle.WithLeeway(30*time.Second))

	require.NoError(t, m.Store(ctx, credstore.Set{Access: token(t, now.Add(-10*time.Second))}))
	require.True(t, m.HasValidSession(ctx))
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("no refresh credential makes no call", func(t *testing.T) {
		t.Parallel()

		r := &fakeRefresher{fn: func(string) (*authsdk.TokenResponse, error) {
			t.Fatal("refresher called")
			return nil, nil
		}}
		m, _ := newManager(t, r)

		ok, err := m.Refresh(t.Context())
		require.False(t, ok)
		require.ErrorIs(t, err, lifecycle.ErrNoRefreshToken)
		require.Zero(t, r.calls.Load())
	})

	t.Run("success replaces the set", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		hook := &recordingHook{}
		access := token(t, now.Add(time.Hour))
		r := &fakeRefresher{fn: func(refresh string) (*authsdk.TokenResponse, error) {
			require.Equal(t, "r1", refresh)
			return &authsdk.TokenResponse{AccessToken: access, RefreshToken: "r2", IDToken: "i2"}, nil
		}}
		m, store := newManager(t, r, lifecycle.WithHook(hook))
		require.NoError(t, m.Store(ctx, credstore.Set{Access: "old", Refresh: "r1", Identity: "i1"}))

		ok, err := m.Refresh(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, credstore.Set{Access: access, Refresh: "r2", Identity: "i2"}, got)
		require.Equal(t, []bool{true}, hook.refreshes)
	})

	t.Run("unrotated refresh credential is kept", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		r := &fakeRefresher{fn: func(string) (*authsdk.TokenResponse, error) {
			return &authsdk.TokenResponse{AccessToken: "a2"}, nil
		}}
		m, store := newManager(t, r)
		require.NoError(t, m.Store(ctx, credstore.Set{Refresh: "r1"}))

		ok, err := m.Refresh(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, credstore.Set{Access: "a2", Refresh: "r1"}, got)
	})

	t.Run("dropped identity does not come back from the cookie jar", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		jar, err := credstore.NewJar()
		require.NoError(t, err)
		cookies, err := credstore.NewCookieBackend(jar, "http://auth.example.test")
		require.NoError(t, err)

		u, err := url.Parse("http://auth.example.test")
		require.NoError(t, err)
		jar.SetCookies(u, []*http.Cookie{{Name: "auth_id_token", Value: "i-old", Path: "/"}})

		store, err := credstore.New(credstore.ModeCrossOrigin, cookies, credstore.NewMemoryKV())
		require.NoError(t, err)

		access := token(t, now.Add(time.Hour))
		r := &fakeRefresher{fn: func(string) (*authsdk.TokenResponse, error) {
			return &authsdk.TokenResponse{AccessToken: access, RefreshToken: "r2"}, nil
		}}
		m := lifecycle.New(store, r, lifecycle.WithClock(func() time.Time { return now }), lifecycle.WithLogger(slogx.Discard()))
		require.NoError(t, m.Store(ctx, credstore.Set{Access: "a1", Refresh: "r1", Identity: "i-old"}))

		ok, err := m.Refresh(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := m.Credentials().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, credstore.Set{Access: access, Refresh: "r2"}, got)
	})

	t.Run("failure leaves the store untouched", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		boom := errors.New("boom")
		r := &fakeRefresher{fn: func(string) (*authsdk.TokenResponse, error) { return nil, boom }}
		m, store := newManager(t, r)

		before := credstore.Set{Access: "a1", Refresh: "r1", Identity: "i1"}
		require.NoError(t, m.Store(ctx, before))

		ok, err := m.Refresh(ctx)
		require.False(t, ok)
		require.ErrorIs(t, err, boom)

		got, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, before, got)
	})

	t.Run("empty response is a failure", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		r := &fakeRefresher{fn: func(string) (*authsdk.TokenResponse, error) {
			return &authsdk.TokenResponse{}, nil
		}}
		m, _ := newManager(t, r)
		require.NoError(t, m.Store(ctx, credstore.Set{Refresh: "r1"}))

		ok, err := m.Refresh(ctx)
		require.False(t, ok)
		require.ErrorIs(t, err, lifecycle.ErrEmptyResponse)
	})
}

func TestStoreIfGuard(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m, store := newManager(t, nil)

	stored, err := m.StoreIf(ctx, credstore.Set{Access: "a"}, func() bool { return false })
	require.ErrorIs(t, err, lifecycle.ErrStale)
	require.False(t, stored)

	set, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, set.IsZero())

	require.NoError(t, m.Store(ctx, credstore.Set{Access: "a", Refresh: "r"}))
	require.NoError(t, m.Clear(ctx))
	set, err = store.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, set.IsZero())
}

func TestSameOriginSkipsLocalWrites(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	jar, err := credstore.NewJar()
	require.NoError(t, err)
	cookies, err := credstore.NewCookieBackend(jar, "http://auth.example.test")
	require.NoError(t, err)

	local := credstore.NewMemoryKV()
	store, err := credstore.New(credstore.ModeSameOrigin, cookies, local)
	require.NoError(t, err)

	m := lifecycle.New(store, nil, lifecycle.WithLogger(slogx.Discard()))
	require.NoError(t, m.Store(ctx, credstore.Set{Access: "a"}))
	require.Empty(t, local.Snapshot())
}

func TestSweep(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	hook := &recordingHook{}
	m, store := newManager(t, nil, lifecycle.WithHook(hook))
	require.NoError(t, m.Store(ctx, credstore.Set{Access: token(t, now.Add(-time.Second)), Refresh: "r"}))

	stop := m.StartSweep(10 * time.Millisecond)
	require.True(t, m.Sweeping())

	again := m.StartSweep(time.Hour)
	require.NotNil(t, again)

	require.Eventually(t, func() bool {
		set, err := store.Snapshot(ctx)
		return err == nil && set.IsZero()
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return hook.sweepCount() >= 2 }, time.Second, 5*time.Millisecond)

	stop()
	require.False(t, m.Sweeping())

	// Stopping again, through either handle, is harmless.
	stop()
	again()
	m.StopSweep()

	swept := hook.sweepCount()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, swept, hook.sweepCount())

	t.Run("restart after stop", func(t *testing.T) {
		stop := m.StartSweep(time.Hour)
		require.True(t, m.Sweeping())
		m.StopSweep()
		require.False(t, m.Sweeping())
		stop()
	})
}
