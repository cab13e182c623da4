package credstore_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/stretchr/testify/require"
)

const backendURL = "http://auth.example.test"

func newCookies(t *testing.T) (*credstore.CookieBackend, http.CookieJar) {
	t.Helper()

	jar, err := credstore.NewJar()
	require.NoError(t, err)

	cb, err := credstore.NewCookieBackend(jar, backendURL)
	require.NoError(t, err)
	return cb, jar
}

// setCookies plays the backend writing credential cookies into the jar.
func setCookies(t *testing.T, jar http.CookieJar, values map[string]string) {
	t.Helper()

	u, err := url.Parse(backendURL)
	require.NoError(t, err)

	cookies := make([]*http.Cookie, 0, len(values))
	for k, v := range values {
		cookies = append(cookies, &http.Cookie{Name: k, Value: v, Path: "/", HttpOnly: true})
	}
	jar.SetCookies(u, cookies)
}

func TestNewValidatesBackends(t *testing.T) {
	t.Parallel()

	cookies, jar := newCookies(t)

	_, err := credstore.New(credstore.ModeSameOrigin, nil, credstore.NewMemoryKV())
	require.ErrorIs(t, err, credstore.ErrNoBackend)

	_, err = credstore.New(credstore.ModeCrossOrigin, cookies, nil)
	require.ErrorIs(t, err, credstore.ErrNoBackend)

	_, err = credstore.New(credstore.Mode(42), cookies, nil)
	require.Error(t, err)

	_, err = credstore.NewCookieBackend(nil, backendURL)
	require.Error(t, err)

	_, err = credstore.NewCookieBackend(jar, "not a url")
	require.Error(t, err)
}

func TestSameOriginStore(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	cookies, jar := newCookies(t)
	local := credstore.NewMemoryKV()

	s, err := credstore.New(credstore.ModeSameOrigin, cookies, local)
	require.NoError(t, err)
	require.Equal(t, credstore.BackendCookies, s.Active())
	require.False(t, s.Writable())

	setCookies(t, jar, map[string]string{
		"auth_access_token":  "a1",
		"auth_refresh_token": "r1",
		"auth_id_token":      "i1",
	})

	set, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, credstore.Set{Access: "a1", Refresh: "r1", Identity: "i1"}, set)

	t.Run("set is rejected", func(t *testing.T) {
		err := s.Set(ctx, credstore.Set{Access: "x"})
		require.ErrorIs(t, err, credstore.ErrReadOnlyBackend)
		require.Empty(t, local.Snapshot())
	})

	t.Run("local values are ignored", func(t *testing.T) {
		require.NoError(t, local.Put(ctx, map[string]string{"auth_access_token": "stale"}))
		v, err := s.Get(ctx, credstore.SlotAccess)
		require.NoError(t, err)
		require.Equal(t, "a1", v)
	})

	t.Run("clear expires cookies and scrubs local", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))

		set, err := s.Snapshot(ctx)
		require.NoError(t, err)
		require.True(t, set.IsZero())
		require.Empty(t, local.Snapshot())
	})
}

func TestCrossOriginStore(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	cookies, jar := newCookies(t)
	local := credstore.NewMemoryKV()

	s, err := credstore.New(credstore.ModeCrossOrigin, cookies, local)
	require.NoError(t, err)
	require.Equal(t, credstore.BackendLocal, s.Active())
	require.True(t, s.Writable())

	t.Run("falls back to cookies", func(t *testing.T) {
		setCookies(t, jar, map[string]string{"auth_refresh_token": "cookie-r"})

		v, err := s.Get(ctx, credstore.SlotRefresh)
		require.NoError(t, err)
		require.Equal(t, "cookie-r", v)
	})

	t.Run("local wins over cookies", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, credstore.Set{Access: "a", Refresh: "local-r"}))

		v, err := s.Get(ctx, credstore.SlotRefresh)
		require.NoError(t, err)
		require.Equal(t, "local-r", v)
	})

	t.Run("set replaces the whole set", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, credstore.Set{Access: "a", Refresh: "r", Identity: "i"}))
		require.NoError(t, s.Set(ctx, credstore.Set{Access: "a2", Refresh: "r2"}))

		require.Equal(t, map[string]string{
			"auth_access_token":  "a2",
			"auth_refresh_token": "r2",
		}, local.Snapshot())
	})

	t.Run("set expires cookies for dropped slots", func(t *testing.T) {
		setCookies(t, jar, map[string]string{"auth_id_token": "cookie-i"})
		require.NoError(t, s.Set(ctx, credstore.Set{Access: "a2", Refresh: "r2"}))

		v, err := s.Get(ctx, credstore.SlotIdentity)
		require.NoError(t, err)
		require.Empty(t, v)
	})

	t.Run("remove scrubs both backends", func(t *testing.T) {
		require.NoError(t, s.Remove(ctx, credstore.SlotRefresh))

		v, err := s.Get(ctx, credstore.SlotRefresh)
		require.NoError(t, err)
		require.Empty(t, v)

		v, err = s.Get(ctx, credstore.SlotAccess)
		require.NoError(t, err)
		require.Equal(t, "a2", v)
	})
}

func TestKeyPrefix(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	local := credstore.NewMemoryKV()

	s, err := credstore.New(credstore.ModeCrossOrigin, nil, local, credstore.WithKeyPrefix("tab_"))
	require.NoError(t, err)
	require.Equal(t, []string{"tab_access_token", "tab_refresh_token", "tab_id_token"}, s.Keys().All())

	require.NoError(t, s.Set(ctx, credstore.Set{Identity: "i"}))
	require.Equal(t, map[string]string{"tab_id_token": "i"}, local.Snapshot())

	v, err := s.Get(ctx, credstore.SlotAccess)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	cases := map[string]credstore.Mode{
		"same-origin":   credstore.ModeSameOrigin,
		"production":    credstore.ModeSameOrigin,
		" Cross-Origin": credstore.ModeCrossOrigin,
		"development":   credstore.ModeCrossOrigin,
	}
	for in, want := range cases {
		got, err := credstore.ParseMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
		require.Equal(t, want.String(), got.String())
	}

	_, err := credstore.ParseMode("sideways")
	require.Error(t, err)
}
