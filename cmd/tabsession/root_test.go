package main

import (
	"bytes"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/tabsession/internal/devbackend"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) *devbackend.Server {
	t.Helper()

	cfg := devbackend.DefaultConfig()
	cfg.Logger = slogx.Discard()
	backend, err := devbackend.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	t.Setenv("TABSESSION_BACKEND_URL", srv.URL)
	t.Setenv("TABSESSION_STORE_PATH", filepath.Join(t.TempDir(), "tabsession.db"))
	t.Setenv("TABSESSION_MODE", "cross-origin")
	t.Setenv("TABSESSION_LOG_LEVEL", "error")
	return backend
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	backend := setupEnv(t)

	out, err := run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "state: unauthenticated")

	out, err = run(t, "login", "--email", "jane@acme.com", "--follow")
	require.NoError(t, err)
	require.Contains(t, out, "signing in to Acme")
	require.Contains(t, out, "state: authenticated")
	require.Contains(t, out, "<jane@acme.com>")

	// A fresh process picks the session up from the local store.
	out, err = run(t, "status", "--validate", "--metrics")
	require.NoError(t, err)
	require.Contains(t, out, "state: authenticated")
	require.Contains(t, out, "tenant: Acme")
	require.Contains(t, out, "backend accepts session: true")
	require.Contains(t, out, "tabsession_session_state_transitions_total")

	out, err = run(t, "call", "/api/v1/auth/me")
	require.NoError(t, err)
	require.Contains(t, out, "200 OK")
	require.Contains(t, out, "jane@acme.com")

	out, err = run(t, "refresh")
	require.NoError(t, err)
	require.Contains(t, out, "state: authenticated")

	out, err = run(t, "logout", "--complete")
	require.NoError(t, err)
	require.Contains(t, out, "signed out")
	require.Equal(t, 0, backend.SessionCount())

	out, err = run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "state: unauthenticated")
}

func TestLoginUnknownDomain(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "login", "--email", "someone@nowhere.test")
	require.ErrorContains(t, err, "unknown domain")
}

func TestLoginRequiresEmail(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "login")
	require.Error(t, err)
}

func TestParseTenant(t *testing.T) {
	t.Parallel()

	tenant, err := parseTenant("globex.com=Globex")
	require.NoError(t, err)
	require.Equal(t, devbackend.Tenant{Domain: "globex.com", Company: "Globex"}, tenant)

	tenant, err = parseTenant("initech.com=Initech=https://idp.initech.com/authorize?x=1")
	require.NoError(t, err)
	require.Equal(t, "https://idp.initech.com/authorize?x=1", tenant.AuthURL)

	for _, bad := range []string{"", "globex.com", "=Globex", "globex.com="} {
		_, err := parseTenant(bad)
		require.Error(t, err, bad)
	}
}
