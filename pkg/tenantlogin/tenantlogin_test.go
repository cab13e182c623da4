package tenantlogin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tabsession/internal/devbackend"
	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tenantlogin"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	calls int
	resp  *authsdk.TenantLoginResponse
	err   error

	// block, when set, holds the call until closed.
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeDetector) InitiateTenantLogin(context.Context, string, string) (*authsdk.TenantLoginResponse, error) {
	f.calls++
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.resp, f.err
}

func newInitiator(d tenantlogin.Detector, opts ...tenantlogin.Option) *tenantlogin.Initiator {
	opts = append([]tenantlogin.Option{tenantlogin.WithLogger(slogx.Discard())}, opts...)
	return tenantlogin.New(d, opts...)
}

func TestInitiateAgainstBackend(t *testing.T) {
	t.Parallel()

	cfg := devbackend.DefaultConfig()
	cfg.Logger = slogx.Discard()
	cfg.Tenants = []devbackend.Tenant{{
		Domain:  "acme.com",
		Company: "Acme",
		AuthURL: "https://acme.fusionauth.example/oauth2/authorize?client_id=acme",
	}}
	backend, err := devbackend.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client := authsdk.NewClient(srv.URL, nil)
	client.Logger = slogx.Discard()

	t.Run("known domain", func(t *testing.T) {
		i := newInitiator(client)

		res, err := i.Initiate(t.Context(), "jane@acme.com", "https://app.example/")
		require.NoError(t, err)
		require.Equal(t, "https://acme.fusionauth.example/oauth2/authorize?client_id=acme", res.AuthURL)
		require.Equal(t, "Acme", res.Tenant)
		require.Equal(t, tenantlogin.StateRedirecting, i.State())
		require.NoError(t, i.LastError())
		require.Zero(t, backend.SessionCount())
	})

	t.Run("unknown domain", func(t *testing.T) {
		i := newInitiator(client)

		_, err := i.Initiate(t.Context(), "jane@nowhere.example", "")

		var rejected *tenantlogin.RejectedError
		require.ErrorAs(t, err, &rejected)
		require.Equal(t, "unknown domain", rejected.Message)
		require.Equal(t, "unknown domain", err.Error())
		require.Equal(t, tenantlogin.StateFailed, i.State())
		require.Equal(t, err, i.LastError())
	})

	t.Run("backend unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()

		i := newInitiator(authsdk.NewClient(dead.URL, nil))
		_, err := i.Initiate(t.Context(), "jane@acme.com", "")

		var unreachable *tenantlogin.UnreachableError
		require.ErrorAs(t, err, &unreachable)
		require.Contains(t, err.Error(), "check your connection")
		require.True(t, authsdk.IsTransport(err))
		require.Equal(t, tenantlogin.StateFailed, i.State())
	})
}

func TestInitiateEmptyEmail(t *testing.T) {
	t.Parallel()

	d := &fakeDetector{}
	i := newInitiator(d)

	for _, email := range []string{"", "   ", "\t\n"} {
		_, err := i.Initiate(t.Context(), email, "")
		require.ErrorIs(t, err, tenantlogin.ErrEmailRequired)
		require.Equal(t, tenantlogin.StateFailed, i.State())
	}
	require.Zero(t, d.calls)

	i.Reset()
	require.Equal(t, tenantlogin.StateIdle, i.State())
	require.NoError(t, i.LastError())
}

func TestInterpretResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		resp    *authsdk.TenantLoginResponse
		err     error
		message string
	}{
		"rejected without message": {
			resp:    &authsdk.TenantLoginResponse{},
			message: "We could not find an organization for that email address.",
		},
		"success without url": {
			resp:    &authsdk.TenantLoginResponse{Success: true, Company: "Acme"},
			message: "The sign-in service did not return a login address.",
		},
		"success with relative url": {
			resp:    &authsdk.TenantLoginResponse{Success: true, AuthURL: "/oauth"},
			message: "The sign-in service did not return a login address.",
		},
		"api error carries its message": {
			err:     &authsdk.APIError{StatusCode: http.StatusBadRequest, Message: "email is required"},
			message: "email is required",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			i := newInitiator(&fakeDetector{resp: tc.resp, err: tc.err})
			_, err := i.Initiate(t.Context(), "jane@acme.com", "")

			var rejected *tenantlogin.RejectedError
			require.ErrorAs(t, err, &rejected)
			require.Equal(t, tc.message, rejected.Message)
			require.Equal(t, tenantlogin.StateFailed, i.State())
		})
	}
}

func TestInitiateInFlight(t *testing.T) {
	t.Parallel()

	d := &fakeDetector{
		resp:    &authsdk.TenantLoginResponse{Success: true, AuthURL: "https://idp.example/a"},
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	i := newInitiator(d)

	done := make(chan error, 1)
	go func() {
		_, err := i.Initiate(t.Context(), "jane@acme.com", "")
		done <- err
	}()

	<-d.entered
	require.Equal(t, tenantlogin.StateSubmitting, i.State())

	_, err := i.Initiate(t.Context(), "jane@acme.com", "")
	require.ErrorIs(t, err, tenantlogin.ErrInFlight)

	i.Reset()
	require.Equal(t, tenantlogin.StateSubmitting, i.State())

	close(d.block)
	require.NoError(t, <-done)
	require.Equal(t, tenantlogin.StateRedirecting, i.State())
}

func TestInitiateThrottled(t *testing.T) {
	t.Parallel()

	d := &fakeDetector{err: errors.New("unreachable")}
	i := newInitiator(d, tenantlogin.WithRateLimit(tenantlogin.PerMinute(1), 2))

	for range 2 {
		_, err := i.Initiate(t.Context(), "jane@acme.com", "")
		require.Error(t, err)
		require.NotErrorIs(t, err, tenantlogin.ErrThrottled)
	}

	_, err := i.Initiate(t.Context(), "jane@acme.com", "")
	require.ErrorIs(t, err, tenantlogin.ErrThrottled)
	require.Equal(t, 2, d.calls)

	t.Run("zero limit disables throttling", func(t *testing.T) {
		d := &fakeDetector{resp: &authsdk.TenantLoginResponse{Success: true, AuthURL: "https://idp.example"}}
		i := newInitiator(d, tenantlogin.WithRateLimit(0, 0))
		for range 20 {
			_, err := i.Initiate(t.Context(), "jane@acme.com", "")
			require.NoError(t, err)
		}
	})
}

func TestCancelledSubmissionReturnsToIdle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	d := &fakeDetector{err: &authsdk.TransportError{Op: "tenant login", Err: context.Canceled}}
	i := newInitiator(d)

	_, err := i.Initiate(ctx, "jane@acme.com", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, tenantlogin.StateIdle, i.State())
}
