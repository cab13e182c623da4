package config_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/config"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TABSESSION_BACKEND_URL", "https://auth.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "https://auth.example", cfg.BackendURL)
	require.Equal(t, "https://auth.example", cfg.APIURL)
	require.Equal(t, credstore.ModeCrossOrigin, cfg.StoreMode())
	require.Equal(t, "auth_", cfg.KeyPrefix)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 30, cfg.LoginRatePerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TABSESSION_BACKEND_URL", "https://auth.example")
	t.Setenv("TABSESSION_API_URL", "https://api.example/v2")
	t.Setenv("TABSESSION_MODE", "same-origin")
	t.Setenv("TABSESSION_SWEEP_INTERVAL", "5m")
	t.Setenv("TABSESSION_CLOCK_SKEW", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "https://api.example/v2", cfg.APIURL)
	require.Equal(t, credstore.ModeSameOrigin, cfg.StoreMode())
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
	require.Equal(t, 30*time.Second, cfg.ClockSkew)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TABSESSION_SWEEP_INTERVAL", "soon")

	_, err := config.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	good := config.Config{
		BackendURL:    "http://localhost:8080",
		APIURL:        "http://localhost:8080",
		Mode:          "cross-origin",
		StorePath:     "x.db",
		SweepInterval: time.Second,
		HTTPTimeout:   time.Second,
	}
	require.NoError(t, good.Validate())

	bad := good
	bad.BackendURL = "localhost"
	bad.Mode = "sideways"
	bad.SweepInterval = 0

	err := bad.Validate()
	require.ErrorContains(t, err, "backend url")
	require.ErrorContains(t, err, "sideways")
	require.ErrorContains(t, err, "sweep interval")
}
