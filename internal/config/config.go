// Package config loads the client configuration from TABSESSION_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aussiebroadwan/tabsession/pkg/credstore"
)

// Prefix of every environment variable, e.g. TABSESSION_BACKEND_URL.
const Prefix = "tabsession"

type Config struct {
	BackendURL string `envconfig:"backend_url" default:"http://localhost:8080"` // Identity-and-session backend base URL
	APIURL     string `envconfig:"api_url"`                                     // Application API base URL (default: BackendURL)

	// same-origin in production, where the backend's cookies are
	// authoritative; cross-origin for local development.
	Mode string `envconfig:"mode" default:"cross-origin"`

	StorePath string `envconfig:"store_path" default:"tabsession.db"` // SQLite file of the local credential store
	KeyPrefix string `envconfig:"key_prefix" default:"auth_"`         // Prefix of cookie names and local store keys

	SweepInterval time.Duration `envconfig:"sweep_interval" default:"60s"` // Expiry sweep period
	HTTPTimeout   time.Duration `envconfig:"http_timeout" default:"10s"`   // Per request timeout against the backend
	ClockSkew     time.Duration `envconfig:"clock_skew" default:"0s"`      // Leeway applied to credential expiry

	PostLogoutRedirect string `envconfig:"post_logout_redirect" default:"/"` // Where logouts land
	ReturnTo           string `envconfig:"return_to"`                        // Default post-login target

	LoginRatePerMinute int `envconfig:"login_rate_per_minute" default:"30"` // Client side tenant login throttle, 0 disables
	LoginBurst         int `envconfig:"login_burst" default:"5"`

	Env       string `envconfig:"env" default:"dev"`         // dev, staging, prod
	LogLevel  string `envconfig:"log_level" default:"info"`  // debug, info, warn, error
	LogFormat string `envconfig:"log_format" default:"text"` // json, text

	MetricsNamespace string `envconfig:"metrics_namespace" default:"tabsession"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = cfg.BackendURL
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	for name, raw := range map[string]string{"backend url": c.BackendURL, "api url": c.APIURL} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: %s %q must be an absolute URL", name, raw))
		}
	}
	if _, err := credstore.ParseMode(c.Mode); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if c.StorePath == "" {
		errs = append(errs, errors.New("config: store path is required"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: sweep interval must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("config: http timeout must be positive"))
	}
	if c.LoginRatePerMinute < 0 || c.LoginBurst < 0 {
		errs = append(errs, errors.New("config: login rate and burst cannot be negative"))
	}

	return errors.Join(errs...)
}

// StoreMode is Mode parsed. Call Validate first.
func (c Config) StoreMode() credstore.Mode {
	m, _ := credstore.ParseMode(c.Mode)
	return m
}

// Usage prints the recognised environment variables.
func Usage() error {
	var cfg Config
	return envconfig.Usage(Prefix, &cfg)
}
