// Package app wires the session client together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/aussiebroadwan/tabsession/internal/config"
	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/credstore"
	"github.com/aussiebroadwan/tabsession/pkg/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/tabsession/pkg/gateway"
	"github.com/aussiebroadwan/tabsession/pkg/lifecycle"
	"github.com/aussiebroadwan/tabsession/pkg/observe"
	"github.com/aussiebroadwan/tabsession/pkg/session"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tenantlogin"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Options are the process level collaborators that do not come from the
// environment.
type Options struct {
	// Navigator receives login and logout redirects. Defaults to printing
	// them to Out.
	Navigator session.Navigator

	// Out is where user facing output goes. Defaults to io.Discard.
	Out io.Writer

	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// Application holds the wired session client.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db      *sqlite.Store
	jar     http.CookieJar
	store   *credstore.Store
	sdk     *authsdk.Client
	metrics *prometheus.Registry

	Lifecycle  *lifecycle.Manager
	Initiator  *tenantlogin.Initiator
	Gateway    *gateway.Client
	Controller *session.Controller
}

// New builds the application. Close releases the local store.
func New(cfg config.Config, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabsession",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  opts.LogOutput,
		}),
		metrics: prometheus.NewRegistry(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initSession(opts); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// initStore opens the local store and the cookie jar.
func (app *Application) initStore() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", app.cfg.StorePath)
	db, err := sqlite.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	app.db = db

	jar, err := credstore.NewJar()
	if err != nil {
		_ = db.Close()
		return err
	}
	app.jar = jar

	cookies, err := credstore.NewCookieBackend(jar, app.cfg.BackendURL)
	if err != nil {
		_ = db.Close()
		return err
	}

	app.store, err = credstore.New(app.cfg.StoreMode(), cookies, db,
		credstore.WithKeyPrefix(app.cfg.KeyPrefix),
		credstore.WithLogger(app.logger),
	)
	if err != nil {
		_ = db.Close()
		return err
	}

	app.logger.Debug("credential store ready", "mode", app.cfg.StoreMode(), "path", app.cfg.StorePath)
	return nil
}

func (app *Application) initSession(opts Options) error {
	promHook, err := observe.NewPrometheusHook(app.metrics, app.cfg.MetricsNamespace)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	hook := observe.Multi{observe.SlogHook{Logger: app.logger}, promHook}

	app.sdk = authsdk.NewClient(app.cfg.BackendURL, app.jar)
	app.sdk.HTTPClient.Timeout = app.cfg.HTTPTimeout
	app.sdk.Logger = app.logger

	app.Lifecycle = lifecycle.New(app.store, app.sdk,
		lifecycle.WithLogger(app.logger),
		lifecycle.WithHook(hook),
		lifecycle.WithLeeway(app.cfg.ClockSkew),
	)

	app.Initiator = tenantlogin.New(app.sdk,
		tenantlogin.WithLogger(app.logger),
		tenantlogin.WithHook(hook),
		tenantlogin.WithRateLimit(tenantlogin.PerMinute(app.cfg.LoginRatePerMinute), app.cfg.LoginBurst),
	)

	app.Gateway, err = gateway.New(app.cfg.APIURL, app.Lifecycle,
		gateway.WithHTTPClient(&http.Client{Timeout: app.cfg.HTTPTimeout, Jar: app.jar}),
		gateway.WithLogger(app.logger),
	)
	if err != nil {
		return err
	}

	nav := opts.Navigator
	if nav == nil {
		nav = PrintNavigator(opts.Out)
	}

	app.Controller, err = session.New(session.Options{
		API:                app.sdk,
		Lifecycle:          app.Lifecycle,
		Initiator:          app.Initiator,
		Gateway:            app.Gateway,
		Navigator:          nav,
		PostLogoutRedirect: app.cfg.PostLogoutRedirect,
		Logger:             app.logger,
		Hook:               hook,
	})
	return err
}

func (app *Application) Config() config.Config { return app.cfg }
func (app *Application) Logger() *slog.Logger  { return app.logger }

// HTTPClient shares the backend cookie jar, for navigators that follow
// redirects themselves.
func (app *Application) HTTPClient() *http.Client { return app.sdk.HTTPClient }

// Metrics gathers the session metrics as "name{labels} value" lines.
func (app *Application) Metrics() ([]string, error) {
	families, err := app.metrics.Gather()
	if err != nil {
		return nil, err
	}
	return formatFamilies(families), nil
}

// formatFamilies renders each sample by its metric type. Histograms and
// summaries contribute their _count and _sum series.
func formatFamilies(families []*dto.MetricFamily) []string {
	var lines []string
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			labels := formatLabels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, fmt.Sprintf("%s{%s} %g", name, labels, m.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				lines = append(lines, fmt.Sprintf("%s{%s} %g", name, labels, m.GetGauge().GetValue()))
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				h := m.GetHistogram()
				lines = append(lines,
					fmt.Sprintf("%s_count{%s} %d", name, labels, h.GetSampleCount()),
					fmt.Sprintf("%s_sum{%s} %g", name, labels, h.GetSampleSum()))
			case dto.MetricType_SUMMARY:
				sm := m.GetSummary()
				lines = append(lines,
					fmt.Sprintf("%s_count{%s} %d", name, labels, sm.GetSampleCount()),
					fmt.Sprintf("%s_sum{%s} %g", name, labels, sm.GetSampleSum()))
			default:
				lines = append(lines, fmt.Sprintf("%s{%s} %g", name, labels, m.GetUntyped().GetValue()))
			}
		}
	}
	return lines
}

func formatLabels(pairs []*dto.LabelPair) string {
	var b strings.Builder
	for i, lp := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", lp.GetName(), lp.GetValue())
	}
	return b.String()
}

// StartSweep starts the expiry sweep at the configured interval.
func (app *Application) StartSweep() (stop func()) {
	return app.Controller.StartSweep(app.cfg.SweepInterval)
}

// Close stops background work and closes the local store.
func (app *Application) Close() error {
	app.Controller.Close()

	var errs []error
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close credential store: %w", err))
	}
	return errors.Join(errs...)
}

// Init is a shorthand for Controller.Init that tolerates being overtaken.
func (app *Application) Init(ctx context.Context) (session.State, error) {
	err := app.Controller.Init(ctx)
	if errors.Is(err, session.ErrSuperseded) {
		err = nil
	}
	return app.Controller.State(), err
}
