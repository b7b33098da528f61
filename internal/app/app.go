// Package app assembles the capboard components from a configuration.
package app

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/command"
	"github.com/felixgeelhaar/capboard/internal/config"
	"github.com/felixgeelhaar/capboard/internal/contract"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/log"
	"github.com/felixgeelhaar/capboard/internal/metrics"
	"github.com/felixgeelhaar/capboard/internal/session"
	"github.com/felixgeelhaar/capboard/internal/telemetry"
	"github.com/felixgeelhaar/capboard/internal/version"
)

// LogFileName is where the terminal UI logs when logging.file is unset.
const LogFileName = "capboard.log"

// App holds one wired set of components. Build it with New and release it
// with Close.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Contract  *contract.Document
	Client    *api.Client
	Engine    *authz.Engine
	Sessions  *session.Controller
	Renderer  *catalog.Renderer
	Board     *feedback.Board
	Commander *command.Commander

	closers []func(context.Context) error
}

type options struct {
	logWriter     io.Writer
	logToFile     bool
	baseTransport http.RoundTripper
	store         session.Store
}

// Option configures New.
type Option func(*options)

// WithLogWriter sends log output to w unless logging.file is set.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithLogFile always logs to a file: logging.file, or capboard.log next to
// the session file. The terminal UI uses this.
func WithLogFile() Option {
	return func(o *options) {
		o.logToFile = true
	}
}

// WithBaseTransport replaces http.DefaultTransport at the bottom of the
// client's transport chain.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.baseTransport = rt
	}
}

// WithStore replaces the file-backed session store.
func WithStore(s session.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// New wires every component for cfg. It does not touch the network; call
// Sessions.Bootstrap to restore a persisted session.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}

	logger, err := a.newLogger(o)
	if err != nil {
		return nil, err
	}
	a.Logger = logger

	if err := a.initTelemetry(ctx); err != nil {
		a.Logger.WithError(err).Warn("tracing disabled")
	}

	a.Registry, a.Metrics = metrics.NewRegistry()

	profile, err := api.ParseProfile(cfg.API.Profile)
	if err != nil {
		_ = a.Close(ctx)
		return nil, errors.NewConfigInvalidError("api.profile", cfg.API.Profile, "hierarchy, flat")
	}
	engine, err := authz.ForProfile(string(profile))
	if err != nil {
		_ = a.Close(ctx)
		return nil, errors.NewConfigInvalidError("api.profile", cfg.API.Profile, "hierarchy, flat")
	}
	a.Engine = engine

	base := o.baseTransport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.API.StrictContract {
		doc, err := contract.Load(string(profile), cfg.API.URL)
		if err != nil {
			_ = a.Close(ctx)
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to load the registry contract", err)
		}
		a.Contract = doc
		base = contract.NewTransport(doc, base, a.reportDrift)
	}
	chain := a.Metrics.InstrumentTransport(telemetry.Transport(base))

	client, err := api.NewClient(cfg.ClientConfig(), api.WithTransport(chain), api.WithLogger(a.Logger))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Client = client

	store := o.store
	if store == nil {
		store = session.NewFileStore(cfg.Session.Path)
	}
	a.Sessions = session.NewController(store, client,
		session.WithLogger(a.Logger),
		session.WithMetrics(a.Metrics),
	)
	a.Renderer = catalog.NewRenderer(a.Sessions, engine,
		catalog.WithLogger(a.Logger),
		catalog.WithMetrics(a.Metrics),
	)
	a.closers = append(a.closers, func(context.Context) error {
		a.Renderer.Close()
		return nil
	})

	a.Board = feedback.NewBoard(feedback.WithDismissAfter(cfg.Feedback.DismissAfter))
	a.closers = append(a.closers, func(context.Context) error {
		a.Board.Clear()
		return nil
	})

	a.Commander = command.New(a.Sessions, engine, a.Renderer, a.Board,
		command.WithLogger(a.Logger),
		command.WithMetrics(a.Metrics),
	)

	a.Logger.Debug("app ready",
		"version", version.GetInfo().Version,
		"api_url", cfg.API.URL,
		"profile", cfg.API.Profile,
		"strict_contract", cfg.API.StrictContract,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stderrors.Join(errs...)
}

// ServeMetrics exposes the registry on addr until ctx is done. It returns
// the bound address once listening.
func (a *App) ServeMetrics(ctx context.Context, addr string) (string, error) {
	srv, err := metrics.Listen(addr, a.Registry)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfigInvalid, "failed to listen on metrics address "+addr, err).
			WithSuggestion("Choose a free address with --metrics-addr or metrics.addr")
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			a.Logger.WithError(err).Warn("metrics server stopped")
		}
	}()
	a.Logger.Info("serving metrics", "addr", srv.Addr())
	return srv.Addr(), nil
}

func (a *App) newLogger(o options) (*log.Logger, error) {
	lc := a.Config.LogConfig()

	path := a.Config.Logging.File
	if path == "" && o.logToFile {
		path = filepath.Join(filepath.Dir(a.Config.Session.Path), LogFileName)
	}

	switch {
	case path != "":
		out, err := log.OutputFile(path)
		if err != nil {
			return nil, errors.NewFileWriteError(path, err)
		}
		lc.Output = out
		a.closers = append(a.closers, func(context.Context) error {
			return out.Close()
		})
	case o.logWriter != nil:
		lc.Output = log.NewOutput(o.logWriter)
	}

	lc.ServiceVersion = version.GetInfo().Version
	return log.New(lc), nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	tc := telemetry.DefaultConfig()
	tc.Enabled = a.Config.Telemetry.Enabled
	tc.Endpoint = a.Config.Telemetry.Endpoint
	tc.Insecure = !strings.Contains(tc.Endpoint, "://")
	tc.SampleRate = a.Config.Telemetry.SampleRate

	shutdown, err := telemetry.InitProvider(ctx, tc)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)
	return nil
}

// reportDrift records a response that does not match the registry contract.
func (a *App) reportDrift(f contract.Finding) {
	a.Metrics.RecordDrift(f.Code, f.Method)
	a.Logger.Warn("registry response does not match its contract",
		"code", f.Code,
		"method", f.Method,
		"path", f.Path,
		"status", f.Status,
		"detail", f.Message,
	)
}
