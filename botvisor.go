// Package botvisor supervises a pool of long-running worker programs
// discovered from a directory, restarting them under a bounded-attempt
// policy. It re-exports the pieces needed to embed the supervisor.
package botvisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/botvisor/internal/config"
	"github.com/loykin/botvisor/internal/discovery"
	"github.com/loykin/botvisor/internal/env"
	"github.com/loykin/botvisor/internal/history"
	"github.com/loykin/botvisor/internal/history/factory"
	"github.com/loykin/botvisor/internal/logger"
	"github.com/loykin/botvisor/internal/logsink"
	"github.com/loykin/botvisor/internal/metrics"
	"github.com/loykin/botvisor/internal/process"
	"github.com/loykin/botvisor/internal/server"
	"github.com/loykin/botvisor/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Fallback = config.Fallback

type Status = process.Status

type Unit = discovery.Unit

type DiscoveryResult = discovery.Result

type Supervisor = supervisor.Supervisor

type SupervisorOptions = supervisor.Options

type HistorySink = history.Sink

type HistoryEvent = history.Event

var (
	ErrUnknownUnit    = supervisor.ErrUnknownUnit
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrDraining       = supervisor.ErrDraining
)

func DefaultConfig() Config { return config.Defaults() }

// LoadConfig reads a YAML (or JSON) config. Invalid values fall back to
// defaults and are reported; a malformed document yields the defaults and
// an error.
func LoadConfig(path string) (Config, []Fallback, error) { return config.Load(path) }

// Discover scans cfg.Units.Dir, creating it when absent.
func Discover(cfg Config) (DiscoveryResult, error) {
	return discovery.New(cfg.Units.Dir, cfg.Units.Manifests...).Scan()
}

func NewSupervisor(opts SupervisorOptions) *Supervisor { return supervisor.New(opts) }

// NewLogger builds the supervisor's own logger from the logging and
// advanced sections.
func NewLogger(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	return logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Debug:      cfg.Advanced.DebugMode,
		Timestamps: cfg.Logging.ConsoleTimestamps,
		Color:      true,
		Console:    console,
		File:       cfg.Logging.File,
	})
}

func HashToken(token string) (string, error) { return server.HashToken(token, 0) }

func FormatUptime(d time.Duration) string { return process.FormatUptime(d) }

func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler { return metrics.Handler() }

// NewAPIHandler returns the control API for s, mountable in any mux.
// A non-empty tokenHash (see HashToken) requires a bearer token.
func NewAPIHandler(s *Supervisor, basePath, tokenHash string) http.Handler {
	return server.NewRouter(s, basePath, tokenHash).Handler()
}

// DaemonOptions are the process-level dependencies of a Daemon.
type DaemonOptions struct {
	Logger *slog.Logger
	Stdout io.Writer // unit output and status reports, defaults to os.Stdout
}

// Daemon is a supervisor wired with its log files, history export and
// optional HTTP listeners, as run by "botvisor run".
type Daemon struct {
	Supervisor  *Supervisor
	Units       DiscoveryResult
	APIAddr     string
	MetricsAddr string

	log      *slog.Logger
	servers  []*http.Server
	dispatch *history.Dispatcher
}

// NewDaemon performs startup sequencing up to the first launch. Any error
// is a startup failure: the units directory is unusable or a listener
// could not be bound.
func NewDaemon(cfg Config, opts DaemonOptions) (*Daemon, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	d := &Daemon{log: log}

	res, err := Discover(cfg)
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	for _, r := range res.Rejected {
		log.Warn("skipping directory", "name", r.Name, "reason", r.Reason, "error", r.Err)
	}
	d.Units = res

	if cfg.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		srv, addr, err := server.Listen(cfg.Metrics.Listen, metrics.Handler())
		if err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		d.servers = append(d.servers, srv)
		d.MetricsAddr = addr
		log.Info("metrics listening", "addr", addr)
	}

	var emitter supervisor.Emitter
	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			log.Warn("history export disabled", "error", err)
		} else {
			d.dispatch = history.NewDispatcher(cfg.History.Buffer, []history.Sink{sink},
				history.WithLogger(log), history.WithDropHook(metrics.IncHistoryDropped))
			emitter = d.dispatch
		}
	}

	d.Supervisor = supervisor.New(supervisor.Options{
		Config: cfg,
		Units:  res.Units,
		Logs: logsink.NewProvider(logsink.Options{
			Dir:           cfg.Logging.Dir,
			DateOrganized: cfg.Logging.DateOrganized,
			MaxFiles:      cfg.Logging.MaxLogFiles,
			MaxSizeMB:     cfg.Logging.MaxSizeMB,
		}),
		Env:     env.New(cfg.Units.Env),
		History: emitter,
		Logger:  log,
		Console: logger.NewConsole(stdout, cfg.Logging.ConsoleTimestamps),
	})

	if cfg.Server.Listen != "" {
		h := server.NewRouter(d.Supervisor, cfg.Server.BasePath, cfg.Server.TokenHash).Handler()
		srv, addr, err := server.Listen(cfg.Server.Listen, h)
		if err != nil {
			d.Supervisor.Close()
			d.closeAll()
			return nil, fmt.Errorf("api listener: %w", err)
		}
		d.servers = append(d.servers, srv)
		d.APIAddr = addr
		log.Info("control API listening", "addr", addr, "base_path", cfg.Server.BasePath)
	}
	return d, nil
}

// Run blocks until the supervisor shut down, which cancelling ctx starts.
func (d *Daemon) Run(ctx context.Context) error {
	err := d.Supervisor.Run(ctx)
	return errors.Join(err, d.closeAll())
}

func (d *Daemon) closeAll() error {
	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range d.servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.servers = nil
	if d.dispatch != nil {
		if err := d.dispatch.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
		d.dispatch = nil
	}
	return errors.Join(errs...)
}
