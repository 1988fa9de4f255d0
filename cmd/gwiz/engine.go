package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mattjoyce/gwiz/internal/api"
	"github.com/mattjoyce/gwiz/internal/audit"
	"github.com/mattjoyce/gwiz/internal/auth"
	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/lock"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/program"
	"github.com/mattjoyce/gwiz/internal/scheduler"
	"github.com/mattjoyce/gwiz/internal/storage"
	"github.com/mattjoyce/gwiz/internal/transport"
)

// engineOptions selects what a command needs from the shared wiring.
type engineOptions struct {
	programs []string
	notifier dispatch.Notifier
	// running overrides machine.start_paused.
	running bool
	// transport replaces the configured connection (tests use a Sim).
	transport transport.Transport
}

// engine is one connected machine: dispatch context, loop, audit trail and
// optional API server.
type engine struct {
	cfg       *config.Config
	dc        *dispatch.Context
	loop      *dispatch.Loop
	tr        transport.Transport
	hub       *events.Hub
	metrics   *metrics.Recorder
	api       *api.Server
	polls     *scheduler.Scheduler
	db        *sql.DB
	sessions  *storage.Sessions
	sessionID string
	logger    *slog.Logger

	closers   []func() error
	closeOnce sync.Once
}

func openEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (_ *engine, err error) {
	e := &engine{
		cfg:     cfg,
		hub:     events.NewHub(events.DefaultRing),
		metrics: metrics.New(),
		logger:  log.WithMachine(cfg.Machine.Name).With("component", "main"),
	}
	defer func() {
		if err != nil {
			e.close("startup failed")
		}
	}()

	endpoint := endpointOf(cfg)
	if cfg.Machine.Transport != config.TransportSim && opts.transport == nil {
		lockPath := lock.PathFor(os.TempDir(), endpoint)
		pl, err := lock.Acquire(lockPath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, pl.Release)
		e.logger.Debug("acquired port lock", "path", pl.Path())
	}

	if cfg.Audit.Database != "" {
		db, err := storage.OpenSQLite(ctx, cfg.Audit.Database)
		if err != nil {
			return nil, err
		}
		e.db = db
		e.closers = append(e.closers, db.Close)
		e.sessions = storage.NewSessions(db)
		id, err := e.sessions.Start(ctx, cfg.Machine.Name, endpoint, configHash(cfg, e.logger))
		if err != nil {
			return nil, err
		}
		e.sessionID = id
		e.logger = e.logger.With("session", id)
	}

	router, err := e.buildRouter()
	if err != nil {
		return nil, err
	}

	e.dc = dispatch.NewContext(dispatch.Options{
		Machine:          cfg.Machine.Name,
		InFlightCapacity: cfg.Machine.InFlightCapacity,
		PendingDisplay:   cfg.Display.PendingLen,
		Router:           router,
		StartPaused:      cfg.Machine.StartPaused && !opts.running,
		WaitForStart:     cfg.Machine.WaitForStart,
		Events:           e.hub,
		Metrics:          e.metrics,
	})

	for _, path := range opts.programs {
		p, err := program.Load(path)
		if err != nil {
			return nil, err
		}
		e.dc.LoadProgram(p.Pile(cfg.Display.PendingLen))
		e.logger.Info("program loaded", "path", p.Path, "lines", len(p.Commands), "fingerprint", p.Fingerprint)
	}

	e.tr = opts.transport
	if e.tr == nil {
		e.tr, err = openTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	e.closers = append(e.closers, e.tr.Close)

	var loopOpts []dispatch.LoopOption
	if opts.notifier != nil {
		loopOpts = append(loopOpts, dispatch.WithNotifier(opts.notifier))
	}
	e.loop = dispatch.NewLoop(e.dc, e.tr, loopOpts...)
	e.polls = scheduler.New(cfg.Poll, e.dc, e.hub, log.WithMachine(cfg.Machine.Name))

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Tokens))
		for _, t := range cfg.API.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		e.api = api.New(api.Config{
			Listen:    cfg.API.Listen,
			APIKey:    cfg.API.APIKey,
			Tokens:    tokens,
			AckWindow: cfg.Display.AckLen,
		}, e.dc, e.hub, e.metrics, log.WithComponent("api"))
	}

	e.logger.Info("machine connected", "transport", cfg.Machine.Transport, "endpoint", endpoint)
	return e, nil
}

// buildRouter wires the three audit streams. Every stream also lands in the
// SQLite audit log when a database is configured.
func (e *engine) buildRouter() (*audit.Router, error) {
	cfg := e.cfg

	level, err := audit.ParseLevel(cfg.Audit.MachineLogLevel)
	if err != nil {
		return nil, err
	}
	machineFile, err := audit.OpenFile(cfg.Audit.MachineLog)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, machineFile.Close)

	machine := audit.MultiSink{audit.LevelFilter{Min: level, Next: machineFile}}
	diagnostic := audit.MultiSink{audit.LogSink{Logger: log.WithComponent("audit")}}
	var debug audit.MultiSink

	if cfg.Audit.DebugLog != "" {
		debugFile, err := audit.OpenFile(cfg.Audit.DebugLog)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, debugFile.Close)
		debug = append(debug, debugFile)
	}

	if e.db != nil {
		store := audit.NewSQLiteSink(e.db, e.sessionID)
		machine = append(machine, store)
		diagnostic = append(diagnostic, store)
		debug = append(debug, store)
	}

	return &audit.Router{Machine: machine, Diagnostic: diagnostic, Debug: debug}, nil
}

// start runs the dispatch loop and the API server. The channel receives the
// first component failure; context cancellation is not reported.
func (e *engine) start(ctx context.Context) <-chan error {
	errCh := make(chan error, 2)
	go func() {
		if err := e.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatch: %w", err)
		}
	}()
	if e.polls.Len() > 0 {
		e.polls.Start(ctx)
		e.closers = append(e.closers, func() error { e.polls.Stop(); return nil })
	}
	if e.api != nil {
		go func() {
			if err := e.api.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		e.logger.Info("API server enabled", "listen", e.cfg.API.Listen)
	}
	return errCh
}

// close releases everything in reverse order of acquisition and stamps the
// session. Closing the transport unblocks the loop's reader.
func (e *engine) close(reason string) {
	e.closeOnce.Do(func() {
		if e.sessions != nil && e.sessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), sessionEndTimeout)
			if err := e.sessions.End(ctx, e.sessionID, reason); err != nil {
				e.logger.Warn("failed to end session", "error", err)
			}
			cancel()
		}
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				e.logger.Debug("close failed", "error", err)
			}
		}
		e.logger.Info("machine disconnected", "reason", reason)
	})
}

// configHash fingerprints the loaded config file. A read failure is logged
// and the session is stored without a hash.
func configHash(cfg *config.Config, logger *slog.Logger) string {
	hash, err := cfg.Fingerprint()
	if err != nil {
		logger.Warn("config fingerprint unavailable", "path", cfg.SourcePath, "error", err)
		return ""
	}
	return hash
}

func openTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Machine.Transport {
	case config.TransportSerial:
		return transport.OpenSerial(cfg.Machine.Port, cfg.Machine.BaudRate)
	case config.TransportTCP:
		return transport.DialTCP(ctx, cfg.Machine.Address)
	case config.TransportSim:
		return transport.NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Machine.Transport)
	}
}

func endpointOf(cfg *config.Config) string {
	switch cfg.Machine.Transport {
	case config.TransportTCP:
		return cfg.Machine.Address
	case config.TransportSim:
		return "sim"
	default:
		return cfg.Machine.Port
	}
}
