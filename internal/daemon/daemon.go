package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/server"
	"github.com/Aman-CERP/docindex/internal/telemetry"
	"github.com/Aman-CERP/docindex/internal/watcher"
)

// Daemon is the long-running docindex service.
type Daemon struct {
	app     *App
	cfg     *config.Config
	logger  *slog.Logger
	lock    *Lock
	pid     *PIDFile
	server  *server.Server
	watcher *watcher.Watcher
}

// New takes the data directory lock and builds every component. Close
// must be called if Run is not.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lock := NewLock(cfg.DataDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	app, err := Open(ctx, cfg, logger)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	d := &Daemon{
		app:    app,
		cfg:    cfg,
		logger: logger,
		lock:   lock,
		pid:    NewPIDFile(cfg.DataDir),
	}
	d.server = server.New(server.Deps{
		Store:   app.Store,
		Engine:  app.Engine,
		Poller:  app.Poller,
		Logger:  logger.With(slog.String("component", "http")),
		Metrics: telemetry.New(telemetry.DefaultConfig()),
	}, server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if cfg.Watch.Enabled {
		roots := make(map[string]string, len(cfg.Categories))
		for name, c := range cfg.Categories {
			roots[name] = c.Path
		}
		d.watcher = watcher.New(roots, app.Poller, watcher.Options{DebounceWindow: cfg.Watch.Debounce},
			logger.With(slog.String("component", "watcher")))
	}
	return d, nil
}

// App returns the wired components.
func (d *Daemon) App() *App {
	return d.app
}

// Server returns the HTTP server.
func (d *Daemon) Server() *server.Server {
	return d.server
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the HTTP
// server fails. It always shuts everything down before returning.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.run(ctx, nil)
}

// run is Run without signal handling. ready, if set, is called once the
// server is listening.
func (d *Daemon) run(ctx context.Context, ready func()) (err error) {
	defer func() {
		err = errors.Join(err, d.Close())
	}()

	if err := d.pid.Write(); err != nil {
		return err
	}
	if err := d.server.Start(); err != nil {
		return err
	}

	d.app.Poller.Start(ctx)
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			// Polling still converges; the watcher only shortens the delay.
			d.logger.Warn("file watching disabled", slog.String("error", err.Error()))
			d.watcher = nil
		}
	}

	d.logger.Info("docindex started",
		slog.String("addr", d.server.Addr()),
		slog.Int("categories", len(d.cfg.Categories)),
		slog.Int("pid", os.Getpid()))
	if ready != nil {
		ready()
	}

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
		return nil
	case serveErr, ok := <-d.server.Err():
		if ok {
			return serveErr
		}
		return nil
	}
}

// Close shuts down in dependency order: server, watcher, poller, store.
// It is safe to call more than once.
func (d *Daemon) Close() error {
	var errs []error
	if d.server != nil {
		errs = append(errs, d.server.Stop(context.Background()))
		d.server = nil
	}
	if d.watcher != nil {
		errs = append(errs, d.watcher.Stop())
		d.watcher = nil
	}
	if d.app != nil {
		errs = append(errs, d.app.Close())
		d.app = nil
	}
	errs = append(errs, d.pid.Remove(), d.lock.Release())
	return errors.Join(errs...)
}
