// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notemirror/internal/annotation"
	"github.com/starford/notemirror/internal/api"
	"github.com/starford/notemirror/internal/backend"
	"github.com/starford/notemirror/internal/calendarsync"
	"github.com/starford/notemirror/internal/companion"
	"github.com/starford/notemirror/internal/connectivity"
	"github.com/starford/notemirror/internal/mcpserver"
	"github.com/starford/notemirror/internal/noteservice"
	"github.com/starford/notemirror/internal/projection"
	"github.com/starford/notemirror/internal/repository"
	"github.com/starford/notemirror/internal/sse"
)

// Run starts the note server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("local_path", cfg.Local.Path),
		slog.String("remote_api", cfg.Remote.APIBaseURL),
		slog.String("probe_address", cfg.Connectivity.ProbeAddress),
		slog.String("reconcile", cfg.Sync.Reconcile),
		slog.Bool("calendar", cfg.Calendar.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := app.openStack(ctx, logger)
	if err != nil {
		return err
	}
	defer st.close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	st.repo.Subscribe(broker.HandleChange)

	var (
		publisher *calendarsync.Publisher
		pub       noteservice.Publisher
	)
	if cfg.Calendar.Enabled {
		publisher, err = calendarsync.New(ctx, calendarsync.Options{
			CredentialsFile: cfg.Calendar.CredentialsFile,
			CalendarID:      cfg.Calendar.CalendarID,
			TimeZone:        cfg.Calendar.TimeZone,
		}, logger)
		if err != nil {
			return fmt.Errorf("init calendar publisher: %w", err)
		}
		pub = publisher
	}

	svc := noteservice.NewService(st.repo, st.projector, pub, cfg.App.UserID)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	st.start(gCtx, g)

	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gCtx, cfg.Calendar.Interval, svc.Events)
		})
	}

	serveHTTP(gCtx, g, httpServer, cancel, logger)

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunCompanion starts the companion write service over the remote database.
func RunCompanion(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	db, err := sql.Open("pgx", cfg.Remote.DSN)
	if err != nil {
		return fmt.Errorf("open remote database: %w", err)
	}
	defer db.Close()

	if err := companion.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure companion schema: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Companion.HTTP.Address(),
		Handler: companion.NewRouter(companion.NewStore(db), logger),
	}

	logger.Info("Companion starting...", slog.String("http_address", cfg.Companion.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	serveHTTP(gCtx, g, httpServer, cancel, logger)

	if err := g.Wait(); err != nil {
		logger.Error("Companion error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Companion stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()

	st, err := app.openStack(ctx, logger)
	if err != nil {
		return err
	}
	defer st.close()

	svc := noteservice.NewService(st.repo, st.projector, nil, app.config.App.UserID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	st.start(gCtx, g)
	g.Go(func() error {
		defer cancel()
		return mcpserver.New(svc).ServeStdio()
	})
	return g.Wait()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger installs a structured JSON logger as the process default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// stack is the storage core shared by the serve and mcp commands.
type stack struct {
	local     *backend.Local
	remote    *backend.Remote
	repo      *repository.Repository
	monitor   *connectivity.Monitor
	projector projection.Projector
}

func (a *application) openStack(ctx context.Context, logger *slog.Logger) (*stack, error) {
	cfg := a.config

	local, err := backend.OpenLocal(cfg.Local.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	remote, err := backend.OpenRemote(backend.RemoteOptions{
		DSN:        cfg.Remote.DSN,
		APIBaseURL: cfg.Remote.APIBaseURL,
		Timeout:    cfg.Remote.Timeout,
	}, logger)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("init remote store: %w", err)
	}

	repo := repository.New(local, remote,
		repository.WithLogger(logger),
		repository.WithPolicy(cfg.Sync.Policy()))

	// Serve the on-device copy until the monitor reports the remote reachable.
	if err := repo.SetConnected(ctx, false); err != nil {
		logger.Warn("initial local fetch failed", slog.String("error", err.Error()))
	}

	monitorOpts := []connectivity.Option{
		connectivity.WithInterval(cfg.Connectivity.Interval),
		connectivity.WithSettle(cfg.Connectivity.Settle),
		connectivity.WithLogger(logger),
	}
	if len(cfg.Connectivity.WatchPaths) > 0 {
		monitorOpts = append(monitorOpts, connectivity.WithWatchPaths(cfg.Connectivity.WatchPaths...))
	}

	return &stack{
		local:  local,
		remote: remote,
		repo:   repo,
		monitor: connectivity.NewMonitor(connectivity.TCPProber{
			Address: cfg.Connectivity.ProbeAddress,
			Timeout: cfg.Remote.Timeout,
		}, monitorOpts...),
		projector: projection.Projector{Extractor: &annotation.Extractor{
			Keywords: annotation.Default.Keywords,
			Location: cfg.Calendar.Location(),
		}},
	}, nil
}

// start runs the monitor and feeds its transitions to the repository.
func (s *stack) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return s.monitor.Run(ctx) })
	g.Go(func() error { return s.repo.Run(ctx, s.monitor.Transitions()) })
}

func (s *stack) close() {
	s.remote.Close()
	s.local.Close()
}

// serveHTTP runs srv until a signal arrives or ctx ends, then shuts it
// down and calls stop so sibling goroutines exit too.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, stop context.CancelFunc, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		defer stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
