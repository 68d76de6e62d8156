package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"support-feed-worker/internal/classifier"
	"support-feed-worker/internal/config"
	"support-feed-worker/internal/feed"
	"support-feed-worker/internal/handlers"
	"support-feed-worker/internal/marker"
	"support-feed-worker/internal/observability"
	"support-feed-worker/internal/status"
	"support-feed-worker/internal/store"
	"support-feed-worker/internal/teams"
	"support-feed-worker/internal/worker"
)

const canAssignRolesFlag = "can_assign_roles"

type App struct {
	cfg     config.Config
	log     *slog.Logger
	db      *store.Database
	markers *marker.FileStore
	worker  *worker.Worker
	status  *status.Server
}

func SetupLogger(cfg config.LogConfig) *slog.Logger {
	w := os.Stderr
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.DateTime,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if err, ok := a.Value.Any().(error); ok {
					aErr := tint.Err(err)
					aErr.Key = a.Key
					return aErr
				}
				return a
			},
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup finishes before exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		SetupLogger(config.LogConfig{Level: slog.LevelInfo})
		slog.Error("Failed to load config", "error", err)
		return 78
	}

	runID := uuid.NewString()
	log := SetupLogger(cfg.Log).With("run_id", runID)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signalCh:
			log.Info("Received termination signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdownTelemetry, err := observability.Setup(ctx, log, observability.Config{
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		ServiceName:  cfg.Observability.ServiceName,
		RunID:        runID,
	})
	if err != nil {
		log.Error("Failed to set up telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	app, err := newApp(ctx, cfg, runID, log)
	if err != nil {
		log.Error("Failed to start", "error", err)
		return 1
	}
	defer app.db.Close()

	log.Info("Starting support feed worker",
		"env", cfg.Environment,
		"feed_mode", cfg.Feed.Mode,
		"store", app.db.Driver(),
		"marker", app.markers.Path(),
	)

	if err := app.run(ctx); err != nil {
		log.Error("Died", "error", err)
		return 1
	}
	log.Info("Stopped")
	return 0
}

func newApp(ctx context.Context, cfg config.Config, runID string, log *slog.Logger) (*App, error) {
	db, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Actor:  cfg.Actor,
	})
	if err != nil {
		return nil, err
	}

	session, err := resolveSession(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	source, err := newFeed(cfg.Feed)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var details teams.Service
	if cfg.Teams.URL != "" {
		details = teams.NewClient(cfg.Teams.URL, cfg.Teams.Token, cfg.Teams.Timeout)
	} else {
		log.Warn("No team detail service configured, team events will fail")
	}

	registry := handlers.NewRegistry(handlers.Options{
		CanAssignRoles: session.CanAssignRoles,
		Teams:          details,
		CRMTeamID:      cfg.Teams.DefaultCRMTeamID,
	})

	markers := marker.NewFileStore(cfg.Marker.Path)
	w := worker.New(worker.Config{
		Feed:           source,
		Filter:         feed.Filter{Terms: classifier.Terms()},
		Markers:        markers,
		Begin:          worker.StoreBegin(db),
		Handlers:       registry,
		Session:        session,
		IdleSleep:      cfg.Poll.IdleSleep,
		MaxPages:       cfg.Poll.MaxPages,
		FlushEachEntry: cfg.Marker.FlushEachEntry,
		Logger:         log,
	})

	app := &App{cfg: cfg, log: log, db: db, markers: markers, worker: w}
	if cfg.Status.Addr != "" {
		app.status = status.New(log, w, runID)
	}
	return app, nil
}

// resolveSession reads the role-assignment flag once; a configured override
// wins over the stored flag.
func resolveSession(ctx context.Context, cfg config.Config, db *store.Database) (worker.Session, error) {
	session := worker.Session{Actor: cfg.Actor}
	if cfg.Features.CanAssignRoles != nil {
		session.CanAssignRoles = *cfg.Features.CanAssignRoles
		return session, nil
	}
	enabled, err := db.FeatureEnabled(ctx, canAssignRolesFlag)
	if err != nil {
		return session, err
	}
	session.CanAssignRoles = enabled
	return session, nil
}

func newFeed(cfg config.FeedConfig) (feed.Client, error) {
	switch cfg.Mode {
	case config.FeedModeSimulate:
		sim, err := feed.NewSimulator(cfg.SimMaxPage, cfg.SimTemperature, cfg.SimMaxLatency)
		if err != nil {
			return nil, fmt.Errorf("create simulated feed: %w", err)
		}
		return sim, nil
	default:
		return feed.NewHTTPClient(feed.HTTPConfig{
			URL:         cfg.URL,
			Token:       cfg.Token,
			PageSize:    cfg.PageSize,
			NewestFirst: cfg.NewestFirst,
			Timeout:     cfg.Timeout,
		}), nil
	}
}

// run drives the poll loop and, when configured, the status server. The loop
// ending for any reason stops the server.
func (app *App) run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		err := app.worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if app.status != nil {
		g.Go(func() error {
			app.log.Info("Status server listening", "addr", app.cfg.Status.Addr)
			return app.status.Start(app.cfg.Status.Addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return app.status.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
