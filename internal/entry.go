// Package internal wires configuration, the layer store and the service into
// the long-running server and the one-shot batch commands.
package internal

import (
	"context"
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/USEPA-clone/nsink/internal/api"
	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/sse"
	"github.com/USEPA-clone/nsink/internal/store"
	"github.com/USEPA-clone/nsink/internal/watch"
)

func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, apply := range opts {
		apply(app)
	}
	if app.config == nil {
		return nil, nil, errors.New("nsink: a configuration is required")
	}
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{Level: app.config.App.LogLevel}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// openService opens the layer store and builds a service over it. The caller
// closes the returned store.
func (a *application) openService(logger *slog.Logger, events service.Publisher) (*service.Service, *store.DB, error) {
	cfg := a.config
	loading, err := cfg.Sampling.Loading()
	if err != nil {
		return nil, nil, fmt.Errorf("load loading table: %w", err)
	}

	db, err := store.Open(cfg.Data.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	svc := service.New(db, service.Options{
		Removal:  cfg.Removal.Params(),
		Trace:    cfg.Trace.Options(),
		Sampling: cfg.Sampling.Options(),
		Loading:  loading,
		Logger:   logger,
		Events:   events,
	})
	return svc, db, nil
}

// loadInitial builds the first model. An empty store is not an error for
// long-running modes: the model appears after the first import.
func loadInitial(ctx context.Context, svc *service.Service, logger *slog.Logger) {
	if _, err := svc.Reload(ctx); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("layer store is empty; waiting for an import")
			return
		}
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}
}

// Run serves the REST API, SSE stream and metrics until ctx is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger.Info("nsink starting",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_path", cfg.Data.Path),
		slog.Bool("watch", cfg.Data.Watch),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(sse.DefaultProgressThrottle)
	defer broker.Close()

	svc, db, err := app.openService(logger, broker)
	if err != nil {
		return err
	}
	defer db.Close()
	loadInitial(ctx, svc, logger)

	srv := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           app.router(svc, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Data.Watch {
		g.Go(func() error {
			return watch.Watch(gCtx, cfg.Data.Path, watch.DefaultDebounce, logger, svc.ReloadOrLog)
		})
	}
	g.Go(func() error {
		logger.Info("http listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down", slog.String("cause", context.Cause(gCtx).Error()))
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("http shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("nsink stopped with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("nsink stopped")
	return nil
}

const shutdownTimeout = 10 * time.Second

// router mounts health, metrics and the API. Health and metrics stay outside
// the auth group.
func (a *application) router(svc *service.Service, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health/live", status(http.StatusOK, "ok"))
	r.Get("/health/ready", readyHandler(svc))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/api", api.NewRouter(svc, a.config.Auth.AuthEnabled(), a.config.Auth.Token, broker))
	return r
}

func status(code int, msg string) http.HandlerFunc {
	body := []byte(`{"status":"` + msg + `"}`)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(body)
	}
}

// readyHandler reports 503 until a dataset is loaded.
func readyHandler(svc *service.Service) http.HandlerFunc {
	ok, waiting := status(http.StatusOK, "ok"), status(http.StatusServiceUnavailable, "no dataset loaded")
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			ok(w, r)
			return
		}
		waiting(w, r)
	}
}
