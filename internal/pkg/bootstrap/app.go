// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/tracing"
)

// Worker is a long-running component. Run must return once ctx is done and
// its in-flight work has finished.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// AppInfo describes one service process.
type AppInfo struct {
	ServiceName      string
	Config           *Config
	RegisterHandlers func(mux *http.ServeMux)
	Workers          []Worker
	// Closers run after the workers and the HTTP server stop, in reverse order.
	Closers []func(ctx context.Context) error
}

// StartService runs the HTTP server and the workers until SIGINT/SIGTERM or
// until a worker fails, then shuts everything down in order.
func StartService(info AppInfo) error {
	cfg := info.Config
	if cfg == nil {
		cfg = GetCurrentConfig()
	}
	log := logger.Ctx(context.Background())

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}
	server := &http.Server{Addr: cfg.App.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", server.Addr).Msg("http server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range info.Workers {
		w := w
		g.Go(func() error {
			log.Info().Str("worker", w.Name()).Msg("✅ worker started")
			err := w.Run(gctx)
			log.Info().Str("worker", w.Name()).Msg("🛑 worker stopped")
			return err
		})
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("worker failed, shutting down")
	} else {
		runErr = nil
	}
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdown(shutdownCtx, server, info.Closers, tp)

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return runErr
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the HTTP server before closing the dependencies its
// handlers use. The tracer goes last so shutdown spans are still exported.
func shutdown(ctx context.Context, server shutdowner, closers []func(ctx context.Context) error, tp shutdowner) {
	log := logger.Ctx(ctx)
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			log.Error().Err(err).Msg("error during cleanup")
		}
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}
}
