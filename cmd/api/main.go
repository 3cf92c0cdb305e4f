package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/app"
	"trendradar/internal/config"
	"trendradar/internal/logger"
	"trendradar/internal/scheduler"
	transporthttp "trendradar/internal/transport/http"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init pipeline")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	sched := scheduler.New(app.RefreshTimeout, log.With().Str("component", "scheduler").Logger())
	if cfg.RefreshSchedule != "" {
		if err := sched.AddJob("refresh-if-stale", cfg.RefreshSchedule, func(ctx context.Context) error {
			_, _, err := a.Orchestrator.RefreshIfStale(ctx)
			return err
		}); err != nil {
			log.Fatal().Err(err).Msg("schedule refresh")
		}
	}
	sched.Start()

	// Warm the snapshot on boot when the store is empty or stale.
	go func() {
		if err := sched.RunNow("refresh-if-stale", func(ctx context.Context) error {
			_, _, err := a.Orchestrator.RefreshIfStale(ctx)
			return err
		}); err != nil {
			log.Warn().Err(err).Msg("initial refresh failed")
		}
	}()

	server := transporthttp.NewServer(a.Orchestrator, a.Store, log.With().Str("component", "http").Logger())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withLogging(log, withCORS(server.Routes())),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("trending API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
	<-sched.Stop().Done()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		evt := log.Debug()
		if r.Method != http.MethodOptions {
			evt = log.Info()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
