package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/pkg/lifecycle"
)

// serveHTTP starts the listener in the background and registers a
// shutdown hook that drains in-flight requests within the server's
// shutdown timeout.
func serveHTTP(cfg *config.ServerConfig, handler http.Handler, lc *lifecycle.Coordinator, logger *slog.Logger) {
	logger = logger.With("system", "http")

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
		defer cancel()

		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			return
		}
		logger.Info("server shutdown complete")
	})
}
