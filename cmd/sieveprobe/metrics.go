package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/migadu/sieveconn/config"
	"github.com/migadu/sieveconn/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newMetricsRouter(path string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler()).Methods("GET")
	return router
}

func startMetricsServer(ctx context.Context, cfg config.MetricsConfig) {
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMetricsRouter(cfg.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down metrics server", "error", err)
		}
	}()

	logger.Info("Serving metrics", "addr", cfg.Addr, "path", cfg.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", "error", err)
	}
}
