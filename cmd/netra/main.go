// cmd/netra/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/config"
	"github.com/netrahq/netra/internal/connectivity"
	"github.com/netrahq/netra/internal/database"
	"github.com/netrahq/netra/internal/startup"
)

func main() {
	// Create logger
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	// Create config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	master := connectivity.NewMaster(cfg, logger)

	// Wire the startup context from whatever the config configured.
	// Nil fields mean the capability is absent and its checks skip.
	sctx := &startup.Context{MockMode: cfg.MockMode()}
	if pg, ok := master.Manager("postgres").(*database.Postgres); ok {
		sctx.DB = pg
		sctx.Bootstrap = pg
	}
	if r := master.Manager("redis"); r != nil {
		sctx.Redis = r
	}
	if ch := master.Manager("clickhouse"); ch != nil {
		sctx.ClickHouse = ch
	}

	// Analytics writes degrade to a silent drop when the store is down;
	// losing usage events is preferable to failing the request.
	master.Degradation().RegisterFallback("record_usage_event",
		func(ctx context.Context, kwargs map[string]any) (any, error) {
			logger.Debug("usage event dropped, analytics degraded")
			return nil, nil
		}, []string{"clickhouse"}, 0)

	ctx := context.Background()
	report, err := master.InitializeAllDatabaseSystems(ctx, sctx)
	if err != nil {
		logger.Fatal("startup aborted", zap.Error(err))
	}
	if !report.Success {
		logger.Warn("starting with degraded connectivity",
			zap.String("error", report.Error),
			zap.Any("phases", report.Phases))
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := master.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.ServiceLevel == "no_service" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Error("failed to encode health response", zap.Error(err))
		}
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
		master.ShutdownAllSystems(shutdownCtx)
		os.Exit(0)
	}()

	logger.Info("netra connectivity service started",
		zap.Int("port", cfg.MetricsPort),
		zap.String("environment", cfg.Environment),
		zap.String("service_level", master.HealthCheck(ctx).ServiceLevel),
		zap.Bool("analytics_mock", report.AnalyticsMock))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
