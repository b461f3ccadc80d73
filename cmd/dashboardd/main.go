package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/praxishq/dashboard-core/internal/app/bootstrap"
	"github.com/praxishq/dashboard-core/internal/bridge"
	appconfig "github.com/praxishq/dashboard-core/internal/config"
	"github.com/praxishq/dashboard-core/internal/httpapi"
	"github.com/praxishq/dashboard-core/internal/notify"
	"github.com/praxishq/dashboard-core/internal/observability/metrics"
	"github.com/praxishq/dashboard-core/internal/realtime"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dashboard core",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	syncMetrics := metrics.NewSyncMetrics(registry)

	backendClient, err := bootstrap.BuildBackendClient(cfg, logger)
	if err != nil {
		logger.Error("backend client init failed", "error", err)
		os.Exit(1)
	}
	stores := bootstrap.BuildStores(backendClient, cfg, logger)

	redisClient := bootstrap.BuildRedisClient(context.Background(), cfg, logger, true)
	archive := bootstrap.BuildArchive(redisClient, cfg)

	alerts := notify.NewHub(50, logger)

	conn := bootstrap.BuildConnectionManager(cfg, syncMetrics, logger)
	synchronizer := realtime.NewSynchronizer(
		conn,
		stores.Chats,
		stores.Appointments,
		stores.Schedules,
		archive,
		alerts,
		syncMetrics,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SocketURL != "" {
		go conn.Run(ctx)
		go synchronizer.Run(ctx)
	} else {
		logger.Warn("SOCKET_URL not set, realtime sync disabled")
	}

	bridgeClient := bridge.NewClient(cfg.BridgeBaseURL, cfg.CommandTimeout)
	if cfg.BridgeBaseURL != "" {
		poller := bridge.NewPoller(bridgeClient, alerts, logger).WithInterval(cfg.BridgePollInterval)
		go poller.Run(ctx)
	}

	handler := httpapi.NewHandler(
		stores.Schedules,
		stores.Appointments,
		stores.Chats,
		archive,
		backendClient,
		conn,
		bridgeClient,
		alerts,
		syncMetrics,
		logger,
	).WithAckTimeout(cfg.CommandTimeout)
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:        handler,
		Logger:         logger,
		SessionSecret:  cfg.SessionJWTSecret,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("server stopped")
}
