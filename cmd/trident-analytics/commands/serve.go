package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tridentsec/trident-analytics/internal/api"
	"github.com/tridentsec/trident-analytics/internal/metrics"
	"github.com/tridentsec/trident-analytics/internal/services"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler with the HTTP, gRPC health and metrics listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			logger.Info("starting trident-analytics",
				slog.String("http", cfg.Server.HTTPAddress),
				slog.String("grpc", cfg.Server.GRPCAddress),
				slog.String("backend", cfg.Backend.BaseURL),
				slog.Bool("auto_refresh", cfg.Refresh.Enabled),
				slog.Duration("interval", cfg.Refresh.Interval),
			)

			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return err
			}

			shutdownTracing, err := utils.InitTracing(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracing(context.Background()) }()

			comps, err := buildComponents(cfg, logger, true)
			if err != nil {
				return err
			}
			defer comps.Close()

			serviceOpts := services.Options{
				AutoRefresh: cfg.Refresh.Enabled,
				Interval:    cfg.Refresh.Interval,
				AlertLimit:  cfg.Backend.AlertLimit,
				Retention:   cfg.History.Retention,
				Invalidator: comps.client,
			}
			if comps.history != nil {
				serviceOpts.History = comps.history
			}
			service := services.NewAnalyticsService(logger, comps.analyzer, serviceOpts)

			grpcServer, err := api.NewServer(cfg.Server, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if comps.fileTokens != nil {
				go func() {
					if err := comps.fileTokens.Watch(ctx); err != nil {
						logger.Warn("token watcher stopped", slog.Any("error", err))
					}
				}()
			}

			updates, unsubscribe := service.Subscribe()
			defer unsubscribe()
			go grpcServer.TrackSnapshots(ctx, nil, updates)

			var metricsServer *http.Server
			if cfg.Server.MetricsAddress != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer = &http.Server{
					Addr:         cfg.Server.MetricsAddress,
					Handler:      mux,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 15 * time.Second,
				}
				go func() {
					logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server exited", slog.Any("error", err))
						stop()
					}
				}()
			}

			httpServer := &http.Server{
				Addr:              cfg.Server.HTTPAddress,
				Handler:           api.NewRouter(logger, service),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server exited", slog.Any("error", err))
					stop()
				}
			}()

			go func() {
				if serveErr := grpcServer.Start(); serveErr != nil {
					logger.Error("gRPC server exited", slog.Any("error", serveErr))
					stop()
				}
			}()

			service.Start(ctx)

			<-ctx.Done()
			logger.Info("shutdown signal received")
			service.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("http server shutdown", slog.Any("error", err))
			}
			grpcServer.Shutdown(shutdownCtx)

			if metricsServer != nil {
				metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
				if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("metrics server shutdown", slog.Any("error", err))
				}
				cancelMetrics()
			}

			logger.Info("trident-analytics stopped")
			return nil
		},
	}
}
