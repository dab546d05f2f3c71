package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/pricekeeper/internal/core/api"
	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/core/config"
	"github.com/solatis/pricekeeper/internal/core/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC pricing API, admin server and lifecycle sweeper",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("admin-addr", ":9090", "admin HTTP address for /metrics and /healthz (empty disables)")
	serveCmd.Flags().String("redis-addr", "", "redis address for the competitor price cache")
	serveCmd.Flags().StringSlice("kafka-brokers", nil, "kafka brokers for rule notifications")
	serveCmd.Flags().String("inventory-url", "", "inventory service base URL")
	serveCmd.Flags().Duration("sweep-interval", time.Minute, "lifecycle sweep interval (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set PK_HMAC_SECRET environment variable)")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	service, err := api.NewPricingService(a.pricing, a.selector, a.machine, a.store,
		api.WithLogger(logger.Named("api")),
		api.WithRecorder(a.recorder),
		api.WithMaxBatchSize(cfg.API.MaxBatchSize))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.API, service, auth.NewAuthenticator(secrets, a.store), a.recorder, logger.Named("grpc"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting pricekeeper",
		zap.String("version", Version),
		zap.String("host", cfg.API.Host),
		zap.Int("port", cfg.API.Port))

	errChan := make(chan error, 3)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	var admin *server.AdminServer
	if cfg.Admin.Addr != "" {
		admin = server.NewAdminServer(cfg.Admin.Addr, server.NewAdminRouter(a.recorder.Handler(), a.db), logger.Named("admin"))
		go func() {
			if err := admin.Start(); err != nil {
				errChan <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	if cfg.Engine.SweepInterval > 0 {
		go func() {
			if err := a.sweeper.Run(ctx, cfg.Engine.SweepInterval); err != nil && ctx.Err() == nil {
				errChan <- fmt.Errorf("sweeper: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-errChan:
		logger.Error("server stopped", zap.Error(runErr))
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin shutdown", zap.Error(err))
		}
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
