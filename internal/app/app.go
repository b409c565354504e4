package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/api"
	"github.com/greyfinance/wallet-ledger/internal/api/middleware"
	"github.com/greyfinance/wallet-ledger/internal/config"
	"github.com/greyfinance/wallet-ledger/internal/fx"
	"github.com/greyfinance/wallet-ledger/internal/gateway"
	"github.com/greyfinance/wallet-ledger/internal/idempotency"
	"github.com/greyfinance/wallet-ledger/internal/observability"
	"github.com/greyfinance/wallet-ledger/internal/service"
	"github.com/greyfinance/wallet-ledger/internal/store"
	"github.com/greyfinance/wallet-ledger/internal/worker"
)

// Run bootstraps the HTTP server and audit worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)

	processor := gateway.New(gateway.Config{
		Environment:  cfg.PayPalEnvironment,
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		WebhookID:    cfg.PayPalWebhookID,
	})

	rates := fx.NewChain(fx.ChainConfig{
		APIKey:       cfg.FXAPIKey,
		PrimaryURL:   cfg.FXPrimaryURL,
		SecondaryURL: cfg.FXSecondaryURL,
		TertiaryURL:  cfg.FXTertiaryURL,
	})

	ledgerSvc := service.NewLedgerService(st, cfg.BaseCurrency)
	checkoutSvc := service.NewCheckoutService(processor, rates, ledgerSvc)
	webhookSvc := service.NewWebhookService(processor)

	auditSvc := service.NewAuditService(st)
	auditWorker := worker.NewAuditWorker(auditSvc).WithInterval(cfg.AuditInterval)
	stopWorker := auditWorker.Run(ctx)
	logger.Info("audit worker started", zap.Duration("interval", cfg.AuditInterval))

	router := api.NewRouter(cfg, logger, st, ledgerSvc, checkoutSvc, webhookSvc, rates, idemStore, redisClient)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping audit worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
