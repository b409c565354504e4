package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/api/handler"
	"github.com/greyfinance/wallet-ledger/internal/api/middleware"
	"github.com/greyfinance/wallet-ledger/internal/api/spec"
	"github.com/greyfinance/wallet-ledger/internal/config"
	"github.com/greyfinance/wallet-ledger/internal/fx"
	"github.com/greyfinance/wallet-ledger/internal/idempotency"
	"github.com/greyfinance/wallet-ledger/internal/service"
	"github.com/greyfinance/wallet-ledger/internal/store"
)

// Router assembles the HTTP surface from its service dependencies.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	ledger    *service.LedgerService
	checkout  *service.CheckoutService
	webhooks  *service.WebhookService
	rates     *fx.Resolver
	idemStore *idempotency.Store
	redis     *redis.Client
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	st store.Store,
	ledger *service.LedgerService,
	checkout *service.CheckoutService,
	webhooks *service.WebhookService,
	rates *fx.Resolver,
	idemStore *idempotency.Store,
	redisClient *redis.Client,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		ledger:    ledger,
		checkout:  checkout,
		webhooks:  webhooks,
		rates:     rates,
		idemStore: idemStore,
		redis:     redisClient,
	}
}

// Routes builds the chi router with the full middleware stack.
func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	walletHandler := handler.NewWalletHandler(api.ledger)
	checkoutHandler := handler.NewCheckoutHandler(api.checkout)
	fxHandler := handler.NewFXHandler(api.rates, api.ledger)
	webhookHandler := handler.NewWebhookHandler(api.webhooks)
	healthHandler := handler.NewHealthHandler(api.store, redisPinger{api.redis})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/healthz", healthHandler.Healthz)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
		r.Post("/v1/webhooks/paypal", webhookHandler.Receive)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/wallet/balance", walletHandler.GetBalance)
		r.Get("/v1/wallet/transactions", walletHandler.ListTransactions)

		r.Post("/v1/orders", checkoutHandler.CreateOrder)
		r.Post("/v1/orders/{id}/capture", checkoutHandler.CaptureOrder)

		r.Post("/v1/fx/convert", fxHandler.Convert)

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/transfers", walletHandler.Transfer)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
				Post("/v1/admin/adjust", walletHandler.AdminAdjust)
		})
	})

	return r
}

// redisPinger adapts the redis client to the health handler's Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Ping(ctx).Err()
}
