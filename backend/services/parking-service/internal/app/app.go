package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "easypark/backend/libs/redis"
	"easypark/backend/services/parking-service/internal/config"
	"easypark/backend/services/parking-service/internal/db"
	"easypark/backend/services/parking-service/internal/gateway"
	httpserver "easypark/backend/services/parking-service/internal/http"
	"easypark/backend/services/parking-service/internal/http/handlers"
	"easypark/backend/services/parking-service/internal/http/middleware"
	"easypark/backend/services/parking-service/internal/metrics"
	redisstore "easypark/backend/services/parking-service/internal/redis"
	"easypark/backend/services/parking-service/internal/repository"
	"easypark/backend/services/parking-service/internal/service"
)

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}

	var (
		redisClient *redis.Client
		ledger      service.DeliveryLedger
	)
	if cfg.LedgerEnabled() {
		redisClient, err = libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		ledger = redisstore.NewDeliveryLedger(redisClient, cfg.LedgerTTL())
	} else {
		logger.Info("redis address not set, callback ledger disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	txManager := repository.NewTxManager(sqlDB)
	tickets := repository.NewTicketRepository(sqlDB)
	transactions := repository.NewTransactionRepository(sqlDB)
	accounts := repository.NewAccountRepository(sqlDB)
	lots := repository.NewLotRepository(sqlDB)
	reports := repository.NewReportRepository(sqlDB)

	issuer := service.NewTicketIssuer(txManager, tickets, transactions, accounts, lots, m, logger)
	reconciler := service.NewSettlementReconciler(txManager, tickets, transactions, ledger, m, logger)
	cash := service.NewCashCheckout(txManager, tickets, transactions, accounts, reconciler)
	reporter := service.NewTicketReporter(txManager, reports, tickets, transactions, accounts, lots)

	routes := httpserver.Routes{
		Tickets:         handlers.NewTicketHandlers(issuer, cash, reporter, logger),
		Reports:         handlers.NewReportHandlers(reporter, logger),
		PaymentCallback: handlers.NewPaymentCallbackHandler(reconciler, gateway.NewVerifier(cfg.GatewayConfig()), logger),
		Health:          handlers.NewHealthHandler(sqlDB),
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	router := httpserver.NewRouter(routes, middleware.AuthMiddleware(cfg.JWT.Secret), m)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.Timeout(cfg.OperationTimeout()),
	)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
