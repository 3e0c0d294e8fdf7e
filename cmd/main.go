package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/api"
	"github.com/affilinoanvesh/customer-insights/internal/config"
	"github.com/affilinoanvesh/customer-insights/internal/database"
	"github.com/affilinoanvesh/customer-insights/internal/eventbus"
	"github.com/affilinoanvesh/customer-insights/internal/ingest"
	"github.com/affilinoanvesh/customer-insights/internal/services"
	"github.com/affilinoanvesh/customer-insights/internal/store"
)

func main() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Provide(
			loadConfig,
			initLogger,
			initDatabase,
			initRedis,
			newEventBus,
			store.NewCustomerStore,
			store.NewOrderStore,
			store.NewProductStore,
			store.NewRFMStore,
			newAnalyticsService,
			newIngestionService,
			newStripeTranslator,
			newStorefrontSyncer,
			newHandlers,
			api.NewRouter,
		),
		fx.Invoke(startIngestion, startServer),
		fx.StopTimeout(30*time.Second),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal("Failed to start customer-insights", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down customer-insights...")
	if err := app.Stop(context.Background()); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}

func loadConfig() (*config.Config, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	return config.Get(), nil
}

func initLogger(cfg *config.Config) *zap.Logger {
	var logLevel zap.AtomicLevel
	switch cfg.Log.Level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = logLevel
	logger, _ := zapConfig.Build()
	return logger
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newEventBus(client *redis.Client, logger *zap.Logger) (eventbus.EventBus, error) {
	return eventbus.NewRedisEventBus(client, logger)
}

func newAnalyticsService(
	customers *store.CustomerStore,
	orders *store.OrderStore,
	products *store.ProductStore,
	rfm *store.RFMStore,
	client *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *services.AnalyticsService {
	return services.NewAnalyticsService(customers, orders, products, rfm, client, cfg.Analytics.ReportCacheTTL, logger)
}

func newIngestionService(
	orders *store.OrderStore,
	customers *store.CustomerStore,
	products *store.ProductStore,
	bus eventbus.EventBus,
	logger *zap.Logger,
) *services.IngestionService {
	return services.NewIngestionService(orders, customers, products, bus, logger)
}

func newStripeTranslator(cfg *config.Config, logger *zap.Logger) *ingest.StripeTranslator {
	return ingest.NewStripeTranslator(cfg.Stripe.WebhookSecret, logger)
}

// newStorefrontSyncer returns nil when no storefront is configured; the
// sync endpoint reports itself unavailable in that case.
func newStorefrontSyncer(cfg *config.Config, ingestion *services.IngestionService, logger *zap.Logger) *ingest.StorefrontSyncer {
	if cfg.Storefront.BaseURL == "" {
		return nil
	}
	client := ingest.NewStorefrontClient(cfg.Storefront, logger)
	return ingest.NewStorefrontSyncer(client, ingestion, logger)
}

func newHandlers(
	analyticsService *services.AnalyticsService,
	ingestionService *services.IngestionService,
	translator *ingest.StripeTranslator,
	syncer *ingest.StorefrontSyncer,
	bus eventbus.EventBus,
	client *redis.Client,
	logger *zap.Logger,
) *api.Handlers {
	return api.NewHandlers(analyticsService, ingestionService, translator, syncer, bus, client, logger)
}

// startIngestion subscribes the order-stream consumer. The subscription
// must outlive the start hook, so it runs on a background context.
func startIngestion(lc fx.Lifecycle, ingestion *services.IngestionService, bus eventbus.EventBus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting order stream consumer...")
			return ingestion.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping order stream consumer...")
			if err := ingestion.Stop(); err != nil {
				logger.Warn("failed to unsubscribe order consumer", zap.Error(err))
			}
			return bus.Close()
		},
	})
}

func startServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Config, logger *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			return srv.Shutdown(ctx)
		},
	})
}
