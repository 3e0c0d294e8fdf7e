package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/affilinoanvesh/customer-insights/internal/config"
)

// NewRouter wires the HTTP surface. Health stays outside the rate
// limiter so orchestrator probes are never throttled.
func NewRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "customer-insights",
			"timestamp": time.Now().UTC(),
		})
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(RateLimit(limiter))
	{
		analyticsGroup := apiV1.Group("/analytics")
		{
			analyticsGroup.GET("/report", handlers.GetReport)
			analyticsGroup.GET("/rfm/latest", handlers.GetLatestRFM)
		}

		ordersGroup := apiV1.Group("/orders")
		{
			ordersGroup.POST("/import", handlers.ImportOrders)
		}

		webhookGroup := apiV1.Group("/webhooks")
		{
			webhookGroup.POST("/stripe", handlers.HandleStripeWebhook)
		}

		storefrontGroup := apiV1.Group("/storefront")
		{
			storefrontGroup.POST("/sync", handlers.TriggerStorefrontSync)
		}
	}

	return router
}
