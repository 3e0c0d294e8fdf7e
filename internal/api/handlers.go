package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/affilinoanvesh/customer-insights/internal/eventbus"
	"github.com/affilinoanvesh/customer-insights/internal/ingest"
	"github.com/affilinoanvesh/customer-insights/internal/services"
)

const dateLayout = "2006-01-02"

// Handlers contains all the API handlers with their dependencies.
type Handlers struct {
	analyticsService *services.AnalyticsService
	ingestionService *services.IngestionService
	stripeTranslator *ingest.StripeTranslator
	storefrontSyncer *ingest.StorefrontSyncer
	bus              eventbus.EventBus
	redisClient      *redis.Client
	logger           *zap.Logger
}

// NewHandlers creates a new Handlers instance. stripeTranslator,
// storefrontSyncer, bus and redisClient are optional; their endpoints
// degrade gracefully when the dependency is absent.
func NewHandlers(
	analyticsService *services.AnalyticsService,
	ingestionService *services.IngestionService,
	stripeTranslator *ingest.StripeTranslator,
	storefrontSyncer *ingest.StorefrontSyncer,
	bus eventbus.EventBus,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		analyticsService: analyticsService,
		ingestionService: ingestionService,
		stripeTranslator: stripeTranslator,
		storefrontSyncer: storefrontSyncer,
		bus:              bus,
		redisClient:      redisClient,
		logger:           logger.Named("api"),
	}
}

// GetReport returns the full analytics report. start_date and end_date
// (YYYY-MM-DD, inclusive) window the order snapshot; either may be
// omitted. Upstream failures never surface here: the service degrades
// to the structurally complete empty report.
func (h *Handlers) GetReport(c *gin.Context) {
	start, err := parseDateParam(c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be formatted YYYY-MM-DD"})
		return
	}
	end, err := parseDateParam(c.Query("end_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be formatted YYYY-MM-DD"})
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date precedes start_date"})
		return
	}

	report := h.analyticsService.Report(c.Request.Context(), start, end)
	c.JSON(http.StatusOK, report)
}

// GetLatestRFM returns the most recent persisted RFM batch.
func (h *Handlers) GetLatestRFM(c *gin.Context) {
	records, err := h.analyticsService.LatestRFM(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load latest rfm batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load latest rfm batch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(records),
		"data":  records,
	})
}

// ImportOrders ingests a JSON array of orders in one batch.
func (h *Handlers) ImportOrders(c *gin.Context) {
	var inputs []services.OrderInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON array of orders"})
		return
	}

	imported, err := h.ingestionService.ImportOrders(c.Request.Context(), inputs)
	if err != nil {
		h.logger.Error("import failed", zap.Int("imported", imported), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "import failed",
			"imported": imported,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": len(inputs),
		"imported": imported,
	})
}

// HandleStripeWebhook verifies a Stripe delivery and publishes purchase
// events onto the order stream. Replayed deliveries are acknowledged
// without re-publishing; ingestion is idempotent anyway, so the dedup
// window is an optimization, not a correctness requirement.
func (h *Handlers) HandleStripeWebhook(c *gin.Context) {
	if h.stripeTranslator == nil || h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stripe ingestion not configured"})
		return
	}
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_failed"})
		return
	}

	in, eventID, ok, err := h.stripeTranslator.VerifyAndTranslate(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("rejected stripe delivery", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "id": eventID})
		return
	}

	if h.redisClient != nil {
		dedupKey := fmt.Sprintf("processed_event:%s", eventID)
		wasSet, _ := h.redisClient.SetNX(ctx, dedupKey, "processing", 24*time.Hour).Result()
		if !wasSet {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate_ignored", "id": eventID})
			return
		}
		defer func() {
			if err != nil {
				h.redisClient.Del(ctx, dedupKey)
			}
		}()
	}

	if err = h.bus.Publish(ctx, services.OrderEventTopic, in); err != nil {
		h.logger.Error("failed to publish order event", zap.String("event_id", eventID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "id": eventID})
}

// TriggerStorefrontSync pulls orders from the storefront API. An
// optional updated_after date narrows the pull.
func (h *Handlers) TriggerStorefrontSync(c *gin.Context) {
	if h.storefrontSyncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storefront sync not configured"})
		return
	}
	updatedSince, err := parseDateParam(c.Query("updated_after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "updated_after must be formatted YYYY-MM-DD"})
		return
	}

	imported, err := h.storefrontSyncer.Sync(c.Request.Context(), updatedSince)
	if err != nil {
		h.logger.Error("storefront sync failed", zap.Int("imported", imported), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "storefront sync failed",
			"imported": imported,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
