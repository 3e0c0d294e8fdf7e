package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/config"
	"github.com/affilinoanvesh/customer-insights/internal/eventbus"
	"github.com/affilinoanvesh/customer-insights/internal/ingest"
	"github.com/affilinoanvesh/customer-insights/internal/models"
	"github.com/affilinoanvesh/customer-insights/internal/services"
	"github.com/affilinoanvesh/customer-insights/internal/store"
)

const testWebhookSecret = "whsec_test"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type capturedEvent struct {
	topic string
	event interface{}
}

// fakeBus records publishes; subscriptions are irrelevant to handler tests.
type fakeBus struct {
	events []capturedEvent
	err    error
}

func (b *fakeBus) Publish(ctx context.Context, topic string, event interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, capturedEvent{topic: topic, event: event})
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, topic string, handler eventbus.EventHandler) (eventbus.Subscription, error) {
	return nil, nil
}

func (b *fakeBus) Unsubscribe(subscription eventbus.Subscription) error { return nil }

func (b *fakeBus) Close() error { return nil }

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to create SQLite in-memory database")

	err = db.AutoMigrate(&models.Customer{}, &models.Order{}, &models.Product{}, &models.RFMRecord{})
	require.NoError(t, err)

	return db
}

func newTestRouter(t *testing.T, bus eventbus.EventBus) (*gin.Engine, *gorm.DB) {
	db := setupTestDB(t)
	customers := store.NewCustomerStore(db, nil)
	orders := store.NewOrderStore(db, nil)
	products := store.NewProductStore(db, nil)
	rfm := store.NewRFMStore(db, nil)

	analyticsService := services.NewAnalyticsService(customers, orders, products, rfm, nil, 0, nil)
	ingestionService := services.NewIngestionService(orders, customers, products, bus, nil)
	translator := ingest.NewStripeTranslator(testWebhookSecret, nil)

	handlers := NewHandlers(analyticsService, ingestionService, translator, nil, bus, nil, nil)
	cfg := &config.Config{Server: config.ServerConfig{RateLimitRPS: 1000, RateLimitBurst: 1000}}
	return NewRouter(handlers, cfg), db
}

func doRequest(router *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func stripeSignature(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestGetReportEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	importBody := []byte(`[
		{"id": "o1", "customer_id": "c1", "date_created": "2024-05-01T10:00:00Z", "total": "10.50"},
		{"id": "o2", "customer_id": "c1", "date_created": "2024-06-01T10:00:00Z", "total": 20}
	]`)
	w := doRequest(router, http.MethodPost, "/api/v1/orders/import", importBody, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/analytics/report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.EqualValues(t, 1, report["customer_count"])
	assert.EqualValues(t, 2, report["order_count"])
	for _, section := range []string{"segmentation", "rfm", "cohorts", "purchase_frequency", "product_affinity", "order_timing"} {
		assert.Contains(t, report, section)
	}
}

func TestGetReportEndpointWindow(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	importBody := []byte(`[
		{"id": "o1", "customer_id": "c1", "date_created": "2024-05-01T10:00:00Z", "total": 10},
		{"id": "o2", "customer_id": "c1", "date_created": "2024-06-01T10:00:00Z", "total": 20}
	]`)
	w := doRequest(router, http.MethodPost, "/api/v1/orders/import", importBody, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/analytics/report?start_date=2024-06-01&end_date=2024-06-30", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.EqualValues(t, 1, report["order_count"])
}

func TestGetReportEndpointRejectsBadDates(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	w := doRequest(router, http.MethodGet, "/api/v1/analytics/report?start_date=June+1st", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/analytics/report?start_date=2024-06-30&end_date=2024-06-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "precedes")
}

func TestGetLatestRFMEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	w := doRequest(router, http.MethodGet, "/api/v1/analytics/rfm/latest", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp["count"])

	// Generating a report persists an RFM batch.
	importBody := []byte(`[{"id": "o1", "customer_id": "c1", "date_created": "2024-06-01T10:00:00Z", "total": 10}]`)
	w = doRequest(router, http.MethodPost, "/api/v1/orders/import", importBody, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(router, http.MethodGet, "/api/v1/analytics/report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/analytics/rfm/latest", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["count"])
}

func TestImportOrdersEndpoint(t *testing.T) {
	router, db := newTestRouter(t, &fakeBus{})

	body := []byte(`[
		{"id": 101, "customer_id": "c1", "date_created": "2024-06-01T10:00:00Z", "total": "10.50"},
		{"id": "o2", "customer_id": "c1", "total": 20},
		{"customer_id": "c1", "total": 99}
	]`)
	w := doRequest(router, http.MethodPost, "/api/v1/orders/import", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp["received"])
	assert.EqualValues(t, 2, resp["imported"])

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 2, orderCount)
}

func TestImportOrdersEndpointRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	w := doRequest(router, http.MethodPost, "/api/v1/orders/import", []byte(`{"not": "an array"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookPublishesOrder(t *testing.T) {
	bus := &fakeBus{}
	router, _ := newTestRouter(t, bus)

	created := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC).Unix()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"created": %d,
			"amount_total": 4990,
			"customer": "cus_123"
		}}
	}`, created, created))

	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": stripeSignature(payload, testWebhookSecret, time.Now()),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queued")

	require.Len(t, bus.events, 1)
	assert.Equal(t, services.OrderEventTopic, bus.events[0].topic)
	published, ok := bus.events[0].event.(services.OrderInput)
	require.True(t, ok)
	assert.Equal(t, "cs_test_1", published.ID)
	assert.Equal(t, "cus_123", published.CustomerID)
	assert.Equal(t, 49.9, published.Total)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	bus := &fakeBus{}
	router, _ := newTestRouter(t, bus)

	payload := []byte(`{"id": "evt_1", "type": "checkout.session.completed", "data": {"object": {}}}`)
	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": stripeSignature(payload, "whsec_wrong", time.Now()),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, bus.events)
}

func TestStripeWebhookIgnoresUnrelatedEvents(t *testing.T) {
	bus := &fakeBus{}
	router, _ := newTestRouter(t, bus)

	payload := []byte(`{"id": "evt_2", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`)
	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": stripeSignature(payload, testWebhookSecret, time.Now()),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, bus.events)
}

func TestStorefrontSyncUnconfigured(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBus{})

	w := doRequest(router, http.MethodPost, "/api/v1/storefront/sync", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitExhaustion(t *testing.T) {
	db := setupTestDB(t)
	customers := store.NewCustomerStore(db, nil)
	orders := store.NewOrderStore(db, nil)
	products := store.NewProductStore(db, nil)
	rfm := store.NewRFMStore(db, nil)
	analyticsService := services.NewAnalyticsService(customers, orders, products, rfm, nil, 0, nil)
	ingestionService := services.NewIngestionService(orders, customers, products, nil, nil)

	handlers := NewHandlers(analyticsService, ingestionService, nil, nil, nil, nil, nil)
	cfg := &config.Config{Server: config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}}
	router := NewRouter(handlers, cfg)

	w := doRequest(router, http.MethodGet, "/api/v1/analytics/rfm/latest", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/analytics/rfm/latest", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health probes bypass the limiter.
	w = doRequest(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
