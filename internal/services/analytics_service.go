package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/affilinoanvesh/customer-insights/internal/analytics"
	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// CustomerLister loads the full customer population in stable id order.
type CustomerLister interface {
	List(ctx context.Context) ([]models.Customer, error)
}

// OrderLister loads orders inside an optional inclusive date window in
// stable (date_created, id) order.
type OrderLister interface {
	ListBetween(ctx context.Context, start, end *time.Time) ([]models.Order, error)
}

// ProductLister loads the product catalog in stable id order.
type ProductLister interface {
	List(ctx context.Context) ([]models.Product, error)
}

// RFMBatchStore persists and reads back RFM score batches.
type RFMBatchStore interface {
	SaveBatch(ctx context.Context, records []models.RFMRecord) error
	LatestBatch(ctx context.Context) ([]models.RFMRecord, error)
}

// AnalyticsService produces the merged analytics report for a snapshot
// window. Snapshot loading, report caching and RFM history live here;
// the pure computation is delegated to the analytics engine. Report
// never returns an error: any upstream failure degrades to the empty
// report so one bad dependency cannot take the reporting surface down.
type AnalyticsService struct {
	customers CustomerLister
	orders    OrderLister
	products  ProductLister
	rfm       RFMBatchStore
	engine    *analytics.Engine
	cache     *redis.Client
	cacheTTL  time.Duration
	tracer    trace.Tracer
	now       func() time.Time
	logger    *zap.Logger
}

// NewAnalyticsService creates a new AnalyticsService. cache may be nil,
// which disables report caching; cacheTTL only applies when it is not.
func NewAnalyticsService(
	customers CustomerLister,
	orders OrderLister,
	products ProductLister,
	rfm RFMBatchStore,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("analytics_service")
	return &AnalyticsService{
		customers: customers,
		orders:    orders,
		products:  products,
		rfm:       rfm,
		engine:    analytics.NewEngine(logger),
		cache:     cache,
		cacheTTL:  cacheTTL,
		tracer:    otel.Tracer("customer-insights"),
		now:       time.Now,
		logger:    logger,
	}
}

// Report computes the full analytics report for orders inside the
// optional [start, end] window. The customer and product snapshots are
// always global; only orders are windowed. A snapshot fetch failure is
// logged and yields the empty report.
func (s *AnalyticsService) Report(ctx context.Context, start, end *time.Time) *analytics.Report {
	ctx, span := s.tracer.Start(ctx, "generate_report")
	defer span.End()
	span.SetAttributes(
		attribute.String("window.start", timeAttr(start)),
		attribute.String("window.end", timeAttr(end)),
	)

	now := s.now().UTC()

	cacheKey := reportCacheKey(start, end)
	if cached, ok := s.cachedReport(ctx, cacheKey); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached
	}

	customers, orders, products, err := s.loadSnapshot(ctx, start, end)
	if err != nil {
		s.logger.Error("snapshot load failed, returning empty report", zap.Error(err))
		span.RecordError(err)
		return analytics.NewEmptyReport(now)
	}

	report := s.engine.Compute(
		snapshotCustomers(customers),
		snapshotOrders(orders),
		snapshotProducts(products),
		now,
	)

	s.persistRFMBatch(ctx, report, now)
	s.storeReport(ctx, cacheKey, report)

	span.SetAttributes(
		attribute.Int("report.customer_count", report.CustomerCount),
		attribute.Int("report.order_count", report.OrderCount),
	)
	s.logger.Info("report generated",
		zap.Int("customers", report.CustomerCount),
		zap.Int("orders", report.OrderCount),
		zap.Time("generated_at", report.GeneratedAt))
	return report
}

// LatestRFM returns the most recent persisted RFM batch, empty when no
// batch has been computed yet.
func (s *AnalyticsService) LatestRFM(ctx context.Context) ([]models.RFMRecord, error) {
	records, err := s.rfm.LatestBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest rfm batch: %w", err)
	}
	return records, nil
}

// loadSnapshot fetches the three snapshot slices concurrently. Any
// single fetch error fails the whole load; the caller degrades to the
// empty report.
func (s *AnalyticsService) loadSnapshot(ctx context.Context, start, end *time.Time) ([]models.Customer, []models.Order, []models.Product, error) {
	var (
		customers []models.Customer
		orders    []models.Order
		products  []models.Product
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.customers.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to list customers: %w", err)
		}
		customers = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.orders.ListBetween(gctx, start, end)
		if err != nil {
			return fmt.Errorf("failed to list orders: %w", err)
		}
		orders = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.products.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		products = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return customers, orders, products, nil
}

// persistRFMBatch writes the run's RFM scores as one batch sharing a
// batch id and calculation date. A write failure is logged and dropped;
// the report already in hand is still served.
func (s *AnalyticsService) persistRFMBatch(ctx context.Context, report *analytics.Report, now time.Time) {
	if s.rfm == nil || report.RFM == nil || len(report.RFM.Scores) == 0 {
		return
	}
	batchID := uuid.New()
	records := make([]models.RFMRecord, 0, len(report.RFM.Scores))
	for _, score := range report.RFM.Scores {
		records = append(records, models.RFMRecord{
			BatchID:         batchID,
			CustomerID:      score.CustomerID,
			RecencyScore:    score.Recency,
			FrequencyScore:  score.Frequency,
			MonetaryScore:   score.Monetary,
			RFMScore:        score.Score,
			RFMSegment:      score.Segment,
			CalculationDate: now,
		})
	}
	if err := s.rfm.SaveBatch(ctx, records); err != nil {
		s.logger.Warn("failed to persist rfm batch",
			zap.String("batch_id", batchID.String()),
			zap.Int("records", len(records)),
			zap.Error(err))
		return
	}
	s.logger.Info("rfm batch persisted",
		zap.String("batch_id", batchID.String()),
		zap.Int("records", len(records)))
}

// cachedReport returns a previously stored report for the same window.
// Cache errors other than a plain miss are logged and treated as misses.
func (s *AnalyticsService) cachedReport(ctx context.Context, key string) (*analytics.Report, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var report analytics.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		s.logger.Warn("discarding undecodable cached report", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &report, true
}

// storeReport caches the serialized report under the window key.
func (s *AnalyticsService) storeReport(ctx context.Context, key string, report *analytics.Report) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("failed to serialize report for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// reportCacheKey encodes the order window so distinct windows never
// share a cache entry.
func reportCacheKey(start, end *time.Time) string {
	return fmt.Sprintf("report:%s:%s", timeAttr(start), timeAttr(end))
}

func timeAttr(t *time.Time) string {
	if t == nil {
		return "all"
	}
	return t.UTC().Format("2006-01-02")
}

// snapshotCustomers converts stored customer rows to the engine's
// snapshot type.
func snapshotCustomers(rows []models.Customer) []analytics.Customer {
	out := make([]analytics.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, analytics.Customer{
			ID:             row.ID,
			Email:          row.Email,
			Name:           row.Name,
			OrderCount:     row.OrderCount,
			TotalSpent:     row.TotalSpent,
			FirstOrderDate: row.FirstOrderDate,
			LastOrderDate:  row.LastOrderDate,
		})
	}
	return out
}

// snapshotOrders converts stored order rows, handing the raw line-item
// JSON through for per-order decoding inside the engine.
func snapshotOrders(rows []models.Order) []analytics.Order {
	out := make([]analytics.Order, 0, len(rows))
	for _, row := range rows {
		var lineItems any
		if len(row.LineItems) > 0 {
			lineItems = []byte(row.LineItems)
		}
		out = append(out, analytics.Order{
			ID:          row.ID,
			CustomerID:  row.CustomerID,
			DateCreated: row.DateCreated,
			Total:       row.Total,
			LineItems:   lineItems,
		})
	}
	return out
}

func snapshotProducts(rows []models.Product) []analytics.Product {
	out := make([]analytics.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, analytics.Product{ID: row.ID, Name: row.Name})
	}
	return out
}
