package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/analytics"
	"github.com/affilinoanvesh/customer-insights/internal/models"
	"github.com/affilinoanvesh/customer-insights/internal/store"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// setupTestDB creates a SQLite in-memory database with the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to create SQLite in-memory database")

	err = db.AutoMigrate(&models.Customer{}, &models.Order{}, &models.Product{}, &models.RFMRecord{})
	require.NoError(t, err)

	return db
}

// setupFailingDB returns a gorm handle whose every snapshot query fails.
func setupFailingDB(t *testing.T) *gorm.DB {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.MatchExpectationsInOrder(false)
	errDown := errors.New("connection refused")
	mock.ExpectQuery(`SELECT (.+) FROM "customers"`).WillReturnError(errDown)
	mock.ExpectQuery(`SELECT (.+) FROM "orders"`).WillReturnError(errDown)
	mock.ExpectQuery(`SELECT (.+) FROM "products"`).WillReturnError(errDown)
	mock.ExpectQuery(`SELECT (.+) FROM "rfm_records"`).WillReturnError(errDown)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB
}

func newTestAnalyticsService(db *gorm.DB) *AnalyticsService {
	svc := NewAnalyticsService(
		store.NewCustomerStore(db, nil),
		store.NewOrderStore(db, nil),
		store.NewProductStore(db, nil),
		store.NewRFMStore(db, nil),
		nil, 0, nil,
	)
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedSnapshot(t *testing.T, db *gorm.DB) {
	ctx := context.Background()
	customers := store.NewCustomerStore(db, nil)
	orders := store.NewOrderStore(db, nil)
	products := store.NewProductStore(db, nil)

	require.NoError(t, customers.Upsert(ctx, &models.Customer{ID: "c1", Email: "c1@example.com"}))
	require.NoError(t, customers.Upsert(ctx, &models.Customer{ID: "c2", Email: "c2@example.com"}))

	pair := datatypes.JSON(`[{"product_id":"p1","quantity":1,"price":10},{"product_id":"p2","quantity":2,"price":20}]`)
	rows := []models.Order{
		{ID: "o1", CustomerID: "c1", DateCreated: tp(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)), Total: 30, LineItems: pair},
		{ID: "o2", CustomerID: "c1", DateCreated: tp(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)), Total: 45.5, LineItems: pair},
		{ID: "o3", CustomerID: "c1", DateCreated: tp(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)), Total: 20},
		{ID: "o4", CustomerID: "c2", DateCreated: tp(time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)), Total: 99.9},
	}
	for i := range rows {
		require.NoError(t, orders.Upsert(ctx, &rows[i]))
	}
	require.NoError(t, customers.RefreshAggregates(ctx, "c1"))
	require.NoError(t, customers.RefreshAggregates(ctx, "c2"))

	require.NoError(t, products.Upsert(ctx, &models.Product{ID: "p1", Name: "Widget"}))
	require.NoError(t, products.Upsert(ctx, &models.Product{ID: "p2", Name: "Gadget"}))
}

func tp(t time.Time) *time.Time { return &t }

func TestAnalyticsServiceReport(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedSnapshot(t, db)
	svc := newTestAnalyticsService(db)

	report := svc.Report(ctx, nil, nil)

	require.NotNil(t, report)
	assert.Equal(t, testNow, report.GeneratedAt)
	assert.Equal(t, 2, report.CustomerCount)
	assert.Equal(t, 4, report.OrderCount)

	// c1: 3 orders, last 5 days ago -> loyal. c2: 1 order 3 days ago,
	// first order inside 30 days -> new.
	segments := map[string]int{}
	for _, seg := range report.Segmentation.Segments {
		segments[seg.Segment] = seg.Count
	}
	assert.Equal(t, 1, segments["loyal"])
	assert.Equal(t, 1, segments["new"])
	assert.Equal(t, 2, report.Segmentation.TotalSegmented)

	assert.Equal(t, 2, report.RFM.ScoredCustomers)

	// Both o1 and o2 carry the p1/p2 basket.
	require.Len(t, report.Affinity.Pairs, 1)
	pairRow := report.Affinity.Pairs[0]
	assert.Equal(t, "p1", pairRow.ProductA)
	assert.Equal(t, "p2", pairRow.ProductB)
	assert.Equal(t, "Widget", pairRow.ProductAName)
	assert.Equal(t, "Gadget", pairRow.ProductBName)
	assert.Equal(t, 2, pairRow.Count)

	// c1's two gaps: Mar 15 -> May 1 and May 1 -> Jun 10.
	assert.Equal(t, 2, report.Frequency.IntervalCount)

	assert.Equal(t, 4, report.Timing.TotalOrders)
	require.Len(t, report.Cohorts.Cohorts, 2)
	assert.Equal(t, "2024-03", report.Cohorts.Cohorts[0].Month)
	assert.Equal(t, "2024-06", report.Cohorts.Cohorts[1].Month)
}

func TestAnalyticsServiceReportPersistsRFMBatch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedSnapshot(t, db)
	svc := newTestAnalyticsService(db)

	report := svc.Report(ctx, nil, nil)
	require.Equal(t, 2, report.RFM.ScoredCustomers)

	records, err := store.NewRFMStore(db, nil).LatestBatch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].BatchID, records[1].BatchID)
	assert.Equal(t, "c1", records[0].CustomerID)
	assert.Equal(t, "c2", records[1].CustomerID)
	for _, rec := range records {
		assert.WithinDuration(t, testNow, rec.CalculationDate, time.Second)
		assert.GreaterOrEqual(t, rec.RFMScore, 111)
		assert.LessOrEqual(t, rec.RFMScore, 555)
		assert.NotEmpty(t, rec.RFMSegment)
	}
}

func TestAnalyticsServiceReportWindowLimitsOrders(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedSnapshot(t, db)
	svc := newTestAnalyticsService(db)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	report := svc.Report(ctx, &start, &end)

	// Customers stay global; only the order snapshot is windowed.
	assert.Equal(t, 2, report.CustomerCount)
	assert.Equal(t, 2, report.OrderCount)
	assert.Equal(t, 2, report.Timing.TotalOrders)
}

func TestAnalyticsServiceEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestAnalyticsService(db)

	report := svc.Report(ctx, nil, nil)

	assert.Equal(t, analytics.NewEmptyReport(testNow), report)

	records, err := store.NewRFMStore(db, nil).LatestBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyticsServiceSnapshotFailureReturnsEmptyReport(t *testing.T) {
	ctx := context.Background()
	db := setupFailingDB(t)
	svc := newTestAnalyticsService(db)

	report := svc.Report(ctx, nil, nil)

	assert.Equal(t, analytics.NewEmptyReport(testNow), report)
}

func TestAnalyticsServiceLatestRFMWrapsStoreError(t *testing.T) {
	ctx := context.Background()
	svc := newTestAnalyticsService(setupFailingDB(t))

	_, err := svc.LatestRFM(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load latest rfm batch")
}

func TestReportCacheKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "report:all:all", reportCacheKey(nil, nil))
	assert.Equal(t, "report:2024-01-01:all", reportCacheKey(&start, nil))
	assert.Equal(t, "report:2024-01-01:2024-02-01", reportCacheKey(&start, &end))
}
