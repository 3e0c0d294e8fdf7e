package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCohortAnalyzer_RetentionCurve(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)
	customers := []Customer{
		{ID: "c1", FirstOrderDate: tp(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))},
		{ID: "c2", FirstOrderDate: tp(time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))},
	}
	orders := []Order{
		{ID: "o1", CustomerID: "c1", DateCreated: tp(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)), Total: 100.0},
		{ID: "o2", CustomerID: "c1", DateCreated: tp(time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC)), Total: 50.0},
		{ID: "o3", CustomerID: "c2", DateCreated: tp(time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)), Total: "25.50"},
	}

	summary := analyzer.Analyze(customers, orders)

	require.Len(t, summary.Cohorts, 1)
	cohort := summary.Cohorts[0]
	assert.Equal(t, "2024-01", cohort.Month)
	assert.Equal(t, 2, cohort.Size)
	require.Len(t, cohort.RetentionRates, 13)
	assert.Equal(t, 100.0, cohort.RetentionRates[0])
	assert.Equal(t, 50.0, cohort.RetentionRates[1])
	for offset := 2; offset < 13; offset++ {
		assert.Equal(t, 0.0, cohort.RetentionRates[offset], "offset %d", offset)
	}
	assert.Equal(t, 175.5, cohort.TotalValue)
	assert.Equal(t, 87.75, cohort.AverageValue)
}

func TestCohortAnalyzer_MonthZeroPinnedWithoutOrders(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)
	customers := []Customer{
		{ID: "c1", FirstOrderDate: tp(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))},
	}

	summary := analyzer.Analyze(customers, nil)

	require.Len(t, summary.Cohorts, 1)
	cohort := summary.Cohorts[0]
	assert.Equal(t, "2024-03", cohort.Month)
	assert.Equal(t, 100.0, cohort.RetentionRates[0])
	assert.Equal(t, 0.0, cohort.TotalValue)
	assert.Equal(t, 0.0, cohort.AverageValue)
}

func TestCohortAnalyzer_TruncatesToMostRecentTwelve(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)

	customers := make([]Customer, 14)
	for i := range customers {
		customers[i] = Customer{
			ID:             fmt.Sprintf("c%d", i),
			FirstOrderDate: tp(time.Date(2023, time.Month(1+i), 15, 0, 0, 0, 0, time.UTC)),
		}
	}

	summary := analyzer.Analyze(customers, nil)

	require.Len(t, summary.Cohorts, 12)
	assert.Equal(t, "2023-03", summary.Cohorts[0].Month)
	assert.Equal(t, "2024-02", summary.Cohorts[11].Month)
}

func TestCohortAnalyzer_MonthWindowIsHalfOpen(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)
	customers := []Customer{
		{ID: "c1", FirstOrderDate: tp(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))},
	}
	orders := []Order{
		// Exactly the first instant of February: offset 1, not offset 0.
		{ID: "o1", CustomerID: "c1", DateCreated: tp(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), Total: 10.0},
	}

	summary := analyzer.Analyze(customers, orders)

	require.Len(t, summary.Cohorts, 1)
	assert.Equal(t, 100.0, summary.Cohorts[0].RetentionRates[1])
}

func TestCohortAnalyzer_IgnoresOrdersOutsideTrackedWindow(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)
	customers := []Customer{
		{ID: "c1", FirstOrderDate: tp(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))},
	}
	orders := []Order{
		{ID: "before", CustomerID: "c1", DateCreated: tp(time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)), Total: 40.0},
		{ID: "beyond", CustomerID: "c1", DateCreated: tp(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)), Total: 60.0},
		{ID: "ghost", CustomerID: "nobody", DateCreated: tp(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), Total: 70.0},
	}

	summary := analyzer.Analyze(customers, orders)

	require.Len(t, summary.Cohorts, 1)
	cohort := summary.Cohorts[0]
	assert.Equal(t, 0.0, cohort.TotalValue)
	for offset := 1; offset < 13; offset++ {
		assert.Equal(t, 0.0, cohort.RetentionRates[offset])
	}
}

func TestCohortAnalyzer_NoDatableCustomers(t *testing.T) {
	analyzer := NewCohortAnalyzer(nil)

	summary := analyzer.Analyze([]Customer{{ID: "c1"}}, nil)

	assert.Equal(t, EmptyCohortSummary(), summary)
}
