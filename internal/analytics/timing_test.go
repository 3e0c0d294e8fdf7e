package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingAnalyzer_UnparsableTotalStillCounts(t *testing.T) {
	analyzer := NewTimingAnalyzer(nil)
	orders := []Order{
		{ID: "o1", DateCreated: tp(time.Date(2024, 6, 12, 14, 30, 0, 0, time.UTC)), Total: "not-a-number"},
	}

	summary := analyzer.Analyze(orders)

	assert.Equal(t, 1, summary.TotalOrders)
	hour := summary.Hours[14]
	assert.Equal(t, 1, hour.Count)
	assert.Equal(t, 100, hour.Percentage)
	assert.Equal(t, 0.0, hour.Revenue)
	assert.Equal(t, 0.0, hour.AverageOrderValue)

	wednesday := summary.Weekdays[3]
	assert.Equal(t, "Wednesday", wednesday.Label)
	assert.Equal(t, 1, wednesday.Count)
	assert.Equal(t, 0.0, wednesday.Revenue)
}

func TestTimingAnalyzer_Bucketing(t *testing.T) {
	analyzer := NewTimingAnalyzer(nil)
	orders := []Order{
		{ID: "o1", DateCreated: tp(time.Date(2024, 6, 9, 8, 0, 0, 0, time.UTC)), Total: 100.0},
		{ID: "o2", DateCreated: tp(time.Date(2024, 6, 9, 23, 30, 0, 0, time.UTC)), Total: "50.50"},
		{ID: "o3", DateCreated: tp(time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC)), Total: 25},
		{ID: "undated", Total: 999.0},
	}

	summary := analyzer.Analyze(orders)

	assert.Equal(t, 3, summary.TotalOrders)

	assert.Equal(t, 1, summary.Hours[8].Count)
	assert.Equal(t, 100.0, summary.Hours[8].Revenue)
	assert.Equal(t, 100.0, summary.Hours[8].AverageOrderValue)
	assert.Equal(t, 50.5, summary.Hours[23].Revenue)
	assert.Equal(t, 25.0, summary.Hours[2].Revenue)

	sunday := summary.Weekdays[0]
	require.Equal(t, "Sunday", sunday.Label)
	assert.Equal(t, 2, sunday.Count)
	assert.Equal(t, 67, sunday.Percentage)
	assert.Equal(t, 150.5, sunday.Revenue)
	assert.Equal(t, 75.25, sunday.AverageOrderValue)

	monday := summary.Weekdays[1]
	assert.Equal(t, 1, monday.Count)
	assert.Equal(t, 33, monday.Percentage)

	// Hour 23 and hour 2 both land in the wrapping Night range.
	var parts = map[string]TimeBucket{}
	for _, p := range summary.DayParts {
		parts[p.Label] = p
	}
	assert.Equal(t, 1, parts["Morning"].Count)
	assert.Equal(t, 100.0, parts["Morning"].Revenue)
	assert.Equal(t, 2, parts["Night"].Count)
	assert.Equal(t, 75.5, parts["Night"].Revenue)
	assert.Equal(t, 37.75, parts["Night"].AverageOrderValue)
	assert.Equal(t, 0, parts["Afternoon"].Count)
	assert.Equal(t, 0, parts["Evening"].Count)
}

func TestTimingAnalyzer_BestAndWorstPeriods(t *testing.T) {
	analyzer := NewTimingAnalyzer(nil)
	orders := []Order{
		{ID: "o1", DateCreated: tp(time.Date(2024, 6, 9, 8, 0, 0, 0, time.UTC)), Total: 10.0},
		{ID: "o2", DateCreated: tp(time.Date(2024, 6, 9, 23, 0, 0, 0, time.UTC)), Total: 10.0},
		{ID: "o3", DateCreated: tp(time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC)), Total: 10.0},
	}

	summary := analyzer.Analyze(orders)

	assert.Equal(t, []string{"Sunday", "Monday", "Tuesday"}, summary.BestDays)
	assert.Equal(t, []string{"Tuesday", "Wednesday", "Thursday"}, summary.WorstDays)
	assert.Equal(t, []string{"02:00", "08:00", "23:00", "00:00", "01:00"}, summary.BestHours)
	assert.Equal(t, []string{"00:00", "01:00", "03:00", "04:00", "05:00"}, summary.WorstHours)
}

func TestTimingAnalyzer_NoDatedOrders(t *testing.T) {
	analyzer := NewTimingAnalyzer(nil)

	summary := analyzer.Analyze([]Order{{ID: "o1", Total: 10.0}})

	assert.Equal(t, EmptyTimingSummary(), summary)
	require.Len(t, summary.Hours, 24)
	require.Len(t, summary.Weekdays, 7)
	require.Len(t, summary.DayParts, 4)
	assert.Empty(t, summary.BestDays)
	assert.Empty(t, summary.BestHours)
}

func TestDayPartIndex(t *testing.T) {
	tests := []struct {
		hour int
		want int
	}{
		{6, 0}, {11, 0},
		{12, 1}, {17, 1},
		{18, 2}, {22, 2},
		{23, 3}, {0, 3}, {3, 3}, {5, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, dayPartIndex(tt.hour), "hour %d", tt.hour)
	}
}
