package analytics

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

var dayPartLabels = []string{"Morning", "Afternoon", "Evening", "Night"}

// dayPartIndex maps an hour to its time-of-day range: Morning 6-11,
// Afternoon 12-17, Evening 18-22, Night 23-5 wrapping past midnight.
func dayPartIndex(hour int) int {
	switch {
	case hour >= 6 && hour <= 11:
		return 0
	case hour >= 12 && hour <= 17:
		return 1
	case hour >= 18 && hour <= 22:
		return 2
	default:
		return 3
	}
}

func hourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func emptyHourBuckets() []TimeBucket {
	buckets := make([]TimeBucket, 24)
	for h := range buckets {
		buckets[h].Label = hourLabel(h)
	}
	return buckets
}

func emptyWeekdayBuckets() []TimeBucket {
	buckets := make([]TimeBucket, 7)
	for d := range buckets {
		buckets[d].Label = time.Weekday(d).String()
	}
	return buckets
}

func emptyDayPartBuckets() []TimeBucket {
	buckets := make([]TimeBucket, len(dayPartLabels))
	for i, label := range dayPartLabels {
		buckets[i].Label = label
	}
	return buckets
}

// TimingAnalyzer buckets orders by hour, weekday and time of day.
type TimingAnalyzer struct {
	logger *zap.Logger
}

// NewTimingAnalyzer creates a new TimingAnalyzer.
func NewTimingAnalyzer(logger *zap.Logger) *TimingAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimingAnalyzer{logger: logger.Named("timing")}
}

// Analyze accumulates count and revenue for every dated order into three
// parallel bucketings, in UTC. TotalOrders counts only dated orders; an
// order with an unparsable total still counts in its buckets, it just
// adds no revenue. Best and worst lists rank weekdays top-3 and hours
// top-5 by order count.
func (a *TimingAnalyzer) Analyze(orders []Order) *TimingSummary {
	summary := EmptyTimingSummary()

	hourRevenue := make([]float64, 24)
	dayRevenue := make([]float64, 7)
	partRevenue := make([]float64, len(dayPartLabels))

	total := 0
	for _, o := range orders {
		if o.DateCreated == nil {
			continue
		}
		t := o.DateCreated.UTC()
		hour := t.Hour()
		day := int(t.Weekday())
		part := dayPartIndex(hour)
		amount := AmountValue(o.Total)

		summary.Hours[hour].Count++
		summary.Weekdays[day].Count++
		summary.DayParts[part].Count++
		hourRevenue[hour] += amount
		dayRevenue[day] += amount
		partRevenue[part] += amount
		total++
	}
	if total == 0 {
		return summary
	}
	summary.TotalOrders = total

	finishBuckets(summary.Hours, hourRevenue, total)
	finishBuckets(summary.Weekdays, dayRevenue, total)
	finishBuckets(summary.DayParts, partRevenue, total)

	summary.BestDays = rankBuckets(summary.Weekdays, 3, true)
	summary.WorstDays = rankBuckets(summary.Weekdays, 3, false)
	summary.BestHours = rankBuckets(summary.Hours, 5, true)
	summary.WorstHours = rankBuckets(summary.Hours, 5, false)

	a.logger.Debug("timing analysis complete", zap.Int("dated_orders", total))
	return summary
}

func finishBuckets(buckets []TimeBucket, revenue []float64, total int) {
	for i := range buckets {
		buckets[i].Percentage = percentage(buckets[i].Count, total)
		buckets[i].Revenue = round2(revenue[i])
		if buckets[i].Count > 0 {
			buckets[i].AverageOrderValue = round2(revenue[i] / float64(buckets[i].Count))
		}
	}
}

// rankBuckets returns the labels of the top n buckets by count. The sort
// is stable, so ties resolve to the earlier bucket.
func rankBuckets(buckets []TimeBucket, n int, descending bool) []string {
	idx := make([]int, len(buckets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if descending {
			return buckets[idx[a]].Count > buckets[idx[b]].Count
		}
		return buckets[idx[a]].Count < buckets[idx[b]].Count
	})
	if n > len(idx) {
		n = len(idx)
	}
	labels := make([]string, 0, n)
	for _, i := range idx[:n] {
		labels = append(labels, buckets[i].Label)
	}
	return labels
}
