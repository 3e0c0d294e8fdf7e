package analytics

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Gaps outside this range are noise: below a day the orders are not
// distinct purchase events, beyond a year the gap says nothing about
// frequency.
const (
	minIntervalDays = 1
	maxIntervalDays = 365
)

type bucketRange struct {
	label string
	min   int
	max   int
}

var frequencyBucketRanges = []bucketRange{
	{"0-7 days", 0, 7},
	{"8-14 days", 8, 14},
	{"15-30 days", 15, 30},
	{"31-60 days", 31, 60},
	{"61-90 days", 61, 90},
	{"91-180 days", 91, 180},
	{"181-365 days", 181, 365},
}

// predictedIntervalDays is the assumed next-purchase gap per lifecycle
// segment, used to seed campaign interval recommendations.
var predictedIntervalDays = map[string]int{
	SegmentNew:     30,
	SegmentOneTime: 60,
	SegmentLoyal:   21,
	SegmentActive:  40,
	SegmentAtRisk:  75,
	SegmentLost:    120,
}

func emptyHistogram() []FrequencyBucket {
	buckets := make([]FrequencyBucket, 0, len(frequencyBucketRanges))
	for _, b := range frequencyBucketRanges {
		buckets = append(buckets, FrequencyBucket{Label: b.label, MinDays: b.min, MaxDays: b.max})
	}
	return buckets
}

// FrequencyAnalyzer measures the day gaps between consecutive purchases.
type FrequencyAnalyzer struct {
	logger *zap.Logger
}

// NewFrequencyAnalyzer creates a new FrequencyAnalyzer.
func NewFrequencyAnalyzer(logger *zap.Logger) *FrequencyAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrequencyAnalyzer{logger: logger.Named("frequency")}
}

// Analyze collects per-customer inter-purchase gaps, aggregates them into
// mean, median and the fixed histogram, and derives up to five
// recommended follow-up intervals.
func (a *FrequencyAnalyzer) Analyze(customers []Customer, orders []Order, now time.Time) *FrequencySummary {
	datesByCustomer := make(map[string][]time.Time)
	for _, o := range orders {
		if o.CustomerID == "" || o.DateCreated == nil {
			continue
		}
		datesByCustomer[o.CustomerID] = append(datesByCustomer[o.CustomerID], *o.DateCreated)
	}

	var gaps []int
	for _, dates := range datesByCustomer {
		if len(dates) < 2 {
			continue
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		for i := 1; i < len(dates); i++ {
			gap := intervalDays(dates[i-1], dates[i])
			if gap < minIntervalDays || gap > maxIntervalDays {
				continue
			}
			gaps = append(gaps, gap)
		}
	}

	summary := &FrequencySummary{
		IntervalCount: len(gaps),
		Histogram:     emptyHistogram(),
	}

	var mean, median float64
	if len(gaps) > 0 {
		sum := 0
		for _, g := range gaps {
			sum += g
			for i, b := range frequencyBucketRanges {
				if g >= b.min && g <= b.max {
					summary.Histogram[i].Count++
					break
				}
			}
		}
		mean = float64(sum) / float64(len(gaps))
		median = medianOf(gaps)

		for i := range summary.Histogram {
			summary.Histogram[i].Percentage = percentage(summary.Histogram[i].Count, len(gaps))
		}
	}
	summary.MeanDays = round1(mean)
	summary.MedianDays = round1(median)
	summary.RecommendedIntervals = a.recommendIntervals(gaps, mean, median, summary.Histogram, customers, now)

	a.logger.Debug("frequency analysis complete",
		zap.Int("customers_with_intervals", len(datesByCustomer)),
		zap.Int("intervals", len(gaps)))
	return summary
}

// recommendIntervals unions the median, the mean when it diverges from
// the median by more than five days, the modal bucket midpoint and the
// predicted gap of every segment present in the snapshot, then returns
// the first five distinct values in ascending order.
func (a *FrequencyAnalyzer) recommendIntervals(gaps []int, mean, median float64, histogram []FrequencyBucket, customers []Customer, now time.Time) []int {
	seen := make(map[int]struct{})
	add := func(days int) {
		if days <= 0 {
			return
		}
		seen[days] = struct{}{}
	}

	if len(gaps) > 0 {
		add(int(math.Round(median)))
		if math.Abs(mean-median) > 5 {
			add(int(math.Round(mean)))
		}
		modal := 0
		for i := range histogram {
			if histogram[i].Count > histogram[modal].Count {
				modal = i
			}
		}
		if histogram[modal].Count > 0 {
			b := frequencyBucketRanges[modal]
			add(int(math.Round(float64(b.min+b.max) / 2)))
		}
	}
	for _, c := range customers {
		if seg, ok := segmentFor(c, now); ok {
			add(predictedIntervalDays[seg])
		}
	}

	recommended := make([]int, 0, len(seen))
	for days := range seen {
		recommended = append(recommended, days)
	}
	sort.Ints(recommended)
	if len(recommended) > 5 {
		recommended = recommended[:5]
	}
	return recommended
}

// medianOf is the standard even/odd median of the gap population.
func medianOf(gaps []int) float64 {
	sorted := make([]int, len(gaps))
	copy(sorted, gaps)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
