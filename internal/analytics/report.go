package analytics

import "time"

// Report is the single merged output of one engine run. Every section is
// fully resolved and safe to serialize as-is; a section whose analyzer
// failed carries that section's documented default instead of being
// omitted. Two runs over the same snapshot with the same reference instant
// marshal to identical bytes.
type Report struct {
	GeneratedAt   time.Time `json:"generated_at"`
	CustomerCount int       `json:"customer_count"`
	OrderCount    int       `json:"order_count"`

	Segmentation *SegmentationSummary `json:"segmentation"`
	RFM          *RFMSummary          `json:"rfm"`
	Cohorts      *CohortSummary       `json:"cohorts"`
	Frequency    *FrequencySummary    `json:"purchase_frequency"`
	Affinity     *AffinitySummary     `json:"product_affinity"`
	Timing       *TimingSummary       `json:"order_timing"`
}

// SegmentCount is one lifecycle segment's share of the scored population.
type SegmentCount struct {
	Segment    string `json:"segment"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// SegmentationSummary lists all six lifecycle segments in rule order,
// including the empty ones.
type SegmentationSummary struct {
	TotalSegmented int            `json:"total_segmented"`
	Segments       []SegmentCount `json:"segments"`
}

// RFMScore is one customer's scores from the current run.
type RFMScore struct {
	CustomerID string `json:"customer_id"`
	Recency    int    `json:"recency_score"`
	Frequency  int    `json:"frequency_score"`
	Monetary   int    `json:"monetary_score"`
	Score      int    `json:"rfm_score"`
	Segment    string `json:"rfm_segment"`
}

// RFMSummary carries per-customer scores in stable input order plus the
// archetype distribution.
type RFMSummary struct {
	ScoredCustomers int            `json:"scored_customers"`
	Scores          []RFMScore     `json:"scores"`
	SegmentCounts   map[string]int `json:"segment_counts"`
}

// Cohort is one acquisition month with its retention curve over offsets
// 0 through 12.
type Cohort struct {
	Month          string    `json:"month"`
	Size           int       `json:"size"`
	RetentionRates []float64 `json:"retention_rates"`
	TotalValue     float64   `json:"total_value"`
	AverageValue   float64   `json:"average_value"`
}

// CohortSummary lists cohorts chronologically, truncated to the most
// recent twelve.
type CohortSummary struct {
	Cohorts []Cohort `json:"cohorts"`
}

// FrequencyBucket is one fixed day-range of the interval histogram.
type FrequencyBucket struct {
	Label      string `json:"label"`
	MinDays    int    `json:"min_days"`
	MaxDays    int    `json:"max_days"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// FrequencySummary aggregates inter-purchase intervals across all
// customers with at least two dated orders.
type FrequencySummary struct {
	IntervalCount        int               `json:"interval_count"`
	MeanDays             float64           `json:"mean_days"`
	MedianDays           float64           `json:"median_days"`
	Histogram            []FrequencyBucket `json:"histogram"`
	RecommendedIntervals []int             `json:"recommended_intervals"`
}

// ProductPair is one co-occurring product pair with its basket metrics.
// ProductA sorts before ProductB so a pair has exactly one encoding.
type ProductPair struct {
	ProductA     string  `json:"product_a"`
	ProductB     string  `json:"product_b"`
	ProductAName string  `json:"product_a_name"`
	ProductBName string  `json:"product_b_name"`
	Count        int     `json:"count"`
	Support      float64 `json:"support"`
	Confidence   float64 `json:"confidence"`
	Lift         float64 `json:"lift"`
}

// RecommendationSection is a segment-keyed recommendation list. Until a
// recommender feeds it, Computed is false and Items stays empty rather
// than carrying placeholder values.
type RecommendationSection struct {
	Computed bool                `json:"computed"`
	Note     string              `json:"note,omitempty"`
	Items    map[string][]string `json:"items"`
}

// AffinitySummary reports the strongest product pairs by lift.
type AffinitySummary struct {
	TotalOrders         int                    `json:"total_orders"`
	Pairs               []ProductPair          `json:"frequently_bought_together"`
	CrossSell           *RecommendationSection `json:"cross_sell"`
	CategoryPreferences *RecommendationSection `json:"category_preferences"`
}

// TimeBucket is one hour, weekday or day-part bucket of the timing
// analysis.
type TimeBucket struct {
	Label             string  `json:"label"`
	Count             int     `json:"count"`
	Percentage        int     `json:"percentage"`
	Revenue           float64 `json:"revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// TimingSummary buckets dated orders three ways and ranks the busiest and
// quietest periods.
type TimingSummary struct {
	TotalOrders int          `json:"total_orders"`
	Hours       []TimeBucket `json:"hours"`
	Weekdays    []TimeBucket `json:"weekdays"`
	DayParts    []TimeBucket `json:"day_parts"`
	BestDays    []string     `json:"best_days"`
	WorstDays   []string     `json:"worst_days"`
	BestHours   []string     `json:"best_hours"`
	WorstHours  []string     `json:"worst_hours"`
}

// NewEmptyReport returns the all-zero, structurally complete report used
// when the snapshot cannot be fetched, and as the per-section fallback
// when an analyzer fails.
func NewEmptyReport(now time.Time) *Report {
	return &Report{
		GeneratedAt:  now,
		Segmentation: EmptySegmentationSummary(),
		RFM:          EmptyRFMSummary(),
		Cohorts:      EmptyCohortSummary(),
		Frequency:    EmptyFrequencySummary(),
		Affinity:     EmptyAffinitySummary(),
		Timing:       EmptyTimingSummary(),
	}
}

// EmptySegmentationSummary lists all six segments with zero counts.
func EmptySegmentationSummary() *SegmentationSummary {
	segments := make([]SegmentCount, 0, len(segmentOrder))
	for _, seg := range segmentOrder {
		segments = append(segments, SegmentCount{Segment: seg})
	}
	return &SegmentationSummary{Segments: segments}
}

// EmptyRFMSummary has no scores and an empty distribution.
func EmptyRFMSummary() *RFMSummary {
	return &RFMSummary{
		Scores:        []RFMScore{},
		SegmentCounts: map[string]int{},
	}
}

// EmptyCohortSummary has no cohorts.
func EmptyCohortSummary() *CohortSummary {
	return &CohortSummary{Cohorts: []Cohort{}}
}

// EmptyFrequencySummary keeps the full histogram scaffold with zero
// counts so consumers always see the same bucket layout.
func EmptyFrequencySummary() *FrequencySummary {
	return &FrequencySummary{
		Histogram:            emptyHistogram(),
		RecommendedIntervals: []int{},
	}
}

// EmptyAffinitySummary has no pairs and the not-yet-computed
// recommendation sections.
func EmptyAffinitySummary() *AffinitySummary {
	return &AffinitySummary{
		Pairs:               []ProductPair{},
		CrossSell:           emptyRecommendationSection(),
		CategoryPreferences: emptyRecommendationSection(),
	}
}

// EmptyTimingSummary keeps every hour, weekday and day-part bucket at
// zero and leaves the best/worst rankings empty.
func EmptyTimingSummary() *TimingSummary {
	return &TimingSummary{
		Hours:      emptyHourBuckets(),
		Weekdays:   emptyWeekdayBuckets(),
		DayParts:   emptyDayPartBuckets(),
		BestDays:   []string{},
		WorstDays:  []string{},
		BestHours:  []string{},
		WorstHours: []string{},
	}
}

func emptyRecommendationSection() *RecommendationSection {
	return &RecommendationSection{
		Note:  "not yet computed",
		Items: map[string][]string{},
	}
}
