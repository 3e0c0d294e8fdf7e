package analytics

import (
	"time"

	"go.uber.org/zap"
)

// Lifecycle segment labels, in rule-evaluation order.
const (
	SegmentNew     = "new"
	SegmentOneTime = "one-time"
	SegmentLoyal   = "loyal"
	SegmentActive  = "active"
	SegmentAtRisk  = "at-risk"
	SegmentLost    = "lost"
)

var segmentOrder = []string{
	SegmentNew,
	SegmentOneTime,
	SegmentLoyal,
	SegmentActive,
	SegmentAtRisk,
	SegmentLost,
}

// segmentFor classifies one customer against the reference instant. Rules
// run in fixed order and the first match wins, so the six buckets are
// mutually exclusive. Customers without a last order date are never
// classified.
func segmentFor(c Customer, now time.Time) (string, bool) {
	if c.LastOrderDate == nil {
		return "", false
	}
	last := daysSince(now, *c.LastOrderDate)
	switch {
	case c.FirstOrderDate != nil && daysSince(now, *c.FirstOrderDate) <= 30:
		return SegmentNew, true
	case c.OrderCount == 1 && last > 30:
		return SegmentOneTime, true
	case c.OrderCount >= 3 && last <= 60:
		return SegmentLoyal, true
	case last <= 60:
		return SegmentActive, true
	case last <= 120:
		return SegmentAtRisk, true
	case last > 120:
		return SegmentLost, true
	}
	return "", false
}

// SegmentationAnalyzer assigns every datable customer to exactly one
// lifecycle segment.
type SegmentationAnalyzer struct {
	logger *zap.Logger
}

// NewSegmentationAnalyzer creates a new SegmentationAnalyzer.
func NewSegmentationAnalyzer(logger *zap.Logger) *SegmentationAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SegmentationAnalyzer{logger: logger.Named("segmentation")}
}

// Analyze counts customers per segment and derives each segment's share
// of the scored population. All six segments appear in the output even
// when empty.
func (a *SegmentationAnalyzer) Analyze(customers []Customer, now time.Time) *SegmentationSummary {
	counts := make(map[string]int, len(segmentOrder))
	total := 0
	for _, c := range customers {
		seg, ok := segmentFor(c, now)
		if !ok {
			continue
		}
		counts[seg]++
		total++
	}

	summary := &SegmentationSummary{
		TotalSegmented: total,
		Segments:       make([]SegmentCount, 0, len(segmentOrder)),
	}
	for _, seg := range segmentOrder {
		summary.Segments = append(summary.Segments, SegmentCount{
			Segment:    seg,
			Count:      counts[seg],
			Percentage: percentage(counts[seg], total),
		})
	}

	a.logger.Debug("segmentation complete",
		zap.Int("customers", len(customers)),
		zap.Int("segmented", total))
	return summary
}
