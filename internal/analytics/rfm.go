package analytics

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// rfmRule maps a recency/frequency/monetary combination to an archetype.
// The table is evaluated top to bottom and the first match wins; the
// ordering resolves the overlapping conditions and is part of the
// behavior, not incidental.
type rfmRule struct {
	segment string
	match   func(r, f, m int) bool
}

var rfmRules = []rfmRule{
	{"champions", func(r, f, m int) bool { return r >= 4 && f >= 4 && m >= 4 }},
	{"loyal", func(r, f, m int) bool { return r >= 3 && f >= 4 }},
	{"potential-loyalist", func(r, f, m int) bool { return r >= 4 && f >= 2 }},
	{"new", func(r, f, m int) bool { return r >= 4 && f <= 1 }},
	{"promising", func(r, f, m int) bool { return r == 3 && f <= 1 }},
	{"need-attention", func(r, f, m int) bool { return r == 3 && f >= 2 }},
	{"about-to-sleep", func(r, f, m int) bool { return r == 2 && f <= 2 }},
	{"cant-lose", func(r, f, m int) bool { return r <= 2 && f >= 4 && m >= 4 }},
	{"at-risk", func(r, f, m int) bool { return r <= 2 && f >= 3 }},
	{"hibernating", func(r, f, m int) bool { return r == 1 && f == 2 }},
	{"lost", func(r, f, m int) bool { return r == 1 && f <= 1 }},
}

// rfmSegmentFor resolves the archetype for one score triple. Combinations
// no rule claims fall into the catch-all.
func rfmSegmentFor(r, f, m int) string {
	for _, rule := range rfmRules {
		if rule.match(r, f, m) {
			return rule.segment
		}
	}
	return "other"
}

// RFMAnalyzer scores the customer population on recency, frequency and
// monetary quintiles.
type RFMAnalyzer struct {
	logger *zap.Logger
}

// NewRFMAnalyzer creates a new RFMAnalyzer.
func NewRFMAnalyzer(logger *zap.Logger) *RFMAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RFMAnalyzer{logger: logger.Named("rfm")}
}

// Analyze ranks eligible customers three times, partitions each ranking
// into quintiles of ceil(N/5), and derives per-customer scores and
// archetypes. Ties keep input order so an identical snapshot always
// scores identically.
func (a *RFMAnalyzer) Analyze(customers []Customer, now time.Time) *RFMSummary {
	eligible := make([]Customer, 0, len(customers))
	for _, c := range customers {
		if c.OrderCount > 0 && c.LastOrderDate != nil {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return EmptyRFMSummary()
	}

	n := len(eligible)
	quintile := (n + 4) / 5

	recencyRanks := rankIndexes(n, func(i, j int) bool {
		return daysSince(now, *eligible[i].LastOrderDate) < daysSince(now, *eligible[j].LastOrderDate)
	})
	frequencyRanks := rankIndexes(n, func(i, j int) bool {
		return eligible[i].OrderCount > eligible[j].OrderCount
	})
	monetaryRanks := rankIndexes(n, func(i, j int) bool {
		return eligible[i].TotalSpent > eligible[j].TotalSpent
	})

	summary := &RFMSummary{
		ScoredCustomers: n,
		Scores:          make([]RFMScore, 0, n),
		SegmentCounts:   make(map[string]int),
	}
	for i, c := range eligible {
		r := quintileScore(recencyRanks[i], quintile)
		f := quintileScore(frequencyRanks[i], quintile)
		m := quintileScore(monetaryRanks[i], quintile)
		segment := rfmSegmentFor(r, f, m)

		summary.Scores = append(summary.Scores, RFMScore{
			CustomerID: c.ID,
			Recency:    r,
			Frequency:  f,
			Monetary:   m,
			Score:      r*100 + f*10 + m,
			Segment:    segment,
		})
		summary.SegmentCounts[segment]++
	}

	a.logger.Debug("rfm scoring complete",
		zap.Int("eligible", n),
		zap.Int("quintile_size", quintile))
	return summary
}

// rankIndexes returns each input position's rank under the given
// ordering. The sort is stable, so tied positions rank in input order.
func rankIndexes(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })

	ranks := make([]int, n)
	for rank, i := range idx {
		ranks[i] = rank
	}
	return ranks
}

// quintileScore converts a zero-based rank into a 5..1 score, best rank
// first, clamped to [1,5].
func quintileScore(rank, quintile int) int {
	if quintile <= 0 {
		return 1
	}
	score := 5 - rank/quintile
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}
