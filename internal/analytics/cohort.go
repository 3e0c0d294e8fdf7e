package analytics

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// cohortWindow is how many month offsets a cohort is tracked for,
// offset 0 included.
const cohortWindow = 13

// maxCohorts caps the report to the most recent acquisition months.
const maxCohorts = 12

// monthStart normalizes an instant to the first moment of its calendar
// month. All month bucketing runs in UTC so the cohort key of a timestamp
// does not depend on the zone it was ingested with.
func monthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthsBetween counts whole calendar months from a to b; both arguments
// must be month starts.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

type cohortAccum struct {
	month   time.Time
	members map[string]struct{}
	active  [cohortWindow]map[string]struct{}
	revenue float64
}

// CohortAnalyzer groups customers by acquisition month and measures how
// many come back in each of the following twelve months.
type CohortAnalyzer struct {
	logger *zap.Logger
}

// NewCohortAnalyzer creates a new CohortAnalyzer.
func NewCohortAnalyzer(logger *zap.Logger) *CohortAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CohortAnalyzer{logger: logger.Named("cohort")}
}

// Analyze builds one cohort per acquisition month. Offset 0 retention is
// 100% by construction: the cohort exists because of its month-0
// acquisition, so that column is not an empirical measurement. Later
// offsets count distinct members with at least one order inside the
// half-open month window. Cohort value sums member revenue across the
// tracked window.
func (a *CohortAnalyzer) Analyze(customers []Customer, orders []Order) *CohortSummary {
	cohorts := make(map[time.Time]*cohortAccum)
	memberCohort := make(map[string]time.Time, len(customers))

	for _, c := range customers {
		if c.FirstOrderDate == nil || c.ID == "" {
			continue
		}
		month := monthStart(*c.FirstOrderDate)
		acc, ok := cohorts[month]
		if !ok {
			acc = &cohortAccum{month: month, members: make(map[string]struct{})}
			cohorts[month] = acc
		}
		acc.members[c.ID] = struct{}{}
		memberCohort[c.ID] = month
	}
	if len(cohorts) == 0 {
		return EmptyCohortSummary()
	}

	for _, o := range orders {
		if o.DateCreated == nil || o.CustomerID == "" {
			continue
		}
		month, ok := memberCohort[o.CustomerID]
		if !ok {
			continue
		}
		offset := monthsBetween(month, monthStart(*o.DateCreated))
		if offset < 0 || offset >= cohortWindow {
			continue
		}
		acc := cohorts[month]
		if acc.active[offset] == nil {
			acc.active[offset] = make(map[string]struct{})
		}
		acc.active[offset][o.CustomerID] = struct{}{}
		acc.revenue += AmountValue(o.Total)
	}

	months := make([]time.Time, 0, len(cohorts))
	for month := range cohorts {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	if len(months) > maxCohorts {
		months = months[len(months)-maxCohorts:]
	}

	summary := &CohortSummary{Cohorts: make([]Cohort, 0, len(months))}
	for _, month := range months {
		acc := cohorts[month]
		size := len(acc.members)

		rates := make([]float64, cohortWindow)
		rates[0] = 100.0
		for offset := 1; offset < cohortWindow; offset++ {
			rates[offset] = round1(float64(len(acc.active[offset])) / float64(size) * 100)
		}

		summary.Cohorts = append(summary.Cohorts, Cohort{
			Month:          month.Format("2006-01"),
			Size:           size,
			RetentionRates: rates,
			TotalValue:     round2(acc.revenue),
			AverageValue:   round2(acc.revenue / float64(size)),
		})
	}

	a.logger.Debug("cohort analysis complete",
		zap.Int("cohorts", len(summary.Cohorts)),
		zap.Int("customers", len(memberCohort)))
	return summary
}
