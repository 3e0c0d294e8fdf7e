package analytics

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine fans a shared snapshot out to the six analyzers and merges
// their sections into one report. It performs no I/O and keeps no state
// between runs; callers supply the snapshot and the single reference
// instant every time-relative rule uses.
type Engine struct {
	logger       *zap.Logger
	segmentation *SegmentationAnalyzer
	rfm          *RFMAnalyzer
	cohorts      *CohortAnalyzer
	frequency    *FrequencyAnalyzer
	affinity     *AffinityAnalyzer
	timing       *TimingAnalyzer
}

// NewEngine creates a new Engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("analytics")
	return &Engine{
		logger:       logger,
		segmentation: NewSegmentationAnalyzer(logger),
		rfm:          NewRFMAnalyzer(logger),
		cohorts:      NewCohortAnalyzer(logger),
		frequency:    NewFrequencyAnalyzer(logger),
		affinity:     NewAffinityAnalyzer(logger),
		timing:       NewTimingAnalyzer(logger),
	}
}

// Compute runs every analyzer against the same read-only snapshot and
// returns the merged report. Analyzers run in parallel; each one writes
// a distinct section, and a panicking analyzer leaves its section at the
// documented default so one failure never loses the whole report.
func (e *Engine) Compute(customers []Customer, orders []Order, products []Product, now time.Time) *Report {
	report := NewEmptyReport(now)
	report.CustomerCount = len(customers)
	report.OrderCount = len(orders)

	var wg sync.WaitGroup
	wg.Add(6)
	go e.run(&wg, "segmentation", func() {
		report.Segmentation = e.segmentation.Analyze(customers, now)
	})
	go e.run(&wg, "rfm", func() {
		report.RFM = e.rfm.Analyze(customers, now)
	})
	go e.run(&wg, "cohorts", func() {
		report.Cohorts = e.cohorts.Analyze(customers, orders)
	})
	go e.run(&wg, "frequency", func() {
		report.Frequency = e.frequency.Analyze(customers, orders, now)
	})
	go e.run(&wg, "affinity", func() {
		report.Affinity = e.affinity.Analyze(orders, products)
	})
	go e.run(&wg, "timing", func() {
		report.Timing = e.timing.Analyze(orders)
	})
	wg.Wait()

	return report
}

// run executes one analyzer and swallows a panic, keeping the section
// default already present in the report. Failure policy lives here and
// nowhere else.
func (e *Engine) run(wg *sync.WaitGroup, name string, fn func()) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("analyzer failed, keeping default section",
				zap.String("analyzer", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}
