package analytics

import (
	"sort"

	"go.uber.org/zap"
)

// minPairCount drops pairs seen in fewer orders; a single co-occurrence
// is statistically meaningless.
const minPairCount = 2

// maxPairs caps the frequently-bought-together list.
const maxPairs = 10

type pairKey struct {
	a string
	b string
}

// AffinityAnalyzer mines product pairs that keep landing in the same
// basket.
type AffinityAnalyzer struct {
	logger *zap.Logger
}

// NewAffinityAnalyzer creates a new AffinityAnalyzer.
func NewAffinityAnalyzer(logger *zap.Logger) *AffinityAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AffinityAnalyzer{logger: logger.Named("affinity")}
}

// Analyze counts per-order product occurrences and unordered pair
// co-occurrences, then ranks pairs by lift. An order whose line items
// cannot be decoded contributes an empty basket and nothing else; it
// still counts toward total orders. The cross-sell and category sections
// stay explicitly uncomputed until a recommender exists.
func (a *AffinityAnalyzer) Analyze(orders []Order, products []Product) *AffinitySummary {
	totalOrders := len(orders)
	summary := EmptyAffinitySummary()
	summary.TotalOrders = totalOrders
	if totalOrders == 0 {
		return summary
	}

	productCounts := make(map[string]int)
	pairCounts := make(map[pairKey]int)
	decodeFailures := 0

	for _, o := range orders {
		items := DecodeLineItems(o.LineItems)
		if len(items) == 0 && o.LineItems != nil {
			decodeFailures++
		}
		ids := basketIDs(items)
		for _, id := range ids {
			productCounts[id]++
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pairCounts[pairKey{a: ids[i], b: ids[j]}]++
			}
		}
	}
	if decodeFailures > 0 {
		a.logger.Warn("orders with undecodable line items degraded to empty baskets",
			zap.Int("orders", decodeFailures))
	}

	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	pairs := make([]ProductPair, 0, len(pairCounts))
	for key, count := range pairCounts {
		if count < minPairCount {
			continue
		}
		countA := productCounts[key.a]
		countB := productCounts[key.b]
		support := float64(count) / float64(totalOrders)
		supportA := float64(countA) / float64(totalOrders)
		supportB := float64(countB) / float64(totalOrders)

		confidence := float64(count) / float64(countA)
		if c := float64(count) / float64(countB); c > confidence {
			confidence = c
		}
		lift := 0.0
		if supportA > 0 && supportB > 0 {
			lift = support / (supportA * supportB)
		}

		pairs = append(pairs, ProductPair{
			ProductA:     key.a,
			ProductB:     key.b,
			ProductAName: productName(names, key.a),
			ProductBName: productName(names, key.b),
			Count:        count,
			Support:      support,
			Confidence:   confidence,
			Lift:         lift,
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Lift != pairs[j].Lift {
			return pairs[i].Lift > pairs[j].Lift
		}
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].ProductA != pairs[j].ProductA {
			return pairs[i].ProductA < pairs[j].ProductA
		}
		return pairs[i].ProductB < pairs[j].ProductB
	})
	if len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
	}
	summary.Pairs = pairs

	a.logger.Debug("affinity analysis complete",
		zap.Int("orders", totalOrders),
		zap.Int("qualifying_pairs", len(pairs)))
	return summary
}

// basketIDs extracts the distinct, sorted product ids of one order.
// Sorting keeps pair keys canonical: the lexically smaller id is always
// the pair's first element.
func basketIDs(items []LineItem) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func productName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return "Product " + id
}
