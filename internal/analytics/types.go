package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Customer is the aggregated view of one shopper as the analyzers see it.
// OrderCount and TotalSpent come from upstream re-aggregation; the two
// order-date bounds are optional and their absence excludes the customer
// from every time-relative analysis.
type Customer struct {
	ID             string
	Email          string
	Name           string
	OrderCount     int
	TotalSpent     float64
	FirstOrderDate *time.Time
	LastOrderDate  *time.Time
}

// Order is one storefront order inside the snapshot. Total and LineItems
// stay loosely typed because upstream sources deliver decimal strings,
// numbers, serialized JSON or pre-decoded structures; the analyzers coerce
// them record by record and degrade bad values to zero or empty instead of
// failing the run.
type Order struct {
	ID          string
	CustomerID  string
	DateCreated *time.Time
	Total       any
	LineItems   any
}

// Product maps a product id to its display name.
type Product struct {
	ID   string
	Name string
}

// LineItem is one decoded entry of an order's line_items sequence.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// UnmarshalJSON tolerates numeric and string encodings for every field;
// storefront exports are not consistent about either.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID any `json:"product_id"`
		Quantity  any `json:"quantity"`
		Price     any `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	li.ProductID = IDValue(raw.ProductID)
	li.Quantity = int(AmountValue(raw.Quantity))
	li.Price = AmountValue(raw.Price)
	return nil
}

// AmountValue coerces a loosely typed monetary value to a float64.
// Unparsable values count as zero so a single bad record cannot sink an
// aggregation. Ingestion shares this coercion so stored totals and
// analyzer-side totals always agree.
func AmountValue(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// IDValue renders a loosely typed identifier in its canonical string form.
// Integral floats lose the decimal tail so that 7 and 7.0 name the same
// product.
func IDValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// DecodeLineItems turns whatever shape line_items arrived in into a
// []LineItem. A decode failure yields an empty sequence for that order
// only; it never aborts the caller.
func DecodeLineItems(v any) []LineItem {
	switch t := v.(type) {
	case nil:
		return nil
	case []LineItem:
		return t
	case string:
		return unmarshalLineItems([]byte(t))
	case []byte:
		return unmarshalLineItems(t)
	case json.RawMessage:
		return unmarshalLineItems(t)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return unmarshalLineItems(raw)
	}
}

func unmarshalLineItems(raw []byte) []LineItem {
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// daysSince reports whole days elapsed from t to now, truncated toward
// zero. Every recency rule in the engine shares this definition.
func daysSince(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}

// intervalDays reports the gap between two order instants rounded to the
// nearest day.
func intervalDays(earlier, later time.Time) int {
	return int(math.Round(later.Sub(earlier).Hours() / 24))
}

// percentage is count/total as a rounded integer percent, 0 when the
// denominator is 0.
func percentage(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
