package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Customer is the aggregated customer row the analytics engine reads.
// OrderCount, TotalSpent and the order-date bounds are derived columns:
// they are only ever written by re-aggregation from the orders table,
// never incremented in place.
type Customer struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	Email          string     `json:"email" gorm:"index"`
	Name           string     `json:"name"`
	OrderCount     int        `json:"order_count" gorm:"default:0"`
	TotalSpent     float64    `json:"total_spent" gorm:"default:0"`
	FirstOrderDate *time.Time `json:"first_order_date,omitempty"`
	LastOrderDate  *time.Time `json:"last_order_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Customer) TableName() string { return "customers" }

// Order is a single storefront order. Total is normalized to a float at
// ingestion time; the raw storefront payload keeps whatever shape the
// source sent (decimal strings included). LineItems is the decoded
// [{product_id, quantity, price}] sequence stored as JSON; it may be
// empty when the source payload could not be decoded.
type Order struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	CustomerID  string         `json:"customer_id" gorm:"index"`
	DateCreated *time.Time     `json:"date_created,omitempty" gorm:"index"`
	Total       float64        `json:"total"`
	LineItems   datatypes.JSON `json:"line_items" gorm:"type:jsonb"`
	Source      string         `json:"source" gorm:"default:'import'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) TableName() string { return "orders" }

// Product carries the id→display-name mapping used by the affinity report.
type Product struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) TableName() string { return "products" }

// RFMRecord is one customer's scores from one RFM calculation run. Records
// from the same run share a BatchID and CalculationDate; reporting reads
// only the most recent batch.
type RFMRecord struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BatchID         uuid.UUID `json:"batch_id" gorm:"type:uuid;index"`
	CustomerID      string    `json:"customer_id" gorm:"index"`
	RecencyScore    int       `json:"recency_score"`
	FrequencyScore  int       `json:"frequency_score"`
	MonetaryScore   int       `json:"monetary_score"`
	RFMScore        int       `json:"rfm_score"`
	RFMSegment      string    `json:"rfm_segment"`
	CalculationDate time.Time `json:"calculation_date" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *RFMRecord) TableName() string { return "rfm_records" }

func (r *RFMRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
