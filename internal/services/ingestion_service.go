package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/affilinoanvesh/customer-insights/internal/analytics"
	"github.com/affilinoanvesh/customer-insights/internal/eventbus"
	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// OrderEventTopic is the stream new storefront orders arrive on.
const OrderEventTopic = "orders.placed"

// orderDateLayouts are the timestamp encodings storefront exports use.
// Tried in order; an undatable value leaves the order undated rather
// than rejecting it.
var orderDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// OrderInput is one incoming order in wire shape. Identifiers and the
// total stay loosely typed because sources disagree on numbers versus
// strings; normalization settles them before anything is stored.
type OrderInput struct {
	ID          any             `json:"id"`
	CustomerID  any             `json:"customer_id"`
	DateCreated string          `json:"date_created,omitempty"`
	Total       any             `json:"total"`
	LineItems   json.RawMessage `json:"line_items,omitempty"`
	Source      string          `json:"source,omitempty"`
	Customer    *CustomerInput  `json:"customer,omitempty"`
	Products    []ProductInput  `json:"products,omitempty"`
}

// CustomerInput is the optional customer stub riding along with an order.
type CustomerInput struct {
	ID    any    `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ProductInput is an id to display-name mapping riding along with an order.
type ProductInput struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

// OrderWriter persists order rows.
type OrderWriter interface {
	Upsert(ctx context.Context, order *models.Order) error
}

// CustomerWriter persists customer rows and re-derives their aggregates.
type CustomerWriter interface {
	Upsert(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	RefreshAggregates(ctx context.Context, customerID string) error
}

// ProductWriter persists product rows.
type ProductWriter interface {
	Upsert(ctx context.Context, product *models.Product) error
}

// IngestionService turns incoming orders from any source into stored
// rows and keeps customer aggregates consistent with the orders table.
// Aggregates are always re-derived from orders, never incremented, so
// replays and duplicate deliveries cannot drift them.
type IngestionService struct {
	orders    OrderWriter
	customers CustomerWriter
	products  ProductWriter
	bus       eventbus.EventBus
	sub       eventbus.Subscription
	logger    *zap.Logger
}

// NewIngestionService creates a new IngestionService. bus may be nil
// when only direct ingestion (imports, syncs) is needed.
func NewIngestionService(
	orders OrderWriter,
	customers CustomerWriter,
	products ProductWriter,
	bus eventbus.EventBus,
	logger *zap.Logger,
) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		orders:    orders,
		customers: customers,
		products:  products,
		bus:       bus,
		logger:    logger.Named("ingestion"),
	}
}

// Start subscribes to the order stream. It returns once the consumer is
// registered; delivery happens on the bus's goroutines.
func (s *IngestionService) Start(ctx context.Context) error {
	if s.bus == nil {
		s.logger.Info("no event bus configured, stream ingestion disabled")
		return nil
	}
	sub, err := s.bus.Subscribe(ctx, OrderEventTopic, s.handleOrderEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", OrderEventTopic, err)
	}
	s.sub = sub
	s.logger.Info("subscribed to order stream", zap.String("topic", OrderEventTopic))
	return nil
}

// Stop unsubscribes from the order stream.
func (s *IngestionService) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

// handleOrderEvent ingests one order event. Malformed payloads are
// dropped after logging; storage errors are returned so the message
// stays pending for redelivery.
func (s *IngestionService) handleOrderEvent(ctx context.Context, event map[string]interface{}) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var in OrderInput
	if err := json.Unmarshal(raw, &in); err != nil {
		s.logger.Error("failed to parse order event, dropping", zap.Error(err))
		return nil
	}
	if err := s.IngestOrder(ctx, in); err != nil {
		if isRecordError(err) {
			s.logger.Warn("dropping unusable order event", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// IngestOrder normalizes and stores one order, upserts any customer and
// product stubs it carries, and re-derives the customer's aggregates.
func (s *IngestionService) IngestOrder(ctx context.Context, in OrderInput) error {
	order, err := normalizeOrder(in)
	if err != nil {
		return err
	}

	if err := s.ensureCustomer(ctx, order.CustomerID, in.Customer); err != nil {
		return err
	}
	for _, p := range in.Products {
		id := analytics.IDValue(p.ID)
		if id == "" || strings.TrimSpace(p.Name) == "" {
			continue
		}
		if err := s.products.Upsert(ctx, &models.Product{ID: id, Name: p.Name}); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", id, err)
		}
	}

	if err := s.orders.Upsert(ctx, order); err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
	}

	if order.CustomerID != "" {
		if err := s.customers.RefreshAggregates(ctx, order.CustomerID); err != nil {
			return fmt.Errorf("failed to refresh aggregates for customer %s: %w", order.CustomerID, err)
		}
	}

	s.logger.Debug("order ingested",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("source", order.Source))
	return nil
}

// ImportOrders ingests a batch, skipping unusable records and refreshing
// each touched customer once at the end. It returns how many orders were
// stored; a storage error aborts the batch with the count so far.
func (s *IngestionService) ImportOrders(ctx context.Context, inputs []OrderInput) (int, error) {
	touched := map[string]struct{}{}
	imported := 0
	for _, in := range inputs {
		order, err := normalizeOrder(in)
		if err != nil {
			s.logger.Warn("skipping unusable import record", zap.Error(err))
			continue
		}
		if err := s.ensureCustomer(ctx, order.CustomerID, in.Customer); err != nil {
			return imported, err
		}
		for _, p := range in.Products {
			id := analytics.IDValue(p.ID)
			if id == "" || strings.TrimSpace(p.Name) == "" {
				continue
			}
			if err := s.products.Upsert(ctx, &models.Product{ID: id, Name: p.Name}); err != nil {
				return imported, fmt.Errorf("failed to upsert product %s: %w", id, err)
			}
		}
		if err := s.orders.Upsert(ctx, order); err != nil {
			return imported, fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
		}
		imported++
		if order.CustomerID != "" {
			touched[order.CustomerID] = struct{}{}
		}
	}

	for customerID := range touched {
		if err := s.customers.RefreshAggregates(ctx, customerID); err != nil {
			return imported, fmt.Errorf("failed to refresh aggregates for customer %s: %w", customerID, err)
		}
	}

	s.logger.Info("import finished",
		zap.Int("received", len(inputs)),
		zap.Int("imported", imported),
		zap.Int("customers_refreshed", len(touched)))
	return imported, nil
}

// ensureCustomer guarantees a customer row exists for the order. A stub
// riding along on the input refreshes email and name; otherwise a bare
// row is created so aggregates have somewhere to land.
func (s *IngestionService) ensureCustomer(ctx context.Context, customerID string, in *CustomerInput) error {
	if customerID == "" {
		return nil
	}
	customer := &models.Customer{ID: customerID}
	existing, err := s.customers.GetByID(ctx, customerID)
	if err == nil {
		customer = existing
	}
	if in != nil {
		if in.Email != "" {
			customer.Email = in.Email
		}
		if in.Name != "" {
			customer.Name = in.Name
		}
	}
	if err := s.customers.Upsert(ctx, customer); err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", customerID, err)
	}
	return nil
}

// normalizeOrder settles the loosely typed wire fields into a storable
// row. Only a missing order id rejects the record; everything else
// degrades (zero total, nil date, empty line items).
func normalizeOrder(in OrderInput) (*models.Order, error) {
	id := analytics.IDValue(in.ID)
	if id == "" {
		return nil, &recordError{reason: "order id missing"}
	}

	order := &models.Order{
		ID:         id,
		CustomerID: analytics.IDValue(in.CustomerID),
		Total:      analytics.AmountValue(in.Total),
		Source:     in.Source,
	}
	if order.Source == "" {
		order.Source = "import"
	}
	if t := parseOrderDate(in.DateCreated); t != nil {
		order.DateCreated = t
	}
	if items := analytics.DecodeLineItems(in.LineItems); len(items) > 0 {
		if raw, err := json.Marshal(items); err == nil {
			order.LineItems = datatypes.JSON(raw)
		}
	}
	return order, nil
}

// parseOrderDate tries each known layout and normalizes to UTC. Bare
// layouts without a zone are taken as UTC.
func parseOrderDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// recordError marks a failure confined to one input record. Handlers
// drop the record instead of retrying the delivery.
type recordError struct {
	reason string
}

func (e *recordError) Error() string { return e.reason }

func isRecordError(err error) bool {
	var re *recordError
	return errors.As(err, &re)
}
