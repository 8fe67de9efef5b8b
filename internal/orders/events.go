package orders

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of an OrderEvent timeline entry.
type EventType string

const (
	EventOrderCreated      EventType = "ORDER_CREATED"
	EventPaymentReceived   EventType = "PAYMENT_RECEIVED"
	EventOrderShipped      EventType = "ORDER_SHIPPED"
	EventInTransit         EventType = "IN_TRANSIT"
	EventOutForDelivery    EventType = "OUT_FOR_DELIVERY"
	EventDelivered         EventType = "DELIVERED"
	EventDeliveryException EventType = "DELIVERY_EXCEPTION"
	EventOrderCancelled    EventType = "ORDER_CANCELLED"
	EventPaymentRefunded   EventType = "PAYMENT_REFUNDED"
)

// ShipmentEventType maps an accepted fulfillment target to the timeline entry
// it produces.
func ShipmentEventType(s FulfillmentStatus) (EventType, bool) {
	switch s {
	case FulfillmentProcessing, FulfillmentShipped:
		return EventOrderShipped, true
	case FulfillmentInTransit:
		return EventInTransit, true
	case FulfillmentOutForDelivery:
		return EventOutForDelivery, true
	case FulfillmentDelivered:
		return EventDelivered, true
	case FulfillmentException:
		return EventDeliveryException, true
	}
	return "", false
}

// OrderEvent is an append-only timeline entry. Never updated or deleted.
type OrderEvent struct {
	ID         string
	OrderID    string
	Type       EventType
	OccurredAt time.Time
	Metadata   EventMetadata
}

// EventMetadata is a closed set of per-event-type payloads:
// CreatedMetadata, PaymentMetadata and TrackingMetadata.
type EventMetadata interface {
	eventMetadata()
}

type CreatedMetadata struct {
	ListingID string          `json:"listing_id,omitempty"`
	BuyerID   string          `json:"buyer_id,omitempty"`
	SellerID  string          `json:"seller_id,omitempty"`
	Listing   ListingSnapshot `json:"listing"`
}

// PaymentMetadata backs PAYMENT_RECEIVED, PAYMENT_REFUNDED and ORDER_CANCELLED.
type PaymentMetadata struct {
	ProviderEventID   string            `json:"provider_event_id,omitempty"`
	ProviderEventType string            `json:"provider_event_type,omitempty"`
	SessionID         string            `json:"session_id,omitempty"`
	PaymentIntentID   string            `json:"payment_intent_id,omitempty"`
	CustomerID        string            `json:"customer_id,omitempty"`
	Amounts           *Money            `json:"amounts,omitempty"`
	Extras            map[string]string `json:"extras,omitempty"`
}

// TrackingMetadata backs the shipment events.
type TrackingMetadata struct {
	RawStatus      string            `json:"raw_status"`
	StatusDetails  string            `json:"status_details,omitempty"`
	StatusDate     *time.Time        `json:"status_date,omitempty"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	Carrier        string            `json:"carrier,omitempty"`
	Extras         map[string]string `json:"extras,omitempty"`
}

func (CreatedMetadata) eventMetadata()  {}
func (PaymentMetadata) eventMetadata()  {}
func (TrackingMetadata) eventMetadata() {}

// DecodeMetadata parses stored metadata into the variant owned by t.
func DecodeMetadata(t EventType, raw []byte) (EventMetadata, error) {
	switch t {
	case EventOrderCreated:
		return decodeAs[CreatedMetadata](raw)
	case EventPaymentReceived, EventPaymentRefunded, EventOrderCancelled:
		return decodeAs[PaymentMetadata](raw)
	case EventOrderShipped, EventInTransit, EventOutForDelivery, EventDelivered, EventDeliveryException:
		return decodeAs[TrackingMetadata](raw)
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

func decodeAs[T EventMetadata](raw []byte) (EventMetadata, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return v, nil
}

// Envelope wraps everything this service publishes to kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or entity id
	Payload       json.RawMessage `json:"payload"`
}
