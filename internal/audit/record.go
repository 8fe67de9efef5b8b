// Package audit keeps the append-only trail of every state transition the
// reconciliation core commits.
package audit

import (
	"context"
	"time"
)

const (
	EntityOrder   = "order"
	EntityListing = "listing"
)

const (
	ActionPaymentCompleted   = "order.payment_completed"
	ActionOrderCancelled     = "order.cancelled"
	ActionPaymentRefunded    = "order.payment_refunded"
	ActionFulfillmentUpdated = "order.fulfillment_updated"
	ActionListingSold        = "listing.sold"
)

type Record struct {
	ID          string            `json:"id"`
	EntityType  string            `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Action      string            `json:"action"`
	Actor       string            `json:"actor"`
	Changes     map[string]Change `json:"changes,omitempty"`
	Request     RequestMeta       `json:"request"`
	Correlation Correlation       `json:"correlation"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

// Change is a before/after pair for one field.
type Change struct {
	Before any `json:"before,omitempty"`
	After  any `json:"after,omitempty"`
}

type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Correlation struct {
	EventID        string `json:"event_id,omitempty"`
	EventType      string `json:"event_type,omitempty"`
	IdempotentSkip bool   `json:"idempotent_skip"`
}

// Recorder appends records somewhere durable. Callers run it outside the
// primary transaction and only log its errors.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

type requestMetaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

func RequestMetaFrom(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}
