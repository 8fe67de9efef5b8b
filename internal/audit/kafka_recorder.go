package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/slab-orders/internal/kafka"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/google/uuid"
)

const EventAuditRecord = "AUDIT_RECORD"

// KafkaRecorder publishes records to the audit topic; cmd/auditor persists
// them.
type KafkaRecorder struct {
	Publisher kafkax.Publisher
	Service   string
	Now       func() time.Time
}

func (k *KafkaRecorder) Record(ctx context.Context, r Record) error {
	now := time.Now().UTC()
	if k.Now != nil {
		now = k.Now()
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = now
	}
	if r.Request == (RequestMeta{}) {
		r.Request = RequestMetaFrom(ctx)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	env := orders.Envelope{
		EventID:       r.ID,
		EventType:     EventAuditRecord,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      k.Service,
		TraceID:       r.Request.RequestID,
		CorrelationID: r.EntityID,
		Payload:       payload,
	}
	if err := k.Publisher.Publish(ctx, orders.PartitionKey(r.EntityID), kafkax.MustMarshal(env),
		kafkax.EventHeaders(EventAuditRecord, 1)...); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}
