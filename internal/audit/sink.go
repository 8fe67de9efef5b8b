package audit

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/slab-orders/internal/kafka"
	"github.com/ariefcatur/slab-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Appender is the durable side of the audit log.
type Appender interface {
	Append(ctx context.Context, r Record) error
}

// Sink is the kafka handler run by cmd/auditor.
type Sink struct {
	Store Appender
	Log   *zap.Logger
}

// Handle persists one audit envelope. Undecodable messages are dropped
// (returning nil commits them) since redelivery can't fix them.
func (s *Sink) Handle(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && t != EventAuditRecord {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Error("Dropping undecodable audit envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != EventAuditRecord {
		return nil
	}
	rec, err := kafkax.UnwrapPayload[Record](env.Payload)
	if err != nil {
		s.Log.Error("Dropping undecodable audit record", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if rec.ID == "" {
		rec.ID = env.EventID
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = env.OccurredAt
	}
	if err := s.Store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit record %s: %w", rec.ID, err)
	}
	s.Log.Debug("Audit record stored",
		zap.String("id", rec.ID), zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID), zap.String("action", rec.Action))
	return nil
}
