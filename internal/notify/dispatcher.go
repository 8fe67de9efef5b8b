package notify

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/slab-orders/internal/kafka"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const EventEmailRequested = "EMAIL_REQUESTED"

// Dispatcher queues email requests on kafka. A redis claim per
// (order, kind, recipient role, occurrence) keeps concurrent deliveries from sending
// the same email twice.
type Dispatcher struct {
	pub      kafkax.Publisher
	rdb      redis.Cmdable
	dedupTTL time.Duration
	service  string
	log      *zap.Logger
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher builds a Dispatcher. rdb may be nil, which disables dedup.
func NewDispatcher(pub kafkax.Publisher, rdb redis.Cmdable, dedupTTL time.Duration, service string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pub:      pub,
		rdb:      rdb,
		dedupTTL: dedupTTL,
		service:  service,
		log:      logger.With(zap.String("component", "notify")),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	slot := string(n.Kind) + ":" + string(n.Role)
	if n.Occurrence != "" {
		slot += ":" + n.Occurrence
	}
	key := redisx.NotifyKey(n.OrderID, slot)
	claimed := false
	if d.rdb != nil {
		won, err := redisx.Claim(ctx, d.rdb, key, d.dedupTTL)
		switch {
		case err != nil:
			d.log.Warn("Notification dedup unavailable, sending anyway",
				zap.String("order_id", n.OrderID), zap.String("kind", string(n.Kind)), zap.Error(err))
		case !won:
			d.log.Info("Notification already sent",
				zap.String("order_id", n.OrderID), zap.String("kind", string(n.Kind)))
			return nil
		default:
			claimed = true
		}
	}

	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventEmailRequested,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      d.service,
		CorrelationID: n.OrderID,
		Payload:       kafkax.MustMarshal(n),
	}
	if err := d.pub.Publish(ctx, orders.PartitionKey(n.OrderID), kafkax.MustMarshal(env),
		kafkax.EventHeaders(EventEmailRequested, 1)...); err != nil {
		if claimed {
			// let a later delivery try again
			if derr := d.rdb.Del(context.WithoutCancel(ctx), key).Err(); derr != nil {
				d.log.Warn("Releasing notification claim", zap.String("key", key), zap.Error(derr))
			}
		}
		return fmt.Errorf("queue %s email for order %s: %w", n.Kind, n.OrderID, err)
	}
	d.log.Info("Notification queued",
		zap.String("order_id", n.OrderID), zap.String("kind", string(n.Kind)), zap.String("role", string(n.Role)))
	return nil
}
