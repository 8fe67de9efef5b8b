package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"go.uber.org/zap"
)

// PaymentChange is an expiry or refund notification for a resolved order.
type PaymentChange struct {
	OrderID         string
	SessionID       string
	PaymentIntentID string
	EventID         string
	EventType       string
	RefundedCents   int64
	Extras          map[string]string
}

type ChangeResult struct {
	Order   orders.Order
	Applied bool
}

// CancelExpiredCheckout cancels a still PENDING order whose checkout
// expired. Any other payment status is left untouched.
func (r *Reconciler) CancelExpiredCheckout(ctx context.Context, c PaymentChange) (ChangeResult, error) {
	res, err := r.changePayment(ctx, c, orders.PaymentPending, orders.EventOrderCancelled, (*orders.Order).Cancel)
	if err != nil {
		return ChangeResult{}, fmt.Errorf("cancel order %s: %w", c.OrderID, err)
	}
	if res.Applied {
		r.log.Info("Checkout expired, order cancelled", zap.String("order_id", c.OrderID), zap.String("event_id", c.EventID))
		r.recordChange(ctx, c, audit.ActionOrderCancelled, orders.PaymentPending, res.Order.PaymentStatus)
	}
	return res, nil
}

// ProcessRefund moves a PAID order to REFUNDED. The listing stays SOLD.
func (r *Reconciler) ProcessRefund(ctx context.Context, c PaymentChange) (ChangeResult, error) {
	res, err := r.changePayment(ctx, c, orders.PaymentPaid, orders.EventPaymentRefunded, (*orders.Order).Refund)
	if err != nil {
		return ChangeResult{}, fmt.Errorf("refund order %s: %w", c.OrderID, err)
	}
	if res.Applied {
		r.log.Info("Order refunded", zap.String("order_id", c.OrderID), zap.Int64("refunded_cents", c.RefundedCents))
		r.recordChange(ctx, c, audit.ActionPaymentRefunded, orders.PaymentPaid, res.Order.PaymentStatus)
		r.send(ctx, notify.RefundIssued(res.Order))
	}
	return res, nil
}

func (r *Reconciler) changePayment(
	ctx context.Context,
	c PaymentChange,
	from orders.PaymentStatus,
	evType orders.EventType,
	apply func(o *orders.Order, now time.Time) error,
) (ChangeResult, error) {
	var res ChangeResult
	err := r.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		res = ChangeResult{}
		o, err := tx.LockOrder(ctx, c.OrderID)
		if err != nil {
			return err
		}
		res.Order = o
		if o.PaymentStatus != from {
			return nil
		}
		now := r.now()
		if err := apply(&o, now); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, o); err != nil {
			return err
		}
		meta := orders.PaymentMetadata{
			ProviderEventID:   c.EventID,
			ProviderEventType: c.EventType,
			SessionID:         c.SessionID,
			PaymentIntentID:   c.PaymentIntentID,
			CustomerID:        o.CustomerID,
			Extras:            c.Extras,
		}
		if c.RefundedCents > 0 {
			meta.Amounts = &orders.Money{TotalCents: c.RefundedCents, Currency: o.Amounts.Currency}
		}
		if err := tx.AppendEvents(ctx, orders.OrderEvent{
			ID:         r.newID(),
			OrderID:    o.ID,
			Type:       evType,
			OccurredAt: now,
			Metadata:   meta,
		}); err != nil {
			return err
		}
		res = ChangeResult{Order: o, Applied: true}
		return nil
	})
	return res, err
}

func (r *Reconciler) recordChange(ctx context.Context, c PaymentChange, action string, before, after orders.PaymentStatus) {
	r.record(ctx, audit.Record{
		EntityType:  audit.EntityOrder,
		EntityID:    c.OrderID,
		Action:      action,
		Actor:       actorPaymentWebhook,
		Changes:     map[string]audit.Change{"payment_status": {Before: before, After: after}},
		Correlation: audit.Correlation{EventID: c.EventID, EventType: c.EventType},
	})
}
