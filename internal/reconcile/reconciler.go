// Package reconcile turns confirmed payment notifications into order and
// listing state. Every decision is made inside one store transaction; audit
// and email run afterwards and never undo committed state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actorPaymentWebhook = "webhook:payment"

// Purchase is a resolved payment confirmation.
type Purchase struct {
	OrderID         string
	PaymentIntentID string
	SessionID       string
	CustomerID      string
	Amounts         *orders.Money
	EventID         string
	EventType       string
	Extras          map[string]string
}

type Result struct {
	Order            orders.Order
	ListingUpdated   bool
	OrderAlreadyPaid bool
}

type Reconciler struct {
	store    orders.Store
	audit    audit.Recorder
	notifier notify.Notifier
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(store orders.Store, rec audit.Recorder, notifier notify.Notifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		audit:    rec,
		notifier: notifier,
		log:      logger.With(zap.String("component", "purchase-reconciler")),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// ProcessPurchase marks the order PAID and its listing SOLD exactly once no
// matter how often or how concurrently the confirmation is delivered.
// A missing order is orders.ErrOrderNotFound.
func (r *Reconciler) ProcessPurchase(ctx context.Context, p Purchase) (Result, error) {
	var (
		res    Result
		before orders.PaymentStatus
	)
	err := r.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		res = Result{}
		o, err := tx.LockOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		before = o.PaymentStatus

		// REFUNDED implies the payment was received earlier; a late replay
		// of the confirmation must not fail forever.
		res.OrderAlreadyPaid = o.PaymentStatus == orders.PaymentPaid || o.PaymentStatus == orders.PaymentRefunded

		if !res.OrderAlreadyPaid {
			now := r.now()
			if err := o.MarkPaid(orders.PaymentUpdate{
				PaymentIntentID: p.PaymentIntentID,
				CustomerID:      p.CustomerID,
				Amounts:         p.Amounts,
			}, now); err != nil {
				return err
			}
			if err := tx.SavePayment(ctx, o); err != nil {
				return err
			}
			created := orders.OrderEvent{
				ID:         r.newID(),
				OrderID:    o.ID,
				Type:       orders.EventOrderCreated,
				OccurredAt: o.CreatedAt,
				Metadata: orders.CreatedMetadata{
					ListingID: o.ListingID,
					BuyerID:   o.BuyerID,
					SellerID:  o.SellerID,
					Listing:   o.Listing,
				},
			}
			amounts := o.Amounts
			paid := orders.OrderEvent{
				ID:         r.newID(),
				OrderID:    o.ID,
				Type:       orders.EventPaymentReceived,
				OccurredAt: now,
				Metadata: orders.PaymentMetadata{
					ProviderEventID:   p.EventID,
					ProviderEventType: p.EventType,
					SessionID:         p.SessionID,
					PaymentIntentID:   o.PaymentIntentID,
					CustomerID:        o.CustomerID,
					Amounts:           &amounts,
					Extras:            p.Extras,
				},
			}
			if err := tx.AppendEvents(ctx, created, paid); err != nil {
				return err
			}
		}

		if o.ListingID != "" {
			updated, err := r.sellListing(ctx, tx, o)
			if err != nil {
				return err
			}
			res.ListingUpdated = updated
		}
		res.Order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			r.log.Error("Payment confirmation for unknown order, check checkout metadata",
				zap.String("order_id", p.OrderID), zap.String("event_id", p.EventID), zap.String("event_type", p.EventType))
		}
		return Result{}, fmt.Errorf("process purchase %s: %w", p.OrderID, err)
	}

	if res.OrderAlreadyPaid {
		r.log.Info("Payment already recorded, skipping",
			zap.String("order_id", p.OrderID), zap.String("event_id", p.EventID), zap.Bool("listing_updated", res.ListingUpdated))
	} else {
		r.log.Info("Order paid",
			zap.String("order_id", p.OrderID), zap.String("event_id", p.EventID),
			zap.Int64("total_cents", res.Order.Amounts.TotalCents), zap.Bool("listing_updated", res.ListingUpdated))
	}

	r.afterPurchase(ctx, p, before, res)
	return res, nil
}

// sellListing flips PUBLISHED -> SOLD. Every other state is left alone.
func (r *Reconciler) sellListing(ctx context.Context, tx orders.Tx, o orders.Order) (bool, error) {
	l, err := tx.LockListing(ctx, o.ListingID)
	if errors.Is(err, orders.ErrListingNotFound) {
		r.log.Warn("Paid order references a missing listing", zap.String("order_id", o.ID), zap.String("listing_id", o.ListingID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch l.Status {
	case orders.ListingPublished:
		return tx.MarkListingSold(ctx, l.ID)
	case orders.ListingSold:
		return false, nil
	default:
		r.log.Warn("Paid order references a listing that is not for sale",
			zap.String("order_id", o.ID), zap.String("listing_id", l.ID), zap.String("listing_status", string(l.Status)))
		return false, nil
	}
}

func (r *Reconciler) afterPurchase(ctx context.Context, p Purchase, before orders.PaymentStatus, res Result) {
	corr := audit.Correlation{EventID: p.EventID, EventType: p.EventType, IdempotentSkip: res.OrderAlreadyPaid}

	rec := audit.Record{
		EntityType:  audit.EntityOrder,
		EntityID:    res.Order.ID,
		Action:      audit.ActionPaymentCompleted,
		Actor:       actorPaymentWebhook,
		Correlation: corr,
	}
	if !res.OrderAlreadyPaid {
		rec.Changes = map[string]audit.Change{
			"payment_status": {Before: before, After: res.Order.PaymentStatus},
			"total_cents":    {After: res.Order.Amounts.TotalCents},
		}
		if res.Order.CustomerID != "" {
			rec.Changes["customer_id"] = audit.Change{After: res.Order.CustomerID}
		}
	}
	r.record(ctx, rec)

	if res.ListingUpdated {
		r.record(ctx, audit.Record{
			EntityType:  audit.EntityListing,
			EntityID:    res.Order.ListingID,
			Action:      audit.ActionListingSold,
			Actor:       actorPaymentWebhook,
			Changes:     map[string]audit.Change{"status": {Before: orders.ListingPublished, After: orders.ListingSold}},
			Correlation: corr,
		})
	}

	if res.OrderAlreadyPaid {
		return
	}
	r.send(ctx, notify.PurchaseConfirmation(res.Order))
	r.send(ctx, notify.SaleNotification(res.Order))
}

func (r *Reconciler) record(ctx context.Context, rec audit.Record) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, rec); err != nil {
		r.log.Error("Audit record failed",
			zap.String("entity_type", rec.EntityType), zap.String("entity_id", rec.EntityID),
			zap.String("action", rec.Action), zap.Error(err))
	}
}

func (r *Reconciler) send(ctx context.Context, n notify.Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.log.Error("Notification failed",
			zap.String("order_id", n.OrderID), zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}
