// Package fulfillment advances an order's shipment status from tracking
// provider notifications. Statuses only move forward; EXCEPTION can be
// entered from anywhere short of DELIVERED.
package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/config"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actorTrackingWebhook = "webhook:tracking"

// Update is one normalized tracking notification.
type Update struct {
	RawStatus          string
	StatusDetails      string
	StatusDate         *time.Time
	Carrier            string
	TrackingNumber     string
	TrackingProviderID string
	EventID            string

	// IsTest marks sandbox shipments; Environment is the deployment the
	// shipment was created from, when the notification says.
	IsTest      bool
	Environment string

	Extras map[string]string
}

// reason identifies an exception: raw status plus whatever detail the
// carrier gave.
func (u Update) reason() string {
	r := strings.ToUpper(strings.TrimSpace(u.RawStatus))
	if d := strings.TrimSpace(u.StatusDetails); d != "" {
		r += ": " + d
	}
	return r
}

type Machine struct {
	store    orders.Store
	audit    audit.Recorder
	notifier notify.Notifier
	log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(store orders.Store, rec audit.Recorder, notifier notify.Notifier, logger *zap.Logger) *Machine {
	return &Machine{
		store:    store,
		audit:    rec,
		notifier: notifier,
		log:      logger.With(zap.String("component", "fulfillment")),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// ApplyTrackingUpdate applies u to the order and returns the status it moved
// to. applied is false for unmapped statuses, stale or duplicate updates,
// and shipments that belong to another environment.
func (m *Machine) ApplyTrackingUpdate(ctx context.Context, env config.Environment, orderID string, u Update) (status orders.FulfillmentStatus, applied bool, err error) {
	log := m.log.With(zap.String("order_id", orderID), zap.String("raw_status", u.RawStatus), zap.String("tracking_number", u.TrackingNumber))

	if reason, skip := m.foreignShipment(env, u); skip {
		log.Info("Ignoring tracking update from another environment", zap.String("reason", reason))
		return "", false, nil
	}
	next, ok := MapStatus(u.RawStatus)
	if !ok {
		log.Warn("Unmapped tracking status, ignoring")
		return "", false, nil
	}

	var (
		updated orders.Order
		before  orders.FulfillmentStatus
	)
	err = m.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		applied = false
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		before = o.FulfillmentStatus
		now := m.now()
		if !o.AdvanceFulfillment(next, orders.Shipment{
			Carrier:            u.Carrier,
			TrackingNumber:     u.TrackingNumber,
			TrackingProviderID: u.TrackingProviderID,
			Reason:             u.reason(),
		}, now) {
			return nil
		}
		if err := tx.SaveFulfillment(ctx, o); err != nil {
			return err
		}
		evType, _ := orders.ShipmentEventType(next)
		if err := tx.AppendEvents(ctx, orders.OrderEvent{
			ID:         m.newID(),
			OrderID:    o.ID,
			Type:       evType,
			OccurredAt: now,
			Metadata: orders.TrackingMetadata{
				RawStatus:      u.RawStatus,
				StatusDetails:  u.StatusDetails,
				StatusDate:     u.StatusDate,
				TrackingNumber: u.TrackingNumber,
				Carrier:        u.Carrier,
				Extras:         u.Extras,
			},
		}); err != nil {
			return err
		}
		updated, applied = o, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("apply tracking update to %s: %w", orderID, err)
	}
	if !applied {
		log.Info("Tracking update does not advance order, ignoring", zap.String("target", string(next)))
		return "", false, nil
	}

	log.Info("Fulfillment status advanced", zap.String("from", string(before)), zap.String("to", string(next)))
	m.afterAdvance(ctx, updated, before, u)
	return next, true, nil
}

// foreignShipment reports whether u must not touch real orders in env.
func (m *Machine) foreignShipment(env config.Environment, u Update) (string, bool) {
	if u.IsTest && env == config.Production {
		return "test shipment in production", true
	}
	if u.Environment == "" {
		return "", false
	}
	origin, err := config.ParseEnvironment(u.Environment)
	if err != nil {
		m.log.Warn("Unrecognised environment in tracking metadata", zap.String("environment", u.Environment))
		return "", false
	}
	if origin != env {
		return fmt.Sprintf("shipment from %s", origin), true
	}
	return "", false
}

func (m *Machine) afterAdvance(ctx context.Context, o orders.Order, before orders.FulfillmentStatus, u Update) {
	if m.audit != nil {
		changes := map[string]audit.Change{
			"fulfillment_status": {Before: before, After: o.FulfillmentStatus},
		}
		if o.DeliveredAt != nil {
			changes["delivered_at"] = audit.Change{After: o.DeliveredAt}
		}
		if err := m.audit.Record(ctx, audit.Record{
			EntityType:  audit.EntityOrder,
			EntityID:    o.ID,
			Action:      audit.ActionFulfillmentUpdated,
			Actor:       actorTrackingWebhook,
			Changes:     changes,
			Correlation: audit.Correlation{EventID: u.EventID, EventType: u.RawStatus},
		}); err != nil {
			m.log.Error("Audit record failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	if m.notifier == nil {
		return
	}
	n, ok := notify.ShipmentUpdate(o, o.FulfillmentStatus, u.StatusDetails)
	if !ok {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.log.Error("Notification failed", zap.String("order_id", o.ID), zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}
