package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/slab-orders/internal/config"
	"github.com/ariefcatur/slab-orders/internal/fulfillment"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/provider"
	"github.com/ariefcatur/slab-orders/internal/reconcile"
	"go.uber.org/zap"
)

// ErrUnresolvable means a payment event names no order we know. Redelivery
// can't fix it, so callers answer with a client error.
var ErrUnresolvable = errors.New("event does not resolve to an order")

type Purchases interface {
	ProcessPurchase(ctx context.Context, p reconcile.Purchase) (reconcile.Result, error)
	CancelExpiredCheckout(ctx context.Context, c reconcile.PaymentChange) (reconcile.ChangeResult, error)
	ProcessRefund(ctx context.Context, c reconcile.PaymentChange) (reconcile.ChangeResult, error)
}

type Tracker interface {
	ApplyTrackingUpdate(ctx context.Context, env config.Environment, orderID string, u fulfillment.Update) (orders.FulfillmentStatus, bool, error)
}

type PaymentDetails interface {
	CheckoutSession(ctx context.Context, id string) (provider.Details, error)
	PaymentIntent(ctx context.Context, id string) (provider.Details, error)
}

type StatusInvalidator interface {
	Invalidate(ctx context.Context, orderID string) error
}

type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeAnomalous  Outcome = "anomalous"
)

// Result is the acknowledgement body sent back to the provider.
type Result struct {
	Received bool    `json:"received"`
	OrderID  string  `json:"orderId,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Status   string  `json:"status,omitempty"`
}

func ack(orderID string, o Outcome) Result {
	return Result{Received: true, OrderID: orderID, Outcome: o}
}

// Receiver authenticates, normalizes and routes provider webhooks.
// Details and Cache are optional.
type Receiver struct {
	Lookup       orders.Lookup
	Purchases    Purchases
	Tracker      Tracker
	Details      PaymentDetails
	Cache        StatusInvalidator
	PaymentAuth  *Authenticator
	TrackingAuth *Authenticator
	Environment  config.Environment
	Log          *zap.Logger
}

// HandlePayment returns ErrInvalidSignature, ErrMalformedPayload or
// ErrUnresolvable for requests the provider should not retry. Any other
// error means the transaction failed and the provider should redeliver.
func (r *Receiver) HandlePayment(ctx context.Context, body []byte, signature string) (Result, error) {
	if err := r.PaymentAuth.Authenticate(body, signature); err != nil {
		return Result{}, err
	}
	ev, err := ParsePaymentEvent(body)
	if err != nil {
		r.Log.Warn("Malformed payment webhook", zap.Error(err))
		return Result{}, err
	}
	log := r.Log.With(zap.String("event_id", ev.EventID), zap.String("event_type", ev.EventType))

	switch ev.EventType {
	case EventCheckoutCompleted, EventPaymentSucceeded:
		return r.purchase(ctx, log, ev)
	case EventCheckoutExpired:
		return r.paymentChange(ctx, log, ev, r.Purchases.CancelExpiredCheckout)
	case EventChargeRefunded:
		return r.paymentChange(ctx, log, ev, r.Purchases.ProcessRefund)
	}
	log.Debug("Ignoring payment event type")
	return ack("", OutcomeIgnored), nil
}

func (r *Receiver) purchase(ctx context.Context, log *zap.Logger, ev PaymentEvent) (Result, error) {
	orderID, err := Resolve(ctx, r.Lookup, PaymentResolvers(ev)...)
	if err != nil {
		return Result{}, err
	}
	if orderID == "" {
		log.Warn("Payment event does not resolve to an order",
			zap.String("metadata_order_id", ev.OrderID), zap.String("session_id", ev.SessionID),
			zap.String("payment_intent_id", ev.PaymentIntentID))
		return Result{}, fmt.Errorf("%w: event %s", ErrUnresolvable, ev.EventID)
	}
	log = log.With(zap.String("order_id", orderID))
	ev = r.supplement(ctx, log, ev)

	res, err := r.Purchases.ProcessPurchase(ctx, reconcile.Purchase{
		OrderID:         orderID,
		PaymentIntentID: ev.PaymentIntentID,
		SessionID:       ev.SessionID,
		CustomerID:      ev.CustomerID,
		Amounts:         ev.Amounts,
		EventID:         ev.EventID,
		EventType:       ev.EventType,
		Extras:          ev.Extras,
	})
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return Result{}, fmt.Errorf("%w: %w", ErrUnresolvable, err)
	case errors.Is(err, orders.ErrInvalidTransition):
		log.Error("Payment confirmation for an order that cannot be paid", zap.Error(err))
		return ack(orderID, OutcomeAnomalous), nil
	case err != nil:
		return Result{}, err
	}

	if res.OrderAlreadyPaid {
		if res.ListingUpdated {
			r.invalidate(ctx, log, orderID)
		}
		return ack(orderID, OutcomeDuplicate), nil
	}
	r.invalidate(ctx, log, orderID)
	return ack(orderID, OutcomeProcessed), nil
}

// supplement fills customer and breakdown from the provider API. Failures
// only degrade what gets stored.
func (r *Receiver) supplement(ctx context.Context, log *zap.Logger, ev PaymentEvent) PaymentEvent {
	if r.Details == nil || (ev.Amounts != nil && ev.CustomerID != "") {
		return ev
	}
	var (
		d   provider.Details
		err error
	)
	switch {
	case ev.SessionID != "":
		d, err = r.Details.CheckoutSession(ctx, ev.SessionID)
	case ev.PaymentIntentID != "":
		d, err = r.Details.PaymentIntent(ctx, ev.PaymentIntentID)
	default:
		return ev
	}
	if err != nil {
		log.Warn("Supplementary payment data unavailable, continuing without it", zap.Error(err))
		return ev
	}
	if ev.Amounts == nil {
		ev.Amounts = d.Amounts
	}
	if ev.CustomerID == "" {
		ev.CustomerID = d.CustomerID
	}
	if ev.PaymentIntentID == "" {
		ev.PaymentIntentID = d.PaymentIntentID
	}
	return ev
}

func (r *Receiver) paymentChange(
	ctx context.Context,
	log *zap.Logger,
	ev PaymentEvent,
	apply func(context.Context, reconcile.PaymentChange) (reconcile.ChangeResult, error),
) (Result, error) {
	orderID, err := Resolve(ctx, r.Lookup, PaymentResolvers(ev)...)
	if err != nil {
		return Result{}, err
	}
	if orderID == "" {
		log.Warn("Payment change for unknown order, acknowledging",
			zap.String("session_id", ev.SessionID), zap.String("payment_intent_id", ev.PaymentIntentID))
		return ack("", OutcomeUnresolved), nil
	}
	res, err := apply(ctx, reconcile.PaymentChange{
		OrderID:         orderID,
		SessionID:       ev.SessionID,
		PaymentIntentID: ev.PaymentIntentID,
		EventID:         ev.EventID,
		EventType:       ev.EventType,
		RefundedCents:   ev.RefundedCents,
		Extras:          ev.Extras,
	})
	if errors.Is(err, orders.ErrOrderNotFound) {
		return ack("", OutcomeUnresolved), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !res.Applied {
		return ack(orderID, OutcomeIgnored), nil
	}
	r.invalidate(ctx, log, orderID)
	return ack(orderID, OutcomeProcessed), nil
}

// HandleTracking acknowledges everything except bad signatures and failed
// transactions; tracking updates for unknown shipments are routine.
func (r *Receiver) HandleTracking(ctx context.Context, body []byte, signature string) (Result, error) {
	if err := r.TrackingAuth.Authenticate(body, signature); err != nil {
		return Result{}, err
	}
	ev, err := ParseTrackingEvent(body)
	if err != nil {
		r.Log.Warn("Malformed tracking webhook, acknowledging", zap.Error(err))
		return ack("", OutcomeIgnored), nil
	}
	if ev.EventType != EventTrackUpdated {
		return ack("", OutcomeIgnored), nil
	}
	log := r.Log.With(zap.String("carrier", ev.Carrier), zap.String("tracking_number", ev.TrackingNumber))

	orderID, err := Resolve(ctx, r.Lookup, TrackingResolvers(ev)...)
	if err != nil {
		return Result{}, err
	}
	if orderID == "" {
		log.Warn("Tracking update for unknown shipment", zap.String("metadata_order_id", ev.OrderID))
		return ack("", OutcomeUnresolved), nil
	}

	status, applied, err := r.Tracker.ApplyTrackingUpdate(ctx, r.Environment, orderID, fulfillment.Update{
		RawStatus:          ev.RawStatus,
		StatusDetails:      ev.StatusDetails,
		StatusDate:         ev.StatusDate,
		Carrier:            ev.Carrier,
		TrackingNumber:     ev.TrackingNumber,
		TrackingProviderID: ev.TrackingProviderID,
		EventID:            ev.EventID,
		IsTest:             ev.IsTest,
		Environment:        ev.Environment,
		Extras:             ev.Extras,
	})
	if errors.Is(err, orders.ErrOrderNotFound) {
		log.Warn("Tracking update order vanished", zap.String("order_id", orderID))
		return ack("", OutcomeUnresolved), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return ack(orderID, OutcomeIgnored), nil
	}
	r.invalidate(ctx, log, orderID)
	res := ack(orderID, OutcomeProcessed)
	res.Status = string(status)
	return res, nil
}

func (r *Receiver) invalidate(ctx context.Context, log *zap.Logger, orderID string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Invalidate(ctx, orderID); err != nil {
		log.Warn("Order status cache invalidation failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
