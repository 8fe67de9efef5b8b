package webhook

import (
	"context"
	"fmt"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

// Resolver tries one way of finding the order an event refers to. A miss is
// ("", nil).
type Resolver func(ctx context.Context, l orders.Lookup) (string, error)

// Resolve runs strategies in order and returns the first match.
func Resolve(ctx context.Context, l orders.Lookup, strategies ...Resolver) (string, error) {
	for _, s := range strategies {
		id, err := s(ctx, l)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

// ByExplicitID matches an order id carried in the event metadata, if such an
// order exists.
func ByExplicitID(orderID string) Resolver {
	return func(ctx context.Context, l orders.Lookup) (string, error) {
		if orderID == "" {
			return "", nil
		}
		ok, err := l.OrderExists(ctx, orderID)
		if err != nil {
			return "", fmt.Errorf("lookup order %s: %w", orderID, err)
		}
		if !ok {
			return "", nil
		}
		return orderID, nil
	}
}

func BySession(sessionID string) Resolver {
	return func(ctx context.Context, l orders.Lookup) (string, error) {
		if sessionID == "" {
			return "", nil
		}
		return l.OrderIDBySession(ctx, sessionID)
	}
}

func ByPaymentIntent(paymentIntentID string) Resolver {
	return func(ctx context.Context, l orders.Lookup) (string, error) {
		if paymentIntentID == "" {
			return "", nil
		}
		return l.OrderIDByPaymentIntent(ctx, paymentIntentID)
	}
}

func ByTracking(carrier, trackingNumber string) Resolver {
	return func(ctx context.Context, l orders.Lookup) (string, error) {
		if carrier == "" || trackingNumber == "" {
			return "", nil
		}
		return l.OrderIDByTracking(ctx, carrier, trackingNumber)
	}
}

// PaymentResolvers is the resolution order for payment events.
func PaymentResolvers(ev PaymentEvent) []Resolver {
	return []Resolver{
		ByExplicitID(ev.OrderID),
		BySession(ev.SessionID),
		ByPaymentIntent(ev.PaymentIntentID),
	}
}

// TrackingResolvers is the resolution order for tracking events.
func TrackingResolvers(ev TrackingEvent) []Resolver {
	return []Resolver{
		ByExplicitID(ev.OrderID),
		ByTracking(ev.Carrier, ev.TrackingNumber),
	}
}
