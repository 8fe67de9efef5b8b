package orders

import (
	"context"
	"errors"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrListingNotFound = errors.New("listing not found")
)

// Store is the storage surface the reconciliation core runs against. Every
// read that decides a transition happens through a Tx inside WithTx.
type Store interface {
	Lookup

	// WithTx runs fn in one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (Order, error)
	ListEvents(ctx context.Context, orderID string) ([]OrderEvent, error)
}

// Lookup maps provider references to order ids. A miss is ("", nil).
type Lookup interface {
	OrderExists(ctx context.Context, id string) (bool, error)
	OrderIDBySession(ctx context.Context, sessionID string) (string, error)
	OrderIDByPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
	OrderIDByTracking(ctx context.Context, carrier, trackingNumber string) (string, error)
}

type Tx interface {
	// LockOrder loads the order and holds its row until the transaction ends.
	LockOrder(ctx context.Context, id string) (Order, error)
	LockListing(ctx context.Context, id string) (Listing, error)

	SavePayment(ctx context.Context, o Order) error
	SaveFulfillment(ctx context.Context, o Order) error

	// MarkListingSold flips PUBLISHED -> SOLD and reports whether it did.
	MarkListingSold(ctx context.Context, id string) (bool, error)

	AppendEvents(ctx context.Context, events ...OrderEvent) error
}
