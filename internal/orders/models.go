package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is a breakdown in minor currency units (cents).
type Money struct {
	SubtotalCents int64  `json:"subtotal_cents"`
	TaxCents      int64  `json:"tax_cents"`
	ShippingCents int64  `json:"shipping_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

// zero-decimal currencies; everything else is assumed to have two.
var zeroDecimal = map[string]bool{"jpy": true, "krw": true, "vnd": true, "clp": true}

// Display formats a minor-unit amount in major units, e.g. 5000 usd -> "50.00".
func Display(cents int64, currency string) string {
	if zeroDecimal[strings.ToLower(currency)] {
		return decimal.New(cents, 0).StringFixed(0)
	}
	return decimal.New(cents, -2).StringFixed(2)
}

type Listing struct {
	ID         string
	SellerID   string
	Title      string
	ImageURL   string
	PriceCents int64
	Currency   string
	Status     ListingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListingSnapshot is frozen on the order at checkout so later listing edits
// don't rewrite order history.
type ListingSnapshot struct {
	Title      string `json:"title"`
	ImageURL   string `json:"image_url"`
	PriceCents int64  `json:"price_cents"`
}

type Order struct {
	ID        string
	BuyerID   string
	SellerID  string
	ListingID string // empty when the listing reference was dropped

	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	// last non-exception fulfillment status, used to rank recovery out of EXCEPTION
	LastProgressStatus FulfillmentStatus
	// what the carrier reported for the current EXCEPTION; empty otherwise
	ExceptionReason string

	Amounts Money

	PaymentSessionID   string
	PaymentIntentID    string
	CustomerID         string
	Carrier            string
	TrackingNumber     string
	TrackingProviderID string
	ShippedAt          *time.Time
	DeliveredAt        *time.Time

	Listing ListingSnapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentUpdate carries what a payment confirmation contributes to an order.
// Amounts is nil when the provider gave no breakdown; the stored one is kept.
type PaymentUpdate struct {
	PaymentIntentID string
	CustomerID      string
	Amounts         *Money
}

// Shipment identifies the carrier shipment a tracking update refers to.
// Reason tells exceptions apart and is only read for EXCEPTION targets.
type Shipment struct {
	Carrier            string
	TrackingNumber     string
	TrackingProviderID string
	Reason             string
}

var ErrInvalidTransition = errors.New("invalid status transition")

// MarkPaid moves a PENDING order to PAID and merges the payment details.
func (o *Order) MarkPaid(u PaymentUpdate, now time.Time) error {
	if !CanTransitionPayment(o.PaymentStatus, PaymentPaid) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, PaymentPaid)
	}
	o.PaymentStatus = PaymentPaid
	if u.PaymentIntentID != "" {
		o.PaymentIntentID = u.PaymentIntentID
	}
	if u.CustomerID != "" {
		o.CustomerID = u.CustomerID
	}
	if u.Amounts != nil {
		amounts := *u.Amounts
		if amounts.Currency == "" {
			amounts.Currency = o.Amounts.Currency
		}
		o.Amounts = amounts
	}
	o.UpdatedAt = now
	return nil
}

func (o *Order) Cancel(now time.Time) error {
	return o.setPayment(PaymentCancelled, now)
}

func (o *Order) Refund(now time.Time) error {
	return o.setPayment(PaymentRefunded, now)
}

func (o *Order) setPayment(to PaymentStatus, now time.Time) error {
	if !CanTransitionPayment(o.PaymentStatus, to) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, to)
	}
	o.PaymentStatus = to
	o.UpdatedAt = now
	return nil
}

// AdvanceFulfillment applies next if the monotonic guard allows it and
// reports whether the order changed. A new EXCEPTION while already in
// EXCEPTION is applied only when its reason differs from the current one.
func (o *Order) AdvanceFulfillment(next FulfillmentStatus, sh Shipment, now time.Time) bool {
	if !CanAdvanceFulfillment(o.FulfillmentStatus, o.LastProgressStatus, next) {
		return false
	}
	if next == FulfillmentException && o.FulfillmentStatus == FulfillmentException && sh.Reason == o.ExceptionReason {
		return false
	}
	if o.FulfillmentStatus != FulfillmentException {
		o.LastProgressStatus = o.FulfillmentStatus
	}
	o.FulfillmentStatus = next
	if next == FulfillmentException {
		o.ExceptionReason = sh.Reason
	} else {
		o.LastProgressStatus = next
		o.ExceptionReason = ""
	}
	if o.Carrier == "" && sh.Carrier != "" {
		o.Carrier = sh.Carrier
	}
	if o.TrackingNumber == "" && sh.TrackingNumber != "" {
		o.TrackingNumber = sh.TrackingNumber
	}
	if sh.TrackingProviderID != "" {
		o.TrackingProviderID = sh.TrackingProviderID
	}
	if rank, ok := next.Rank(); ok && o.ShippedAt == nil {
		if transit, _ := FulfillmentInTransit.Rank(); rank >= transit {
			t := now
			o.ShippedAt = &t
		}
	}
	if next == FulfillmentDelivered {
		t := now
		o.DeliveredAt = &t
	}
	o.UpdatedAt = now
	return true
}
