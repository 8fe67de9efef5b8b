package notify

import (
	"context"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

type Kind string

const (
	KindPurchaseConfirmation Kind = "purchase_confirmation"
	KindSaleNotification     Kind = "sale_notification"
	KindShipmentInTransit    Kind = "shipment_in_transit"
	KindShipmentDelivered    Kind = "shipment_delivered"
	KindDeliveryException    Kind = "delivery_exception"
	KindRefundIssued         Kind = "refund_issued"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Notification is one email the external renderer should send. The renderer
// resolves the recipient's address from the user id.
type Notification struct {
	Kind        Kind              `json:"kind"`
	OrderID     string            `json:"order_id"`
	Role        Role              `json:"recipient_role"`
	RecipientID string            `json:"recipient_id"`
	Data        map[string]string `json:"data,omitempty"`

	// Occurrence separates emails of the same kind that are each worth
	// sending, e.g. two different delivery exceptions.
	Occurrence string `json:"-"`
}

// Notifier sends notifications. Errors are for logging only; state never
// depends on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

func orderData(o orders.Order) map[string]string {
	d := map[string]string{
		"order_id":      o.ID,
		"listing_title": o.Listing.Title,
		"total":         orders.Display(o.Amounts.TotalCents, o.Amounts.Currency),
		"currency":      o.Amounts.Currency,
	}
	if o.Listing.ImageURL != "" {
		d["listing_image_url"] = o.Listing.ImageURL
	}
	return d
}

func PurchaseConfirmation(o orders.Order) Notification {
	d := orderData(o)
	d["subtotal"] = orders.Display(o.Amounts.SubtotalCents, o.Amounts.Currency)
	d["tax"] = orders.Display(o.Amounts.TaxCents, o.Amounts.Currency)
	d["shipping"] = orders.Display(o.Amounts.ShippingCents, o.Amounts.Currency)
	return Notification{Kind: KindPurchaseConfirmation, OrderID: o.ID, Role: RoleBuyer, RecipientID: o.BuyerID, Data: d}
}

func SaleNotification(o orders.Order) Notification {
	return Notification{Kind: KindSaleNotification, OrderID: o.ID, Role: RoleSeller, RecipientID: o.SellerID, Data: orderData(o)}
}

func RefundIssued(o orders.Order) Notification {
	return Notification{Kind: KindRefundIssued, OrderID: o.ID, Role: RoleBuyer, RecipientID: o.BuyerID, Data: orderData(o)}
}

// ShipmentUpdate returns the buyer email for an applied fulfillment status,
// or false when the status has none.
func ShipmentUpdate(o orders.Order, status orders.FulfillmentStatus, reason string) (Notification, bool) {
	var kind Kind
	switch status {
	case orders.FulfillmentInTransit:
		kind = KindShipmentInTransit
	case orders.FulfillmentDelivered:
		kind = KindShipmentDelivered
	case orders.FulfillmentException:
		kind = KindDeliveryException
	default:
		return Notification{}, false
	}
	d := orderData(o)
	d["carrier"] = o.Carrier
	d["tracking_number"] = o.TrackingNumber
	n := Notification{Kind: kind, OrderID: o.ID, Role: RoleBuyer, RecipientID: o.BuyerID, Data: d}
	if kind == KindDeliveryException {
		d["reason"] = reason
		n.Occurrence = o.ExceptionReason
	}
	return n, true
}
