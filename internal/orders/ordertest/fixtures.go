package ordertest

import (
	"time"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

var CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// PendingOrder is an unpaid, unshipped order for a $50.00 listing.
func PendingOrder(id, listingID string) orders.Order {
	return orders.Order{
		ID:                id,
		BuyerID:           "buyer-" + id,
		SellerID:          "seller-" + listingID,
		ListingID:         listingID,
		PaymentStatus:     orders.PaymentPending,
		FulfillmentStatus: orders.FulfillmentPending,
		Amounts: orders.Money{
			SubtotalCents: 5000,
			TotalCents:    5000,
			Currency:      "usd",
		},
		PaymentSessionID: "cs_" + id,
		Listing: orders.ListingSnapshot{
			Title:      "1999 Pokemon Base Set Charizard PSA 9",
			ImageURL:   "https://img.example.com/" + listingID + ".jpg",
			PriceCents: 5000,
		},
		CreatedAt: CreatedAt,
		UpdatedAt: CreatedAt,
	}
}

func PublishedListing(id string) orders.Listing {
	return orders.Listing{
		ID:         id,
		SellerID:   "seller-" + id,
		Title:      "1999 Pokemon Base Set Charizard PSA 9",
		PriceCents: 5000,
		Currency:   "usd",
		Status:     orders.ListingPublished,
		CreatedAt:  CreatedAt,
		UpdatedAt:  CreatedAt,
	}
}

// ShippedOrder is a paid order already in the given fulfillment state.
func ShippedOrder(id string, status orders.FulfillmentStatus) orders.Order {
	o := PendingOrder(id, "l-"+id)
	o.PaymentStatus = orders.PaymentPaid
	o.FulfillmentStatus = status
	if status != orders.FulfillmentException {
		o.LastProgressStatus = status
	}
	o.Carrier = "usps"
	o.TrackingNumber = "9400" + id
	return o
}
