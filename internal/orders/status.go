package orders

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentPaid: true, PaymentCancelled: true},
	PaymentPaid:      {PaymentRefunded: true},
	PaymentCancelled: {},
	PaymentRefunded:  {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

type FulfillmentStatus string

const (
	FulfillmentPending        FulfillmentStatus = "PENDING"
	FulfillmentProcessing     FulfillmentStatus = "PROCESSING"
	FulfillmentShipped        FulfillmentStatus = "SHIPPED"
	FulfillmentInTransit      FulfillmentStatus = "IN_TRANSIT"
	FulfillmentOutForDelivery FulfillmentStatus = "OUT_FOR_DELIVERY"
	FulfillmentDelivered      FulfillmentStatus = "DELIVERED"
	FulfillmentException      FulfillmentStatus = "EXCEPTION"
)

// Total order over the non-exception statuses. EXCEPTION has no rank.
var fulfillmentRank = map[FulfillmentStatus]int{
	FulfillmentPending:        0,
	FulfillmentProcessing:     1,
	FulfillmentShipped:        2,
	FulfillmentInTransit:      3,
	FulfillmentOutForDelivery: 4,
	FulfillmentDelivered:      5,
}

// Rank returns the position of s in the forward ordering. ok is false for
// EXCEPTION and unknown values.
func (s FulfillmentStatus) Rank() (rank int, ok bool) {
	rank, ok = fulfillmentRank[s]
	return rank, ok
}

func (s FulfillmentStatus) Valid() bool {
	_, ok := fulfillmentRank[s]
	return ok || s == FulfillmentException
}

// CanAdvanceFulfillment decides whether an order currently at cur, whose last
// non-exception status is progress, may move to next.
//
// DELIVERED is terminal. EXCEPTION is accepted from any other state,
// including EXCEPTION; Order.AdvanceFulfillment drops exact repeats. Every
// other target must rank strictly above progress, so an order recovering
// from EXCEPTION is compared against where it was before the exception, not
// against EXCEPTION.
func CanAdvanceFulfillment(cur, progress, next FulfillmentStatus) bool {
	if cur == FulfillmentDelivered {
		return false
	}
	if next == FulfillmentException {
		return true
	}
	nextRank, ok := next.Rank()
	if !ok {
		return false
	}
	if progress == "" || progress == FulfillmentException {
		progress = cur
	}
	curRank, ok := progress.Rank()
	if !ok {
		// EXCEPTION with no recorded progress: anything forward of PENDING.
		curRank = 0
	}
	return nextRank > curRank
}

type ListingStatus string

const (
	ListingDraft     ListingStatus = "DRAFT"
	ListingPublished ListingStatus = "PUBLISHED"
	ListingSold      ListingStatus = "SOLD"
)
