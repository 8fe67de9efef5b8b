package fulfillment

import (
	"strings"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

var rawStatusMap = map[string]orders.FulfillmentStatus{
	"PRE_TRANSIT":      orders.FulfillmentProcessing,
	"TRANSIT":          orders.FulfillmentInTransit,
	"OUT_FOR_DELIVERY": orders.FulfillmentOutForDelivery,
	"DELIVERED":        orders.FulfillmentDelivered,
	"RETURNED":         orders.FulfillmentException,
	"FAILURE":          orders.FulfillmentException,
	"UNKNOWN":          orders.FulfillmentException,
}

// MapStatus translates a tracking provider status. ok is false for statuses
// with no domain meaning.
func MapStatus(raw string) (orders.FulfillmentStatus, bool) {
	s, ok := rawStatusMap[strings.ToUpper(strings.TrimSpace(raw))]
	return s, ok
}
