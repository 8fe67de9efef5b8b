package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/provider"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

// Payment event types this service reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventChargeRefunded    = "charge.refunded"
)

const EventTrackUpdated = "track_updated"

// PaymentEvent is a payment processor notification in internal shape.
// Fields the event doesn't carry are empty.
type PaymentEvent struct {
	EventID         string
	EventType       string
	OrderID         string
	ListingID       string
	SessionID       string
	PaymentIntentID string
	CustomerID      string
	Amounts         *orders.Money
	RefundedCents   int64
	Extras          map[string]string
}

type paymentEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// metadata keys carrying domain meaning; anything else goes to Extras
var (
	orderIDKeys   = []string{"orderId", "order_id"}
	listingIDKeys = []string{"listingId", "listing_id"}
	sessionIDKeys = []string{"sessionId", "session_id"}
)

// ParsePaymentEvent normalizes a payment webhook body. Unknown event types
// parse fine with only EventID and EventType set.
func ParsePaymentEvent(body []byte) (PaymentEvent, error) {
	var env paymentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return PaymentEvent{}, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}
	ev := PaymentEvent{EventID: env.ID, EventType: env.Type}

	decode := func(v any) error {
		if len(env.Data.Object) == 0 {
			return fmt.Errorf("%w: %s has no data.object", ErrMalformedPayload, env.Type)
		}
		if err := json.Unmarshal(env.Data.Object, v); err != nil {
			return fmt.Errorf("%w: %s object: %v", ErrMalformedPayload, env.Type, err)
		}
		return nil
	}

	var meta map[string]string
	switch env.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var s provider.Session
		if err := decode(&s); err != nil {
			return PaymentEvent{}, err
		}
		ev.SessionID = s.ID
		ev.PaymentIntentID = string(s.PaymentIntent)
		ev.CustomerID = string(s.Customer)
		ev.Amounts = s.Money()
		ev.OrderID = s.ClientReferenceID
		meta = s.Metadata
	case EventPaymentSucceeded:
		var pi provider.PaymentIntent
		if err := decode(&pi); err != nil {
			return PaymentEvent{}, err
		}
		ev.PaymentIntentID = pi.ID
		ev.CustomerID = string(pi.Customer)
		meta = pi.Metadata
	case EventChargeRefunded:
		var ch provider.Charge
		if err := decode(&ch); err != nil {
			return PaymentEvent{}, err
		}
		ev.PaymentIntentID = string(ch.PaymentIntent)
		ev.CustomerID = string(ch.Customer)
		ev.RefundedCents = ch.AmountRefunded
		meta = ch.Metadata
	default:
		return ev, nil
	}

	if id := firstOf(meta, orderIDKeys); id != "" {
		ev.OrderID = id
	}
	ev.ListingID = firstOf(meta, listingIDKeys)
	if ev.SessionID == "" {
		ev.SessionID = firstOf(meta, sessionIDKeys)
	}
	ev.Extras = extras(meta, orderIDKeys, listingIDKeys, sessionIDKeys)
	if env.Livemode {
		if ev.Extras == nil {
			ev.Extras = map[string]string{}
		}
		ev.Extras["livemode"] = "true"
	}
	return ev, nil
}

func firstOf(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func extras(m map[string]string, known ...[]string) map[string]string {
	var out map[string]string
outer:
	for k, v := range m {
		for _, ks := range known {
			for _, kk := range ks {
				if k == kk {
					continue outer
				}
			}
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}

// TrackingEvent is a tracking provider notification in internal shape.
type TrackingEvent struct {
	EventType          string
	EventID            string
	Carrier            string
	TrackingNumber     string
	TrackingProviderID string
	RawStatus          string
	StatusDetails      string
	StatusDate         *time.Time

	// from the metadata string attached when the label was bought
	OrderID     string
	Environment string
	IsTest      bool

	Extras map[string]string
}

type trackingEnvelope struct {
	Event string `json:"event"`
	Test  bool   `json:"test"`
	Data  *struct {
		Carrier        string `json:"carrier"`
		TrackingNumber string `json:"tracking_number"`
		ObjectID       string `json:"object_id"`
		Metadata       string `json:"metadata"`
		TrackingStatus *struct {
			Status        string `json:"status"`
			StatusDetails string `json:"status_details"`
			StatusDate    string `json:"status_date"`
			ObjectID      string `json:"object_id"`
		} `json:"tracking_status"`
	} `json:"data"`
}

// ParseTrackingEvent normalizes a tracking webhook body. The metadata field
// is a JSON document encoded as a string; if it doesn't parse it is kept
// verbatim in Extras.
func ParseTrackingEvent(body []byte) (TrackingEvent, error) {
	var env trackingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TrackingEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return TrackingEvent{}, fmt.Errorf("%w: missing event", ErrMalformedPayload)
	}
	ev := TrackingEvent{EventType: env.Event, IsTest: env.Test}
	if env.Event != EventTrackUpdated {
		return ev, nil
	}
	if env.Data == nil || env.Data.TrackingNumber == "" || env.Data.TrackingStatus == nil {
		return TrackingEvent{}, fmt.Errorf("%w: track_updated without tracking number or status", ErrMalformedPayload)
	}

	d := env.Data
	ev.Carrier = strings.ToLower(strings.TrimSpace(d.Carrier))
	ev.TrackingNumber = strings.TrimSpace(d.TrackingNumber)
	ev.TrackingProviderID = d.ObjectID
	ev.RawStatus = d.TrackingStatus.Status
	ev.StatusDetails = d.TrackingStatus.StatusDetails
	ev.EventID = d.TrackingStatus.ObjectID

	if raw := d.TrackingStatus.StatusDate; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t = t.UTC()
			ev.StatusDate = &t
		} else {
			ev.setExtra("status_date", raw)
		}
	}
	if d.Metadata != "" {
		ev.applyMetadata(d.Metadata)
	}
	return ev, nil
}

func (ev *TrackingEvent) setExtra(k, v string) {
	if ev.Extras == nil {
		ev.Extras = map[string]string{}
	}
	ev.Extras[k] = v
}

func (ev *TrackingEvent) applyMetadata(raw string) {
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		ev.setExtra("metadata", raw)
		return
	}
	for k, v := range meta {
		switch k {
		case "orderId", "order_id":
			if s, ok := v.(string); ok {
				ev.OrderID = strings.TrimSpace(s)
			}
		case "environment":
			if s, ok := v.(string); ok {
				ev.Environment = s
			}
		case "isTest", "is_test":
			if truthy(v) {
				ev.IsTest = true
			}
		default:
			ev.setExtra(k, fmt.Sprint(v))
		}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}
