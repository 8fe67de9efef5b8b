package provider

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

// ExpandableID decodes a reference that the processor sends either as a
// bare id or as the expanded object.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*e = ExpandableID(obj.ID)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*e = ExpandableID(s)
	return nil
}

type Session struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          ExpandableID      `json:"customer"`
	PaymentIntent     ExpandableID      `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountSubtotal    *int64            `json:"amount_subtotal"`
	AmountTotal       *int64            `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	TotalDetails      *struct {
		AmountTax      int64 `json:"amount_tax"`
		AmountShipping int64 `json:"amount_shipping"`
	} `json:"total_details"`
}

// Money returns the breakdown, or nil when the session carries no totals.
func (s Session) Money() *orders.Money {
	if s.AmountTotal == nil {
		return nil
	}
	m := &orders.Money{TotalCents: *s.AmountTotal, Currency: strings.ToLower(s.Currency)}
	if s.AmountSubtotal != nil {
		m.SubtotalCents = *s.AmountSubtotal
	} else {
		m.SubtotalCents = *s.AmountTotal
	}
	if s.TotalDetails != nil {
		m.TaxCents = s.TotalDetails.AmountTax
		m.ShippingCents = s.TotalDetails.AmountShipping
	}
	return m
}

type PaymentIntent struct {
	ID             string            `json:"id"`
	Customer       ExpandableID      `json:"customer"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

type Charge struct {
	ID             string            `json:"id"`
	PaymentIntent  ExpandableID      `json:"payment_intent"`
	Customer       ExpandableID      `json:"customer"`
	AmountRefunded int64             `json:"amount_refunded"`
	Refunded       bool              `json:"refunded"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}
