package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions/cs_1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"id": "cs_1",
			"customer": {"id": "cus_9", "object": "customer"},
			"payment_intent": "pi_1",
			"amount_subtotal": 5000,
			"amount_total": 5900,
			"currency": "USD",
			"total_details": {"amount_tax": 400, "amount_shipping": 500}
		}`))
	})
	mux.HandleFunc("/v1/payment_intents/pi_1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "pi_1", "customer": "cus_9", "amount": 5900, "currency": "usd"}`))
	})
	mux.HandleFunc("/v1/payment_intents/pi_broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckoutSession(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "sk_test", time.Second, zaptest.NewLogger(t))

	d, err := c.CheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_9", d.CustomerID)
	assert.Equal(t, "pi_1", d.PaymentIntentID)
	require.NotNil(t, d.Amounts)
	assert.Equal(t, orders.Money{SubtotalCents: 5000, TaxCents: 400, ShippingCents: 500, TotalCents: 5900, Currency: "usd"}, *d.Amounts)
}

func TestPaymentIntent(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "sk_test", time.Second, zaptest.NewLogger(t))

	d, err := c.PaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, Details{CustomerID: "cus_9", PaymentIntentID: "pi_1"}, d)
}

func TestProviderFailures(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "sk_test", time.Second, zaptest.NewLogger(t))

	_, err := c.PaymentIntent(context.Background(), "pi_broken")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = c.CheckoutSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	down := New("http://127.0.0.1:1", "sk_test", 200*time.Millisecond, zaptest.NewLogger(t))
	_, err = down.CheckoutSession(context.Background(), "cs_1")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestExpandableID(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"pi_1"`, "pi_1"},
		{`{"id":"pi_2","amount":1}`, "pi_2"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got ExpandableID
		require.NoError(t, json.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.Equal(t, ExpandableID(tt.want), got)
	}
}

func TestSessionMoneyWithoutTotals(t *testing.T) {
	assert.Nil(t, Session{ID: "cs_1"}.Money())

	total := int64(1200)
	m := Session{AmountTotal: &total, Currency: "JPY"}.Money()
	require.NotNil(t, m)
	assert.Equal(t, orders.Money{SubtotalCents: 1200, TotalCents: 1200, Currency: "jpy"}, *m)
}
