package reconcile

import (
	"context"
	"testing"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/orders/ordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelExpiredCheckout(t *testing.T) {
	tests := []struct {
		name        string
		status      orders.PaymentStatus
		wantApplied bool
		wantStatus  orders.PaymentStatus
	}{
		{"pending order is cancelled", orders.PaymentPending, true, orders.PaymentCancelled},
		{"paid order is untouched", orders.PaymentPaid, false, orders.PaymentPaid},
		{"already cancelled", orders.PaymentCancelled, false, orders.PaymentCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := ordertest.PendingOrder("o1", "l1")
			o.PaymentStatus = tt.status
			f.store.PutOrder(o)

			res, err := f.rec.CancelExpiredCheckout(context.Background(), PaymentChange{
				OrderID: "o1", SessionID: "cs_o1", EventID: "evt_exp", EventType: "checkout.session.expired",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, res.Applied)
			assert.Equal(t, tt.wantStatus, res.Order.PaymentStatus)

			cancelled := f.store.Events("o1", orders.EventOrderCancelled)
			if tt.wantApplied {
				require.Len(t, cancelled, 1)
				assert.Equal(t, "evt_exp", cancelled[0].Metadata.(orders.PaymentMetadata).ProviderEventID)
				assert.Len(t, f.audit.ByAction(audit.ActionOrderCancelled), 1)
			} else {
				assert.Empty(t, cancelled)
				assert.Empty(t, f.audit.Records())
			}
		})
	}
}

func TestProcessRefund(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(ordertest.ShippedOrder("o1", orders.FulfillmentDelivered))
	l := ordertest.PublishedListing("l-o1")
	l.Status = orders.ListingSold
	f.store.PutListing(l)
	change := PaymentChange{OrderID: "o1", PaymentIntentID: "pi_o1", EventID: "evt_ref", EventType: "charge.refunded", RefundedCents: 5000}

	res, err := f.rec.ProcessRefund(context.Background(), change)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, orders.PaymentRefunded, res.Order.PaymentStatus)

	// redelivery
	res, err = f.rec.ProcessRefund(context.Background(), change)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	refunds := f.store.Events("o1", orders.EventPaymentRefunded)
	require.Len(t, refunds, 1)
	meta := refunds[0].Metadata.(orders.PaymentMetadata)
	require.NotNil(t, meta.Amounts)
	assert.Equal(t, int64(5000), meta.Amounts.TotalCents)

	got, _ := f.store.Listing("l-o1")
	assert.Equal(t, orders.ListingSold, got.Status)
	assert.Equal(t, []notify.Kind{notify.KindRefundIssued}, f.notifier.kinds())
}

func TestProcessRefundUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	f.store.PutOrder(ordertest.PendingOrder("o1", "l1"))

	res, err := f.rec.ProcessRefund(context.Background(), PaymentChange{OrderID: "o1"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, orders.PaymentPending, res.Order.PaymentStatus)
}

func TestPaymentChangeOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.CancelExpiredCheckout(context.Background(), PaymentChange{OrderID: "nope"})
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
