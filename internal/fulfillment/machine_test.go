package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/slab-orders/internal/audit"
	"github.com/ariefcatur/slab-orders/internal/config"
	"github.com/ariefcatur/slab-orders/internal/notify"
	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/orders/ordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var appliedAt = time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	store    *ordertest.Store
	audit    *audit.Memory
	notifier *recordingNotifier
	machine  *Machine
}

func newFixture(t *testing.T, seed ...orders.Order) *fixture {
	t.Helper()
	f := &fixture{store: ordertest.New(), audit: &audit.Memory{}, notifier: &recordingNotifier{}}
	for _, o := range seed {
		f.store.PutOrder(o)
	}
	f.machine = New(f.store, f.audit, f.notifier, zaptest.NewLogger(t))
	f.machine.now = func() time.Time { return appliedAt }
	var seq atomic.Int64
	f.machine.newID = func() string { return fmt.Sprintf("ev-%d", seq.Add(1)) }
	return f
}

func (f *fixture) order(t *testing.T, id string) orders.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func track(raw string) Update {
	return Update{RawStatus: raw, Carrier: "usps", TrackingNumber: "9400o1", EventID: "trk-" + raw}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want orders.FulfillmentStatus
		ok   bool
	}{
		{"DELIVERED", orders.FulfillmentDelivered, true},
		{"TRANSIT", orders.FulfillmentInTransit, true},
		{"OUT_FOR_DELIVERY", orders.FulfillmentOutForDelivery, true},
		{"RETURNED", orders.FulfillmentException, true},
		{"FAILURE", orders.FulfillmentException, true},
		{"UNKNOWN", orders.FulfillmentException, true},
		{"PRE_TRANSIT", orders.FulfillmentProcessing, true},
		{" transit ", orders.FulfillmentInTransit, true},
		{"AVAILABLE_FOR_PICKUP", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := MapStatus(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeliveredIgnoresLateTransit(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o2", orders.FulfillmentDelivered))
	before := f.order(t, "o2")

	status, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o2", track("TRANSIT"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, status)
	assert.Equal(t, before, f.order(t, "o2"))
	assert.Empty(t, f.store.Events("o2"))
	assert.Empty(t, f.notifier.sent)
}

func TestUnknownStatusRaisesException(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o3", orders.FulfillmentShipped))
	u := track("UNKNOWN")
	u.StatusDetails = "Carrier lost the package scan"

	status, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o3", u)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, orders.FulfillmentException, status)

	o := f.order(t, "o3")
	assert.Equal(t, orders.FulfillmentException, o.FulfillmentStatus)
	assert.Equal(t, orders.FulfillmentShipped, o.LastProgressStatus)

	evs := f.store.Events("o3")
	require.Len(t, evs, 1)
	assert.Equal(t, orders.EventDeliveryException, evs[0].Type)
	meta := evs[0].Metadata.(orders.TrackingMetadata)
	assert.Equal(t, "UNKNOWN", meta.RawStatus)
	assert.Equal(t, "Carrier lost the package scan", meta.StatusDetails)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.KindDeliveryException, f.notifier.sent[0].Kind)
	assert.Equal(t, "Carrier lost the package scan", f.notifier.sent[0].Data["reason"])

	recs := f.audit.ByAction(audit.ActionFulfillmentUpdated)
	require.Len(t, recs, 1)
	assert.Equal(t, orders.FulfillmentShipped, recs[0].Changes["fulfillment_status"].Before)
}

func TestEveryDistinctExceptionIsRecorded(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o3", orders.FulfillmentShipped))
	ctx := context.Background()

	status, applied, err := f.machine.ApplyTrackingUpdate(ctx, config.Production, "o3", track("FAILURE"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, orders.FulfillmentException, status)

	_, applied, err = f.machine.ApplyTrackingUpdate(ctx, config.Production, "o3", track("FAILURE"))
	require.NoError(t, err)
	assert.False(t, applied, "same exception redelivered")

	status, applied, err = f.machine.ApplyTrackingUpdate(ctx, config.Production, "o3", track("RETURNED"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, orders.FulfillmentException, status)

	evs := f.store.Events("o3", orders.EventDeliveryException)
	require.Len(t, evs, 2)
	assert.Equal(t, "FAILURE", evs[0].Metadata.(orders.TrackingMetadata).RawStatus)
	assert.Equal(t, "RETURNED", evs[1].Metadata.(orders.TrackingMetadata).RawStatus)

	o := f.order(t, "o3")
	assert.Equal(t, "RETURNED", o.ExceptionReason)
	assert.Equal(t, orders.FulfillmentShipped, o.LastProgressStatus)

	assert.Len(t, f.audit.ByAction(audit.ActionFulfillmentUpdated), 2)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "FAILURE", f.notifier.sent[0].Occurrence)
	assert.Equal(t, "RETURNED", f.notifier.sent[1].Occurrence)
}

func TestUnmappedStatusIsNoop(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o1", orders.FulfillmentShipped))
	before := f.order(t, "o1")

	status, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Development, "o1", track("AVAILABLE_FOR_PICKUP"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, status)
	assert.Equal(t, before, f.order(t, "o1"))
	assert.Empty(t, f.store.Events("o1"))
}

func TestMonotonicSequences(t *testing.T) {
	tests := []struct {
		name     string
		sequence []string
		want     orders.FulfillmentStatus
		events   []orders.EventType
	}{
		{
			name:     "in order",
			sequence: []string{"PRE_TRANSIT", "TRANSIT", "OUT_FOR_DELIVERY", "DELIVERED"},
			want:     orders.FulfillmentDelivered,
			events:   []orders.EventType{orders.EventOrderShipped, orders.EventInTransit, orders.EventOutForDelivery, orders.EventDelivered},
		},
		{
			name:     "out of order deliveries",
			sequence: []string{"DELIVERED", "TRANSIT", "PRE_TRANSIT", "OUT_FOR_DELIVERY"},
			want:     orders.FulfillmentDelivered,
			events:   []orders.EventType{orders.EventDelivered},
		},
		{
			name:     "duplicates",
			sequence: []string{"TRANSIT", "TRANSIT", "TRANSIT"},
			want:     orders.FulfillmentInTransit,
			events:   []orders.EventType{orders.EventInTransit},
		},
		{
			name:     "recovery out of exception",
			sequence: []string{"TRANSIT", "FAILURE", "TRANSIT", "DELIVERED"},
			want:     orders.FulfillmentDelivered,
			events:   []orders.EventType{orders.EventInTransit, orders.EventDeliveryException, orders.EventDelivered},
		},
		{
			name:     "redelivered exception",
			sequence: []string{"TRANSIT", "FAILURE", "FAILURE"},
			want:     orders.FulfillmentException,
			events:   []orders.EventType{orders.EventInTransit, orders.EventDeliveryException},
		},
		{
			name:     "second exception",
			sequence: []string{"TRANSIT", "FAILURE", "RETURNED"},
			want:     orders.FulfillmentException,
			events:   []orders.EventType{orders.EventInTransit, orders.EventDeliveryException, orders.EventDeliveryException},
		},
		{
			name:     "exception after delivered",
			sequence: []string{"DELIVERED", "RETURNED"},
			want:     orders.FulfillmentDelivered,
			events:   []orders.EventType{orders.EventDelivered},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ordertest.PendingOrder("o1", "l1")
			o.PaymentStatus = orders.PaymentPaid
			f := newFixture(t, o)
			for _, raw := range tt.sequence {
				_, _, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", track(raw))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, f.order(t, "o1").FulfillmentStatus)

			var got []orders.EventType
			for _, ev := range f.store.Events("o1") {
				got = append(got, ev.Type)
			}
			assert.Equal(t, tt.events, got)
		})
	}
}

func TestShipmentRecording(t *testing.T) {
	o := ordertest.PendingOrder("o1", "l1")
	o.PaymentStatus = orders.PaymentPaid
	f := newFixture(t, o)

	u := track("PRE_TRANSIT")
	u.TrackingProviderID = "trk_obj_1"
	_, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", u)
	require.NoError(t, err)
	require.True(t, applied)

	got := f.order(t, "o1")
	assert.Equal(t, "usps", got.Carrier)
	assert.Equal(t, "9400o1", got.TrackingNumber)
	assert.Equal(t, "trk_obj_1", got.TrackingProviderID)
	assert.Nil(t, got.ShippedAt)

	_, _, err = f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", track("TRANSIT"))
	require.NoError(t, err)
	_, _, err = f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", track("DELIVERED"))
	require.NoError(t, err)

	got = f.order(t, "o1")
	require.NotNil(t, got.ShippedAt)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, appliedAt, *got.DeliveredAt)

	var kinds []notify.Kind
	for _, n := range f.notifier.sent {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []notify.Kind{notify.KindShipmentInTransit, notify.KindShipmentDelivered}, kinds)
}

func TestEnvironmentIsolation(t *testing.T) {
	tests := []struct {
		name        string
		env         config.Environment
		isTest      bool
		origin      string
		wantApplied bool
	}{
		{name: "test shipment in production", env: config.Production, isTest: true},
		{name: "test shipment in development", env: config.Development, isTest: true, wantApplied: true},
		{name: "live shipment in production", env: config.Production, wantApplied: true},
		{name: "staging shipment in production", env: config.Production, origin: "staging"},
		{name: "matching origin", env: config.Staging, origin: "staging", wantApplied: true},
		{name: "unrecognised origin", env: config.Production, origin: "qa-7", wantApplied: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ordertest.ShippedOrder("o1", orders.FulfillmentShipped))
			u := track("TRANSIT")
			u.IsTest = tt.isTest
			u.Environment = tt.origin

			_, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), tt.env, "o1", u)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)
			if !tt.wantApplied {
				assert.Equal(t, orders.FulfillmentShipped, f.order(t, "o1").FulfillmentStatus)
				assert.Empty(t, f.store.Events("o1"))
			}
		})
	}
}

func TestApplyTrackingUpdateRollsBack(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o1", orders.FulfillmentShipped))
	f.store.Hooks.BeforeAppendEvents = func([]orders.OrderEvent) error { return errors.New("disk full") }

	_, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", track("DELIVERED"))
	require.Error(t, err)
	assert.False(t, applied)

	o := f.order(t, "o1")
	assert.Equal(t, orders.FulfillmentShipped, o.FulfillmentStatus)
	assert.Nil(t, o.DeliveredAt)
	assert.Empty(t, f.store.Events("o1"))
	assert.Empty(t, f.notifier.sent)
}

func TestApplyTrackingUpdateOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "missing", track("TRANSIT"))
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestNotificationFailureKeepsStatus(t *testing.T) {
	f := newFixture(t, ordertest.ShippedOrder("o1", orders.FulfillmentOutForDelivery))
	f.notifier.err = errors.New("queue unavailable")

	status, applied, err := f.machine.ApplyTrackingUpdate(context.Background(), config.Production, "o1", track("DELIVERED"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, orders.FulfillmentDelivered, status)
	assert.Equal(t, orders.FulfillmentDelivered, f.order(t, "o1").FulfillmentStatus)
}
