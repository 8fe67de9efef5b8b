// Package ordertest provides an in-memory orders.Store for tests.
//
// Transactions are serialized by a single lock, which is what row locks on
// the order give the postgres Repo for the same-order case. Writes go to a
// copy of the state that only replaces the committed state when the
// callback returns nil.
package ordertest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/slab-orders/internal/orders"
)

// Hooks inject failures at specific points inside a transaction.
type Hooks struct {
	BeforeSavePayment     func(o orders.Order) error
	BeforeSaveFulfillment func(o orders.Order) error
	BeforeAppendEvents    func(events []orders.OrderEvent) error
}

type Store struct {
	mu    sync.Mutex // serializes transactions
	state state

	Hooks Hooks
}

type state struct {
	orders   map[string]orders.Order
	listings map[string]orders.Listing
	events   []orders.OrderEvent
}

func (s state) clone() state {
	c := state{
		orders:   make(map[string]orders.Order, len(s.orders)),
		listings: make(map[string]orders.Listing, len(s.listings)),
		events:   append([]orders.OrderEvent(nil), s.events...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	return c
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: state{
		orders:   map[string]orders.Order{},
		listings: map[string]orders.Listing{},
	}}
}

func (s *Store) PutOrder(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = o
}

func (s *Store) PutListing(l orders.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.listings[l.ID] = l
}

func (s *Store) Listing(id string) (orders.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.listings[id]
	return l, ok
}

// Events returns the committed timeline of one order, optionally filtered by type.
func (s *Store) Events(orderID string, types ...orders.EventType) []orders.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.OrderEvent
	for _, ev := range s.state.events {
		if ev.OrderID != orderID {
			continue
		}
		if len(types) > 0 && !containsType(types, ev.Type) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func containsType(types []orders.EventType, t orders.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: &work, hooks: s.Hooks}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) ListEvents(_ context.Context, orderID string) ([]orders.OrderEvent, error) {
	evs := s.Events(orderID)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].OccurredAt.Before(evs[j].OccurredAt) })
	return evs, nil
}

func (s *Store) OrderExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.orders[id]
	return ok, nil
}

func (s *Store) OrderIDBySession(_ context.Context, sessionID string) (string, error) {
	return s.find(func(o orders.Order) bool { return o.PaymentSessionID == sessionID }), nil
}

func (s *Store) OrderIDByPaymentIntent(_ context.Context, paymentIntentID string) (string, error) {
	return s.find(func(o orders.Order) bool { return o.PaymentIntentID == paymentIntentID }), nil
}

func (s *Store) OrderIDByTracking(_ context.Context, carrier, trackingNumber string) (string, error) {
	return s.find(func(o orders.Order) bool {
		return strings.EqualFold(o.Carrier, carrier) && o.TrackingNumber == trackingNumber
	}), nil
}

func (s *Store) find(match func(orders.Order) bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.state.orders {
		if match(o) {
			return id
		}
	}
	return ""
}

type memTx struct {
	st    *state
	hooks Hooks
}

func (t *memTx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) LockListing(_ context.Context, id string) (orders.Listing, error) {
	l, ok := t.st.listings[id]
	if !ok {
		return orders.Listing{}, orders.ErrListingNotFound
	}
	return l, nil
}

func (t *memTx) SavePayment(_ context.Context, o orders.Order) error {
	if t.hooks.BeforeSavePayment != nil {
		if err := t.hooks.BeforeSavePayment(o); err != nil {
			return err
		}
	}
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	cur.PaymentStatus = o.PaymentStatus
	cur.PaymentIntentID = o.PaymentIntentID
	cur.CustomerID = o.CustomerID
	cur.Amounts = o.Amounts
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *memTx) SaveFulfillment(_ context.Context, o orders.Order) error {
	if t.hooks.BeforeSaveFulfillment != nil {
		if err := t.hooks.BeforeSaveFulfillment(o); err != nil {
			return err
		}
	}
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	cur.FulfillmentStatus = o.FulfillmentStatus
	cur.LastProgressStatus = o.LastProgressStatus
	cur.ExceptionReason = o.ExceptionReason
	cur.Carrier = o.Carrier
	cur.TrackingNumber = o.TrackingNumber
	cur.TrackingProviderID = o.TrackingProviderID
	cur.ShippedAt = o.ShippedAt
	cur.DeliveredAt = o.DeliveredAt
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *memTx) MarkListingSold(_ context.Context, id string) (bool, error) {
	l, ok := t.st.listings[id]
	if !ok || l.Status != orders.ListingPublished {
		return false, nil
	}
	l.Status = orders.ListingSold
	t.st.listings[id] = l
	return true, nil
}

func (t *memTx) AppendEvents(_ context.Context, events ...orders.OrderEvent) error {
	if t.hooks.BeforeAppendEvents != nil {
		if err := t.hooks.BeforeAppendEvents(events); err != nil {
			return err
		}
	}
	t.st.events = append(t.st.events, events...)
	return nil
}
