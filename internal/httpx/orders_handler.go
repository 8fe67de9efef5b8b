package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/ariefcatur/slab-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]orders.OrderEvent, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (*redisx.OrderStatus, error)
	Set(ctx context.Context, s redisx.OrderStatus) error
}

type OrdersHandler struct {
	Orders OrderReader
	Cache  StatusCache // optional
	Log    *zap.Logger
}

type eventResp struct {
	ID         string               `json:"id"`
	Type       orders.EventType     `json:"type"`
	OccurredAt time.Time            `json:"occurred_at"`
	Metadata   orders.EventMetadata `json:"metadata"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/events", h.listEvents)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		s, err := h.Cache.Get(ctx, orderID)
		if err != nil {
			h.Log.Warn("Order status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if s != nil {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// 2) store
	o, err := h.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.Log.Error("Order lookup failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s := redisx.OrderStatus{
		OrderID:           o.ID,
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		Carrier:           o.Carrier,
		TrackingNumber:    o.TrackingNumber,
		UpdatedAt:         o.UpdatedAt,
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, s); err != nil {
			h.Log.Warn("Order status cache write failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *OrdersHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Orders.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.Log.Error("Order lookup failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	evs, err := h.Orders.ListEvents(ctx, orderID)
	if err != nil {
		h.Log.Error("Listing order events failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]eventResp, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventResp{ID: ev.ID, Type: ev.Type, OccurredAt: ev.OccurredAt, Metadata: ev.Metadata})
	}
	writeJSON(w, http.StatusOK, out)
}
