package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/slab-orders/internal/webhook"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookReceiver interface {
	HandlePayment(ctx context.Context, body []byte, signature string) (webhook.Result, error)
	HandleTracking(ctx context.Context, body []byte, signature string) (webhook.Result, error)
}

type WebhooksHandler struct {
	Receiver WebhookReceiver
	Log      *zap.Logger
}

func (h *WebhooksHandler) Register(r chi.Router) {
	r.Post("/webhooks/payments", h.payment)
	r.Post("/webhooks/tracking", h.tracking)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
}

func (h *WebhooksHandler) payment(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large or unreadable")
		return
	}
	res, err := h.Receiver.HandlePayment(r.Context(), body, r.Header.Get(webhook.PaymentSignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, webhook.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, "malformed payload")
	case errors.Is(err, webhook.ErrUnresolvable):
		writeError(w, http.StatusBadRequest, "order could not be resolved")
	default:
		h.Log.Error("Payment webhook failed, provider will redeliver", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
	}
}

// tracking answers 200 for everything but a bad signature or a failed
// transaction, unreadable bodies included.
func (h *WebhooksHandler) tracking(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.Log.Warn("Unreadable tracking webhook body, acknowledging", zap.Error(err))
		writeJSON(w, http.StatusOK, webhook.Result{Received: true, Outcome: webhook.OutcomeIgnored})
		return
	}
	res, err := h.Receiver.HandleTracking(r.Context(), body, r.Header.Get(webhook.TrackingSignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	default:
		h.Log.Error("Tracking webhook failed, provider will redeliver", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
	}
}
