// Package provider fetches supplementary payment data (customer, tax and
// shipping breakdown) from the payment processor's REST API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/slab-orders/internal/orders"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

// Details is what a lookup contributes to a purchase. Empty fields mean the
// processor didn't know them.
type Details struct {
	CustomerID      string
	PaymentIntentID string
	Amounts         *orders.Money
}

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Accept", "application/json").
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond)
	return &Client{http: c, log: logger.With(zap.String("component", "payment-provider"))}
}

func (c *Client) CheckoutSession(ctx context.Context, id string) (Details, error) {
	var s Session
	if err := c.get(ctx, "/v1/checkout/sessions/{id}", id, &s); err != nil {
		return Details{}, err
	}
	return Details{
		CustomerID:      string(s.Customer),
		PaymentIntentID: string(s.PaymentIntent),
		Amounts:         s.Money(),
	}, nil
}

// PaymentIntent has no tax/shipping split, so Amounts stays nil.
func (c *Client) PaymentIntent(ctx context.Context, id string) (Details, error) {
	var pi PaymentIntent
	if err := c.get(ctx, "/v1/payment_intents/{id}", id, &pi); err != nil {
		return Details{}, err
	}
	return Details{CustomerID: string(pi.Customer), PaymentIntentID: pi.ID}, nil
}

func (c *Client) get(ctx context.Context, path, id string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if resp.IsError() {
		c.log.Warn("Provider lookup failed", zap.String("path", path), zap.String("id", id), zap.Int("status", resp.StatusCode()))
		return fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, path, resp.StatusCode())
	}
	return nil
}
