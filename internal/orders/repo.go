package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the postgres Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `
	id, buyer_id, seller_id, COALESCE(listing_id, ''),
	payment_status, fulfillment_status, COALESCE(last_progress_status, ''), COALESCE(exception_reason, ''),
	subtotal_cents, tax_cents, shipping_cents, total_cents, currency,
	COALESCE(payment_session_id, ''), COALESCE(payment_intent_id, ''), COALESCE(customer_id, ''),
	COALESCE(carrier, ''), COALESCE(tracking_number, ''), COALESCE(tracking_provider_id, ''),
	shipped_at, delivered_at,
	listing_title, COALESCE(listing_image_url, ''), listing_price_cents,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                         Order
		payment, fulfil, progress string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &o.ListingID,
		&payment, &fulfil, &progress, &o.ExceptionReason,
		&o.Amounts.SubtotalCents, &o.Amounts.TaxCents, &o.Amounts.ShippingCents, &o.Amounts.TotalCents, &o.Amounts.Currency,
		&o.PaymentSessionID, &o.PaymentIntentID, &o.CustomerID,
		&o.Carrier, &o.TrackingNumber, &o.TrackingProviderID,
		&o.ShippedAt, &o.DeliveredAt,
		&o.Listing.Title, &o.Listing.ImageURL, &o.Listing.PriceCents,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.PaymentStatus = PaymentStatus(payment)
	o.FulfillmentStatus = FulfillmentStatus(fulfil)
	o.LastProgressStatus = FulfillmentStatus(progress)
	return o, nil
}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &repoTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *Repo) ListEvents(ctx context.Context, orderID string) ([]OrderEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, type, occurred_at, metadata
		FROM order_events WHERE order_id=$1
		ORDER BY occurred_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var (
			ev  OrderEvent
			typ string
			raw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.OrderID, &typ, &ev.OccurredAt, &raw); err != nil {
			return nil, err
		}
		ev.Type = EventType(typ)
		if ev.Metadata, err = DecodeMetadata(ev.Type, raw); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repo) OrderExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *Repo) OrderIDBySession(ctx context.Context, sessionID string) (string, error) {
	return r.lookupID(ctx, `SELECT id FROM orders WHERE payment_session_id=$1`, sessionID)
}

func (r *Repo) OrderIDByPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	return r.lookupID(ctx, `SELECT id FROM orders WHERE payment_intent_id=$1 ORDER BY created_at DESC LIMIT 1`, paymentIntentID)
}

func (r *Repo) OrderIDByTracking(ctx context.Context, carrier, trackingNumber string) (string, error) {
	return r.lookupID(ctx, `
		SELECT id FROM orders
		WHERE lower(carrier)=lower($1) AND tracking_number=$2
		ORDER BY created_at DESC LIMIT 1`, carrier, trackingNumber)
}

func (r *Repo) lookupID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

type repoTx struct{ tx pgx.Tx }

func (t *repoTx) LockOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

func (t *repoTx) LockListing(ctx context.Context, id string) (Listing, error) {
	var (
		l      Listing
		status string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, seller_id, title, COALESCE(image_url, ''), price_cents, currency, status, created_at, updated_at
		FROM listings WHERE id=$1 FOR UPDATE`, id).
		Scan(&l.ID, &l.SellerID, &l.Title, &l.ImageURL, &l.PriceCents, &l.Currency, &status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, ErrListingNotFound
	}
	if err != nil {
		return Listing{}, err
	}
	l.Status = ListingStatus(status)
	return l, nil
}

func (t *repoTx) SavePayment(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			payment_status=$2, payment_intent_id=NULLIF($3, ''), customer_id=NULLIF($4, ''),
			subtotal_cents=$5, tax_cents=$6, shipping_cents=$7, total_cents=$8, currency=$9,
			updated_at=$10
		WHERE id=$1`,
		o.ID, string(o.PaymentStatus), o.PaymentIntentID, o.CustomerID,
		o.Amounts.SubtotalCents, o.Amounts.TaxCents, o.Amounts.ShippingCents, o.Amounts.TotalCents,
		strings.ToLower(o.Amounts.Currency), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *repoTx) SaveFulfillment(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			fulfillment_status=$2, last_progress_status=NULLIF($3, ''), exception_reason=NULLIF($10, ''),
			carrier=NULLIF($4, ''), tracking_number=NULLIF($5, ''), tracking_provider_id=NULLIF($6, ''),
			shipped_at=$7, delivered_at=$8, updated_at=$9
		WHERE id=$1`,
		o.ID, string(o.FulfillmentStatus), string(o.LastProgressStatus),
		o.Carrier, o.TrackingNumber, o.TrackingProviderID,
		o.ShippedAt, o.DeliveredAt, o.UpdatedAt, o.ExceptionReason)
	if err != nil {
		return fmt.Errorf("save fulfillment: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *repoTx) MarkListingSold(ctx context.Context, id string) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE listings SET status='SOLD', updated_at=now()
		WHERE id=$1 AND status='PUBLISHED'`, id)
	if err != nil {
		return false, fmt.Errorf("mark listing sold: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *repoTx) AppendEvents(ctx context.Context, events ...OrderEvent) error {
	for _, ev := range events {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode %s metadata: %w", ev.Type, err)
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_events(id, order_id, type, occurred_at, metadata)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, ev.OrderID, string(ev.Type), ev.OccurredAt, raw); err != nil {
			return fmt.Errorf("append %s: %w", ev.Type, err)
		}
	}
	return nil
}
