package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Appender = (*Repo)(nil)

// Append is idempotent on record id so consumer redelivery is harmless.
func (r *Repo) Append(ctx context.Context, rec Record) error {
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	if rec.Changes == nil {
		changes = []byte(`{}`)
	}
	reqMeta, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("encode request meta: %w", err)
	}
	corr, err := json.Marshal(rec.Correlation)
	if err != nil {
		return fmt.Errorf("encode correlation: %w", err)
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO audit_records(id, entity_type, entity_id, action, actor, changes, request_meta, correlation, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.EntityType, rec.EntityID, rec.Action, rec.Actor, changes, reqMeta, corr, rec.RecordedAt)
	return err
}
