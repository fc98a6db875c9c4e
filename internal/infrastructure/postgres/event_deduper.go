package postgres

import (
	"context"
	"fmt"
)

// eventDeduper is the webhook idempotency set. Claiming an event id is a
// single INSERT ... ON CONFLICT DO NOTHING, so concurrent deliveries of
// the same event race safely: exactly one wins.
type eventDeduper struct {
	q querier
}

func (d *eventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO processed_payment_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, fmt.Errorf("postgres: claim payment event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: claim payment event: %w", err)
	}
	return affected == 0, nil
}

func (d *eventDeduper) Release(ctx context.Context, eventID string) error {
	_, err := d.q.ExecContext(ctx,
		`DELETE FROM processed_payment_events WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("postgres: release payment event: %w", err)
	}
	return nil
}
