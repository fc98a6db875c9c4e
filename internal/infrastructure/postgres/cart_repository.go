package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/cart"
)

type cartRepo struct {
	q querier
}

func (r *cartRepo) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		itemsJSON []byte
		c         = &cart.Cart{UserID: userID}
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT items, updated_at, expires_at
		FROM carts
		WHERE user_id = $1`, userID).Scan(&itemsJSON, &c.UpdatedAt, &c.ExpiresAt)
	if isNoRows(err) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query cart: %w", err)
	}

	// Expired rows read as absent; the sweeper deletes them for real.
	if c.Expired(time.Now().UTC()) {
		return nil, cart.ErrNotFound
	}

	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode cart items: %w", err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	return c, nil
}

func (r *cartRepo) Save(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("postgres: encode cart items: %w", err)
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO carts (user_id, items, updated_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET items = EXCLUDED.items,
		    updated_at = EXCLUDED.updated_at,
		    expires_at = EXCLUDED.expires_at`,
		c.UserID, itemsJSON, c.UpdatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: save cart: %w", err)
	}
	return nil
}

func (r *cartRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete cart: %w", err)
	}
	if affected == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (r *cartRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired carts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired carts: %w", err)
	}
	return int(affected), nil
}
