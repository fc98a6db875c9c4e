package memory

import (
	"context"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/cart"
)

type cartRepo struct {
	s    *Store
	inTx bool
}

func (r *cartRepo) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	_ = ctx
	unlock := r.s.wlock(r.inTx)
	defer unlock()

	c, ok := r.s.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	if c.Expired(time.Now().UTC()) {
		delete(r.s.carts, userID)
		return nil, cart.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *cartRepo) Save(ctx context.Context, c *cart.Cart) error {
	_ = ctx
	unlock := r.s.wlock(r.inTx)
	defer unlock()

	r.s.carts[c.UserID] = c.Clone()
	return nil
}

func (r *cartRepo) Delete(ctx context.Context, userID string) error {
	_ = ctx
	unlock := r.s.wlock(r.inTx)
	defer unlock()

	if _, ok := r.s.carts[userID]; !ok {
		return cart.ErrNotFound
	}
	delete(r.s.carts, userID)
	return nil
}

func (r *cartRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	unlock := r.s.wlock(r.inTx)
	defer unlock()

	swept := 0
	for userID, c := range r.s.carts {
		if c.Expired(now) {
			delete(r.s.carts, userID)
			swept++
		}
	}
	return swept, nil
}
