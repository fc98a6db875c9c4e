package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/calico-commerce/storefront/internal/domain/order"
)

type orderRepo struct {
	s    *Store
	inTx bool
}

func (r *orderRepo) Insert(ctx context.Context, o *order.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	unlock := r.s.wlock(r.inTx)
	defer unlock()

	if _, exists := r.s.orders[o.ID]; exists {
		return order.ErrConflict
	}
	// Number uniqueness is enforced here, by the store, never by callers
	// checking first and inserting second.
	if _, taken := r.s.numbers[o.Number]; taken {
		return order.ErrConflict
	}

	r.s.orders[o.ID] = o.Clone()
	r.s.numbers[o.Number] = o.ID
	if o.Payment.IntentID != "" {
		r.s.intents[o.Payment.IntentID] = o.ID
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	_ = ctx
	unlock := r.s.rlock(r.inTx)
	defer unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *orderRepo) FindByIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	_ = ctx
	if intentID == "" {
		return nil, order.ErrNotFound
	}

	unlock := r.s.rlock(r.inTx)
	defer unlock()

	id, ok := r.s.intents[intentID]
	if !ok {
		return nil, order.ErrNotFound
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *orderRepo) List(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	_ = ctx
	unlock := r.s.rlock(r.inTx)
	defer unlock()

	var out []*order.Order
	for _, o := range r.s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Mutate applies fn to a copy of the stored document and persists it only
// when fn succeeds, all under the store lock. This is the in-memory
// equivalent of the database's per-document write serialization.
func (r *orderRepo) Mutate(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	_ = ctx
	unlock := r.s.wlock(r.inTx)
	defer unlock()

	current, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	r.s.orders[id] = next.Clone()
	if next.Payment.IntentID != "" {
		r.s.intents[next.Payment.IntentID] = id
	}
	return next, nil
}
