package order

import "context"

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	UserID string
	Status Status
}

type Repository interface {
	// Insert returns ErrConflict when the id or order number is taken; the
	// store, not the application, enforces number uniqueness.
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// FindByIntentID correlates a provider webhook with its order.
	FindByIntentID(ctx context.Context, intentID string) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	// Mutate applies fn to the current document under the store's
	// per-document write serialization and persists the result iff fn
	// returns nil. This is the only sanctioned order mutation path.
	Mutate(ctx context.Context, id string, fn func(*Order) error) (*Order, error)
}
