package checkout

import (
	"context"

	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
)

// Tx exposes the repositories participating in one checkout transaction.
// Stock decrement, order insert, and cart clear through the same Tx are
// applied atomically or not at all.
type Tx interface {
	Orders() order.Repository
	Stock() inventory.Ledger
	Carts() domcart.Repository
}

// TxRunner runs fn inside a single multi-document transaction. A non-nil
// error from fn rolls every write back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

type IDGenerator interface {
	NewID() string
}

// NumberGenerator produces human-facing order numbers. Collision freedom
// is the store's job (unique constraint), not the generator's; the builder
// regenerates once on conflict.
type NumberGenerator interface {
	Next() string
}
