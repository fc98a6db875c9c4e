package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

var ErrNotFound = errors.New("inventory: stock cell not found")

// InsufficientStockError reports a failed conditional decrement together
// with the quantity that was actually available, for client display.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ItemFailure is one item's outcome inside a failed batch decrement.
type ItemFailure struct {
	ProductID string
	Err       error
}

// BatchError carries every per-item failure of an all-or-nothing batch
// decrement, not just the first one.
type BatchError struct {
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("inventory: batch decrement failed for %d item(s)", len(e.Failures))
}

type ItemRequest struct {
	ProductID string
	Quantity  int
	Selection catalog.Selection
}

type Availability struct {
	Available      bool
	AvailableStock int
	CanBackorder   bool
}

type Decremented struct {
	AvailableStock int
}

// Ledger owns every stock cell. Decrement is a single-round-trip
// conditional write: it succeeds only if the cell held enough stock at the
// moment of the write. This is the sole race-safety mechanism protecting
// concurrent buyers; cart and order code never touch stock directly.
type Ledger interface {
	// CheckAvailability is read-only and advisory; stock may change before
	// a subsequent decrement.
	CheckAvailability(ctx context.Context, req ItemRequest) (Availability, error)

	// Decrement fails with *InsufficientStockError when the condition does
	// not hold. With inventory tracking disabled it is a no-op success.
	Decrement(ctx context.Context, req ItemRequest) (Decremented, error)

	// Restore is an unconditional increment used on cancellation. Callers
	// are responsible for restoring at most once per order.
	Restore(ctx context.Context, req ItemRequest) error

	// BatchDecrement applies every decrement or none, reporting the full
	// failure set via *BatchError.
	BatchDecrement(ctx context.Context, reqs []ItemRequest) error
}

// Sellable is the uniform backorder policy applied at cart-add, cart
// validation, and order creation alike: a request is sellable when
// tracking is off, stock suffices, or the product allows backorders.
func Sellable(p *catalog.Product, available, requested int) bool {
	if !p.TrackInventory {
		return true
	}
	if available >= requested {
		return true
	}
	return p.AllowBackorder
}
