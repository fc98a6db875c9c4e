package checkout

import (
	"errors"
	"fmt"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

var (
	// ErrEmptyCart means no valid items remained after validation.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrStockConflict means the checkout transaction aborted because a
	// concurrent buyer won a stock race between validation and commit. No
	// partial state was left behind; callers may re-validate and retry
	// once.
	ErrStockConflict = errors.New("checkout: stock changed during checkout")
)

// Violation describes one cart line that cannot be fulfilled. Lines are
// identified by product and variant selection, so two lines of the same
// product report separately.
type Violation struct {
	ProductID string            `json:"product_id"`
	Selection catalog.Selection `json:"selection"`
	Requested int               `json:"requested"`
	Available int               `json:"available"`
	Reason    string            `json:"reason"`
}

const (
	ReasonUnavailable       = "no_longer_available"
	ReasonInsufficientStock = "insufficient_stock"
)

// CartItemsUnavailableError enumerates every unfulfillable line in one
// error so the user can fix the whole cart in a single round trip.
type CartItemsUnavailableError struct {
	Violations []Violation
}

func (e *CartItemsUnavailableError) Error() string {
	return fmt.Sprintf("checkout: %d cart item(s) unavailable", len(e.Violations))
}
