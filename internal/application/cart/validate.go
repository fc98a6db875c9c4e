package cart

import (
	"context"
	"fmt"

	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"
)

type WarningCode string

const (
	WarnUnavailable      WarningCode = "no_longer_available"
	WarnOutOfStock       WarningCode = "out_of_stock"
	WarnQuantityAdjusted WarningCode = "quantity_adjusted"
	WarnPriceChanged     WarningCode = "price_changed"
)

// Warning carries the line's selection so callers can tell apart two
// lines of the same product under different variant choices.
type Warning struct {
	ProductID string            `json:"product_id"`
	Selection catalog.Selection `json:"selection"`
	Code      WarningCode       `json:"code"`
	Message   string            `json:"message"`
	Quantity  int               `json:"quantity,omitempty"`
}

// ValidatedItem is a cart line reconciled against current catalog state:
// price refreshed, name/SKU captured for the order snapshot.
type ValidatedItem struct {
	ProductID string
	Name      string
	SKU       string
	Quantity  int
	Selection catalog.Selection
	UnitPrice int64
	Subtotal  int64
	Backorder bool
}

type ValidationResult struct {
	Items    []ValidatedItem
	Warnings []Warning
	Subtotal int64
}

// Validate reconciles every cart line against live product state: lines
// whose product vanished or went inactive are dropped, lines exceeding
// current stock are clamped or dropped, and price snapshots are refreshed
// to the catalog price. Purely advisory; stock is never mutated here.
// Product lookups are batched into a single multi-get.
func (s *Service) Validate(ctx context.Context, c *domcart.Cart) (*ValidationResult, error) {
	logger := logctx.FromOr(ctx, s.log)

	res := &ValidationResult{}
	if c == nil || c.Empty() {
		return res, nil
	}

	ids := make([]string, 0, len(c.Items))
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, dup := seen[it.ProductID]; dup {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cart: validate: product lookup: %w", err)
	}

	for _, it := range c.Items {
		p, ok := products[it.ProductID]
		if !ok || !p.Active() {
			res.Warnings = append(res.Warnings, Warning{
				ProductID: it.ProductID,
				Selection: it.Selection,
				Code:      WarnUnavailable,
				Message:   "product is no longer available",
			})
			continue
		}

		av, err := s.ledger.CheckAvailability(ctx, inventory.ItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Selection: it.Selection,
		})
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{
				ProductID: it.ProductID,
				Selection: it.Selection,
				Code:      WarnUnavailable,
				Message:   "product is no longer available",
			})
			continue
		}

		qty := it.Quantity
		if !av.Available {
			if av.AvailableStock <= 0 {
				res.Warnings = append(res.Warnings, Warning{
					ProductID: it.ProductID,
					Selection: it.Selection,
					Code:      WarnOutOfStock,
					Message:   "product is out of stock",
				})
				continue
			}
			qty = av.AvailableStock
			res.Warnings = append(res.Warnings, Warning{
				ProductID: it.ProductID,
				Selection: it.Selection,
				Code:      WarnQuantityAdjusted,
				Message:   "quantity reduced to available stock",
				Quantity:  qty,
			})
		}

		if p.Price != it.UnitPrice {
			res.Warnings = append(res.Warnings, Warning{
				ProductID: it.ProductID,
				Selection: it.Selection,
				Code:      WarnPriceChanged,
				Message:   "price changed since the item was added",
			})
		}

		res.Items = append(res.Items, ValidatedItem{
			ProductID: it.ProductID,
			Name:      p.Name,
			SKU:       p.SKU,
			Quantity:  qty,
			Selection: it.Selection,
			UnitPrice: p.Price,
			Subtotal:  p.Price * int64(qty),
			Backorder: av.CanBackorder && av.AvailableStock < qty,
		})
		res.Subtotal += p.Price * int64(qty)
	}

	if len(res.Warnings) > 0 {
		logger.Info("cart_validated_with_warnings",
			observability.F("user_id", c.UserID),
			observability.F("valid_items", len(res.Items)),
			observability.F("warnings", len(res.Warnings)),
		)
	}
	return res, nil
}
