package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"
)

const componentCartService = "cart_service"

// Service owns cart mutations and pre-checkout validation. It never
// decrements stock; every availability read here is advisory.
type Service struct {
	carts    domcart.Repository
	products catalog.Repository
	ledger   inventory.Ledger
	ttl      time.Duration
	log      observability.Logger
}

func NewService(carts domcart.Repository, products catalog.Repository, ledger inventory.Ledger, ttl time.Duration, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		carts:    carts,
		products: products,
		ledger:   ledger,
		ttl:      ttl,
		log:      tel.Logger().With(observability.F("component", componentCartService)),
	}
}

// Get returns the user's cart, or an empty unsaved cart when none exists.
func (s *Service) Get(ctx context.Context, userID string) (*domcart.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domcart.ErrNotFound) {
		return domcart.New(userID, s.ttl), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	return c, nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int, sel catalog.Selection) (*domcart.Cart, error) {
	logger := logctx.FromOr(ctx, s.log)
	if quantity <= 0 {
		return nil, domcart.ErrBadQuantity
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, catalog.ErrNotFound
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The availability check covers the combined line quantity, not just
	// the delta being added.
	requested := quantity + lineQuantity(c, productID, sel)
	if err := s.checkSellable(ctx, p, requested, sel); err != nil {
		return nil, err
	}

	c.Upsert(domcart.Item{
		ProductID: productID,
		Quantity:  quantity,
		Selection: sel,
		UnitPrice: p.Price,
		AddedAt:   time.Now().UTC(),
	})
	c.Touch(s.ttl)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}

	logger.Info("cart_item_added",
		observability.F("user_id", userID),
		observability.F("product_id", productID),
		observability.F("quantity", quantity),
	)
	return c, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int, sel catalog.Selection) (*domcart.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID, sel)
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSellable(ctx, p, quantity, sel); err != nil {
		return nil, err
	}

	if err := c.SetQuantity(productID, sel, quantity); err != nil {
		return nil, err
	}
	c.Touch(s.ttl)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string, sel catalog.Selection) (*domcart.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.Remove(productID, sel); err != nil {
		return nil, err
	}
	c.Touch(s.ttl)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Delete(ctx, userID); err != nil && !errors.Is(err, domcart.ErrNotFound) {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

func (s *Service) checkSellable(ctx context.Context, p *catalog.Product, quantity int, sel catalog.Selection) error {
	av, err := s.ledger.CheckAvailability(ctx, inventory.ItemRequest{
		ProductID: p.ID,
		Quantity:  quantity,
		Selection: sel,
	})
	if err != nil {
		return err
	}
	if !av.Available {
		return &inventory.InsufficientStockError{
			ProductID: p.ID,
			Requested: quantity,
			Available: av.AvailableStock,
		}
	}
	return nil
}

func lineQuantity(c *domcart.Cart, productID string, sel catalog.Selection) int {
	for _, it := range c.Items {
		if it.ProductID == productID && it.Selection.Equal(sel) {
			return it.Quantity
		}
	}
	return 0
}
