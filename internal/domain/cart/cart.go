package cart

import (
	"context"
	"errors"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

var (
	ErrNotFound     = errors.New("cart: not found")
	ErrItemNotFound = errors.New("cart: item not found")
	ErrBadQuantity  = errors.New("cart: quantity must be greater than zero")
)

// Item is one cart line. UnitPrice is a snapshot taken when the line was
// added; the catalog price at checkout time wins, the snapshot only feeds
// "price changed" warnings.
type Item struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Selection catalog.Selection `json:"selection"`
	UnitPrice int64             `json:"unit_price"`
	AddedAt   time.Time         `json:"added_at"`
}

// Cart is a user's purchase intent. It is keyed uniquely per user, expires
// on a sliding window refreshed by every mutation, and is never the system
// of record for price or availability.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func New(userID string, ttl time.Duration) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:    userID,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Touch refreshes the sliding expiration.
func (c *Cart) Touch(ttl time.Duration) {
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(ttl)
}

// Upsert merges quantity into an existing line with the same product and
// selection, or appends a new line.
func (c *Cart) Upsert(item Item) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID && c.Items[i].Selection.Equal(item.Selection) {
			c.Items[i].Quantity += item.Quantity
			c.Items[i].UnitPrice = item.UnitPrice
			return
		}
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) SetQuantity(productID string, sel catalog.Selection, quantity int) error {
	if quantity <= 0 {
		return ErrBadQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Selection.Equal(sel) {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return ErrItemNotFound
}

func (c *Cart) Remove(productID string, sel catalog.Selection) error {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].Selection.Equal(sel) {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (c *Cart) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item(nil), c.Items...)
	return &clone
}

type Repository interface {
	// Get returns ErrNotFound for missing and expired carts alike.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID string) error
	// DeleteExpired removes carts whose TTL elapsed before now, returning
	// how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
