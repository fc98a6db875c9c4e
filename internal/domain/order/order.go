package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: already exists")
	ErrNoItems  = errors.New("order: at least one line item is required")
)

// LineItem is the frozen snapshot of a product at order creation time.
// Later catalog edits never alter it.
type LineItem struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	SKU       string            `json:"sku"`
	UnitPrice int64             `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	Subtotal  int64             `json:"subtotal"`
	Selection catalog.Selection `json:"selection"`
}

type ShippingInfo struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Tracking struct {
	Carrier string `json:"carrier"`
	Number  string `json:"number"`
}

// Order is created once and append-only afterwards except for status,
// tracking, notes, the payment sub-record, and transition timestamps.
type Order struct {
	ID     string
	Number string
	UserID string

	Items        []LineItem
	Subtotal     int64
	Tax          int64
	ShippingCost int64
	Discount     int64
	Total        int64

	Status   Status
	Payment  Payment
	Shipping ShippingInfo
	Tracking Tracking
	Notes    []string

	// StockRestored flips to true the first (and only) time cancellation
	// hands the order's lines back to the stock ledger.
	StockRestored bool

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessingAt time.Time
	ShippedAt    time.Time
	DeliveredAt  time.Time
	CancelledAt  time.Time
}

// New builds a pending order from frozen line items, enforcing the totals
// invariant. Tax, shipping cost and discount come from the pricing
// collaborator.
func New(id, number, userID string, items []LineItem, shipping ShippingInfo, tax, shippingCost, discount int64) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	var subtotal int64
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("order: line %d: quantity must be greater than zero", i)
		}
		if it.Subtotal != it.UnitPrice*int64(it.Quantity) {
			return nil, fmt.Errorf("order: line %d: subtotal mismatch", i)
		}
		subtotal += it.Subtotal
	}

	now := time.Now().UTC()
	o := &Order{
		ID:           id,
		Number:       number,
		UserID:       userID,
		Items:        append([]LineItem(nil), items...),
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shippingCost,
		Discount:     discount,
		Total:        subtotal + tax + shippingCost - discount,
		Status:       StatusPending,
		Payment:      Payment{Status: PaymentPending, Amount: subtotal + tax + shippingCost - discount},
		Shipping:     shipping,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return o, nil
}

func (o *Order) AddNote(note string) {
	if note == "" {
		return
	}
	o.Notes = append(o.Notes, note)
	o.touch()
}

func (o *Order) SetTracking(t Tracking) {
	o.Tracking = t
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	clone.Notes = append([]string(nil), o.Notes...)
	return &clone
}

func (o *Order) touch() { o.UpdatedAt = time.Now().UTC() }

// stampOnce records a transition timestamp exactly once; re-entering a
// state never overwrites the original stamp.
func stampOnce(ts *time.Time) {
	if ts.IsZero() {
		*ts = time.Now().UTC()
	}
}
