package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	appcheckout "github.com/calico-commerce/storefront/internal/application/checkout"
	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/infrastructure/memory"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ord-%d", g.n)
}

// seqNumbers replays a scripted sequence, then falls back to unique values.
type seqNumbers struct {
	mu     sync.Mutex
	script []string
	n      int
}

func (g *seqNumbers) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.n <= len(g.script) {
		return g.script[g.n-1]
	}
	return fmt.Sprintf("N-%d", g.n)
}

type capturedEvents struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (c *capturedEvents) Publish(_ context.Context, e outbox.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturedEvents) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventName()
	}
	return out
}

type harness struct {
	store    *memory.Store
	carts    *appcart.Service
	checkout *appcheckout.Service
	events   *capturedEvents
	numbers  *seqNumbers
}

func newHarness(t *testing.T, ps ...*catalog.Product) *harness {
	t.Helper()
	store := memory.NewStore()
	store.SeedProducts(ps...)

	events := &capturedEvents{}
	numbers := &seqNumbers{}
	carts := appcart.NewService(store.Carts(), store.Catalog(), store.Ledger(), time.Hour, nil)
	checkout := appcheckout.NewService(store, carts, store.Carts(), &seqIDs{}, numbers, events, nil)
	return &harness{store: store, carts: carts, checkout: checkout, events: events, numbers: numbers}
}

func activeProduct(id string, price int64, stock int) *catalog.Product {
	return &catalog.Product{
		ID: id, Name: "Product " + id, SKU: "SKU-" + id, Price: price,
		Status: catalog.StatusActive, TrackInventory: true, Stock: stock,
	}
}

func (h *harness) fillCart(t *testing.T, userID string, lines map[string]int) {
	t.Helper()
	ctx := context.Background()
	for pid, qty := range lines {
		_, err := h.carts.AddItem(ctx, userID, pid, qty, catalog.NoSelection())
		require.NoError(t, err)
	}
}

func (h *harness) stockOf(t *testing.T, pid string) int {
	t.Helper()
	av, err := h.store.Ledger().CheckAvailability(context.Background(), inventory.ItemRequest{ProductID: pid, Quantity: 1})
	require.NoError(t, err)
	return av.AvailableStock
}

func TestCreateFromCartSuccess(t *testing.T) {
	h := newHarness(t, activeProduct("a", 1000, 10), activeProduct("b", 2500, 4))
	h.fillCart(t, "user-1", map[string]int{"a": 2, "b": 1})
	ctx := context.Background()

	o, err := h.checkout.CreateFromCart(ctx, "user-1", appcheckout.CreateOrderInput{
		Shipping:     order.ShippingInfo{Name: "Dana", Address: "1 Main St"},
		Method:       order.MethodCard,
		Tax:          450,
		ShippingCost: 300,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4500), o.Subtotal)
	assert.Equal(t, int64(4500+450+300), o.Total)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.Payment.Status)
	assert.Equal(t, order.MethodCard, o.Payment.Method)
	assert.Len(t, o.Items, 2)

	// Stock moved, cart gone, order persisted, event out.
	assert.Equal(t, 8, h.stockOf(t, "a"))
	assert.Equal(t, 3, h.stockOf(t, "b"))
	_, err = h.store.Carts().Get(ctx, "user-1")
	assert.ErrorIs(t, err, domcart.ErrNotFound)
	stored, err := h.store.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, stored.Number)
	assert.Equal(t, []string{"order.created"}, h.events.names())
}

func TestCreateFromCartEmptyCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.checkout.CreateFromCart(context.Background(), "user-1", appcheckout.CreateOrderInput{})
	assert.ErrorIs(t, err, appcheckout.ErrEmptyCart)
}

func TestCreateFromCartReportsEveryViolation(t *testing.T) {
	h := newHarness(t, activeProduct("a", 1000, 10), activeProduct("b", 2000, 0), activeProduct("c", 500, 1))
	ctx := context.Background()

	// Seed the cart directly so out-of-stock lines can exist in it.
	c := domcart.New("user-1", time.Hour)
	c.Upsert(domcart.Item{ProductID: "a", Quantity: 2, UnitPrice: 1000})
	c.Upsert(domcart.Item{ProductID: "b", Quantity: 1, UnitPrice: 2000})
	c.Upsert(domcart.Item{ProductID: "c", Quantity: 3, UnitPrice: 500})
	require.NoError(t, h.store.Carts().Save(ctx, c))

	_, err := h.checkout.CreateFromCart(ctx, "user-1", appcheckout.CreateOrderInput{})
	var unavailable *appcheckout.CartItemsUnavailableError
	require.ErrorAs(t, err, &unavailable)

	byID := map[string]appcheckout.Violation{}
	for _, v := range unavailable.Violations {
		byID[v.ProductID] = v
	}
	require.Len(t, byID, 2)
	assert.Equal(t, appcheckout.ReasonInsufficientStock, byID["b"].Reason)
	assert.Equal(t, 1, byID["b"].Requested)
	assert.Equal(t, appcheckout.ReasonInsufficientStock, byID["c"].Reason)
	assert.Equal(t, 3, byID["c"].Requested)
	assert.Equal(t, 1, byID["c"].Available)

	// The transaction never ran: no stock moved, the cart is intact, no
	// order exists, no event was published.
	assert.Equal(t, 10, h.stockOf(t, "a"))
	assert.Equal(t, 1, h.stockOf(t, "c"))
	got, err := h.store.Carts().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)
	assert.Empty(t, h.events.names())
}

func TestCreateFromCartVanishedProductViolation(t *testing.T) {
	h := newHarness(t, activeProduct("a", 1000, 10))
	ctx := context.Background()

	c := domcart.New("user-1", time.Hour)
	c.Upsert(domcart.Item{ProductID: "a", Quantity: 1, UnitPrice: 1000})
	c.Upsert(domcart.Item{ProductID: "ghost", Quantity: 2, UnitPrice: 700})
	require.NoError(t, h.store.Carts().Save(ctx, c))

	_, err := h.checkout.CreateFromCart(ctx, "user-1", appcheckout.CreateOrderInput{})
	var unavailable *appcheckout.CartItemsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Violations, 1)
	assert.Equal(t, "ghost", unavailable.Violations[0].ProductID)
	assert.Equal(t, appcheckout.ReasonUnavailable, unavailable.Violations[0].Reason)
}

func TestConcurrentCheckoutLastUnit(t *testing.T) {
	h := newHarness(t, activeProduct("a", 1000, 1))
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2"} {
		c := domcart.New(user, time.Hour)
		c.Upsert(domcart.Item{ProductID: "a", Quantity: 1, UnitPrice: 1000})
		require.NoError(t, h.store.Carts().Save(ctx, c))
	}

	type result struct {
		o   *order.Order
		err error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, user := range []string{"user-1", "user-2"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			o, err := h.checkout.CreateFromCart(ctx, user, appcheckout.CreateOrderInput{})
			results <- result{o: o, err: err}
		}(user)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for r := range results {
		if r.err == nil {
			wins++
		} else {
			losses++
			// The loser either lost the transaction race or saw the stock
			// already gone at validation; both are clean rejections.
			var unavailable *appcheckout.CartItemsUnavailableError
			rejected := errors.Is(r.err, appcheckout.ErrStockConflict) || errors.As(r.err, &unavailable)
			assert.True(t, rejected, "unexpected loser error: %v", r.err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.Equal(t, 0, h.stockOf(t, "a"))
}

func TestOrderNumberCollisionRetriesOnce(t *testing.T) {
	h := newHarness(t, activeProduct("a", 1000, 10))
	h.numbers.script = []string{"N-DUP", "N-DUP", "N-OK"}
	ctx := context.Background()

	h.fillCart(t, "user-1", map[string]int{"a": 1})
	first, err := h.checkout.CreateFromCart(ctx, "user-1", appcheckout.CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "N-DUP", first.Number)

	h.fillCart(t, "user-2", map[string]int{"a": 1})
	second, err := h.checkout.CreateFromCart(ctx, "user-2", appcheckout.CreateOrderInput{})
	require.NoError(t, err)
	assert.Equal(t, "N-OK", second.Number)

	// The aborted first attempt left nothing behind: the retry ran on a
	// fresh transaction, so stock moved once per order and the cart is
	// gone.
	assert.Equal(t, 8, h.stockOf(t, "a"))
	_, err = h.store.Carts().Get(ctx, "user-2")
	assert.ErrorIs(t, err, domcart.ErrNotFound)
}

func TestViolationMatchesVariantLine(t *testing.T) {
	h := newHarness(t, &catalog.Product{
		ID: "tee", Name: "Tee", SKU: "TEE-1", Price: 2000,
		Status: catalog.StatusActive, TrackInventory: true,
		Variants: []catalog.Variant{
			{Name: "size", Options: []catalog.VariantOption{
				{Value: "s", Stock: 10},
				{Value: "l", Stock: 1},
			}},
		},
	})
	ctx := context.Background()

	small, err := catalog.NewSelection(catalog.SelectedOption{Name: "size", Value: "s"})
	require.NoError(t, err)
	large, err := catalog.NewSelection(catalog.SelectedOption{Name: "size", Value: "l"})
	require.NoError(t, err)

	// Same product twice under different selections; only the large line
	// exceeds its cell's stock.
	c := domcart.New("user-1", time.Hour)
	c.Upsert(domcart.Item{ProductID: "tee", Quantity: 2, Selection: small, UnitPrice: 2000})
	c.Upsert(domcart.Item{ProductID: "tee", Quantity: 4, Selection: large, UnitPrice: 2000})
	require.NoError(t, h.store.Carts().Save(ctx, c))

	_, err = h.checkout.CreateFromCart(ctx, "user-1", appcheckout.CreateOrderInput{})
	var unavailable *appcheckout.CartItemsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Violations, 1)

	v := unavailable.Violations[0]
	assert.Equal(t, "tee", v.ProductID)
	assert.True(t, v.Selection.Equal(large), "violation must carry the failing line's selection")
	assert.Equal(t, 4, v.Requested, "requested quantity comes from the matching line, not its sibling")
	assert.Equal(t, 1, v.Available)
	assert.Equal(t, appcheckout.ReasonInsufficientStock, v.Reason)
}
