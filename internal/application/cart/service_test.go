package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/infrastructure/memory"
)

func newCartService(t *testing.T, ps ...*catalog.Product) (*appcart.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedProducts(ps...)
	svc := appcart.NewService(store.Carts(), store.Catalog(), store.Ledger(), time.Hour, nil)
	return svc, store
}

func product(id string, price int64, stock int) *catalog.Product {
	return &catalog.Product{
		ID: id, Name: "Product " + id, SKU: "SKU-" + id, Price: price,
		Status: catalog.StatusActive, TrackInventory: true, Stock: stock,
	}
}

func TestGetReturnsEmptyCartWhenMissing(t *testing.T) {
	svc, _ := newCartService(t)
	c, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.True(t, c.Empty())
}

func TestAddItemMergesLines(t *testing.T) {
	svc, _ := newCartService(t, product("p1", 1000, 10))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "p1", 2, catalog.NoSelection())
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "user-1", "p1", 3, catalog.NoSelection())
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, int64(5000), c.Subtotal())
}

func TestAddItemChecksCombinedQuantity(t *testing.T) {
	svc, _ := newCartService(t, product("p1", 1000, 5))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "p1", 4, catalog.NoSelection())
	require.NoError(t, err)

	// 4 already in the cart; adding 2 would need 6 against 5 in stock.
	_, err = svc.AddItem(ctx, "user-1", "p1", 2, catalog.NoSelection())
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 6, insufficient.Requested)
	assert.Equal(t, 5, insufficient.Available)
}

func TestAddItemRejectsInactiveAndUnknown(t *testing.T) {
	inactive := product("p1", 1000, 5)
	inactive.Status = catalog.StatusInactive
	svc, _ := newCartService(t, inactive)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "p1", 1, catalog.NoSelection())
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = svc.AddItem(ctx, "user-1", "ghost", 1, catalog.NoSelection())
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = svc.AddItem(ctx, "user-1", "p1", 0, catalog.NoSelection())
	assert.ErrorIs(t, err, domcart.ErrBadQuantity)
}

func TestUpdateItemZeroQuantityRemoves(t *testing.T) {
	svc, _ := newCartService(t, product("p1", 1000, 10))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "p1", 2, catalog.NoSelection())
	require.NoError(t, err)

	c, err := svc.UpdateItem(ctx, "user-1", "p1", 0, catalog.NoSelection())
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestValidateFlagsEveryProblem(t *testing.T) {
	gone := product("gone", 500, 5)
	gone.Status = catalog.StatusInactive
	empty := product("empty", 800, 0)
	short := product("short", 1200, 2)
	repriced := product("repriced", 2000, 10)

	svc, store := newCartService(t, gone, empty, short, repriced)
	ctx := context.Background()

	c := domcart.New("user-1", time.Hour)
	c.Upsert(domcart.Item{ProductID: "gone", Quantity: 1, UnitPrice: 500})
	c.Upsert(domcart.Item{ProductID: "missing", Quantity: 1, UnitPrice: 100})
	c.Upsert(domcart.Item{ProductID: "empty", Quantity: 1, UnitPrice: 800})
	c.Upsert(domcart.Item{ProductID: "short", Quantity: 5, UnitPrice: 1200})
	c.Upsert(domcart.Item{ProductID: "repriced", Quantity: 1, UnitPrice: 1500})
	require.NoError(t, store.Carts().Save(ctx, c))

	res, err := svc.Validate(ctx, c)
	require.NoError(t, err)

	codes := map[string]appcart.WarningCode{}
	for _, w := range res.Warnings {
		codes[w.ProductID] = w.Code
	}
	assert.Equal(t, appcart.WarnUnavailable, codes["gone"])
	assert.Equal(t, appcart.WarnUnavailable, codes["missing"])
	assert.Equal(t, appcart.WarnOutOfStock, codes["empty"])
	assert.Equal(t, appcart.WarnQuantityAdjusted, codes["short"])
	assert.Equal(t, appcart.WarnPriceChanged, codes["repriced"])

	// Only the fulfillable lines survive, quantities clamped and prices
	// refreshed from the catalog.
	require.Len(t, res.Items, 2)
	byID := map[string]appcart.ValidatedItem{}
	for _, it := range res.Items {
		byID[it.ProductID] = it
	}
	assert.Equal(t, 2, byID["short"].Quantity)
	assert.Equal(t, int64(2000), byID["repriced"].UnitPrice)
	assert.Equal(t, int64(2*1200+2000), res.Subtotal)
}

func TestValidateNeverMutatesStock(t *testing.T) {
	svc, store := newCartService(t, product("p1", 1000, 3))
	ctx := context.Background()

	c := domcart.New("user-1", time.Hour)
	c.Upsert(domcart.Item{ProductID: "p1", Quantity: 10, UnitPrice: 1000})

	_, err := svc.Validate(ctx, c)
	require.NoError(t, err)

	av, err := store.Ledger().CheckAvailability(ctx, inventory.ItemRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, av.AvailableStock)
}
