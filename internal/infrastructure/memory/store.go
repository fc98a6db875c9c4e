// Package memory implements the storage ports on mutex-guarded maps with
// snapshot-rollback transactions. It mirrors the semantics the postgres
// backend gets from the database: conditional stock writes, per-document
// order serialization, and an all-or-nothing checkout transaction.
package memory

import (
	"context"
	"sync"

	"github.com/calico-commerce/storefront/internal/application/checkout"
	"github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/payment"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]*catalog.Product
	carts    map[string]*cart.Cart
	orders   map[string]*order.Order
	numbers  map[string]string // order number -> order id
	intents  map[string]string // payment intent id -> order id
	events   map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]*catalog.Product),
		carts:    make(map[string]*cart.Cart),
		orders:   make(map[string]*order.Order),
		numbers:  make(map[string]string),
		intents:  make(map[string]string),
		events:   make(map[string]struct{}),
	}
}

// SeedProducts loads catalog documents. The catalog collaborator owns
// product metadata; this is its stand-in for demos and tests.
func (s *Store) SeedProducts(ps ...*catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.products[p.ID] = p.Clone()
	}
}

func (s *Store) Catalog() catalog.Repository { return &catalogRepo{s: s} }
func (s *Store) Carts() cart.Repository      { return &cartRepo{s: s} }
func (s *Store) Orders() order.Repository    { return &orderRepo{s: s} }
func (s *Store) Ledger() inventory.Ledger    { return &stockLedger{s: s} }
func (s *Store) Deduper() payment.Deduper    { return &eventDeduper{s: s} }

// RunInTx runs fn under the store's write lock against unlocked views of
// the repositories. Before fn runs, every map is snapshotted; any error
// puts the snapshot back, so no partial write is ever observable.
func (s *Store) RunInTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&txView{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	products map[string]*catalog.Product
	carts    map[string]*cart.Cart
	orders   map[string]*order.Order
	numbers  map[string]string
	intents  map[string]string
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		products: make(map[string]*catalog.Product, len(s.products)),
		carts:    make(map[string]*cart.Cart, len(s.carts)),
		orders:   make(map[string]*order.Order, len(s.orders)),
		numbers:  make(map[string]string, len(s.numbers)),
		intents:  make(map[string]string, len(s.intents)),
	}
	for k, v := range s.products {
		snap.products[k] = v.Clone()
	}
	for k, v := range s.carts {
		snap.carts[k] = v.Clone()
	}
	for k, v := range s.orders {
		snap.orders[k] = v.Clone()
	}
	for k, v := range s.numbers {
		snap.numbers[k] = v
	}
	for k, v := range s.intents {
		snap.intents[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.carts = snap.carts
	s.orders = snap.orders
	s.numbers = snap.numbers
	s.intents = snap.intents
}

// txView exposes unlocked repositories to a transaction body that already
// holds the store's write lock.
type txView struct{ s *Store }

func (t *txView) Orders() order.Repository  { return &orderRepo{s: t.s, inTx: true} }
func (t *txView) Stock() inventory.Ledger   { return &stockLedger{s: t.s, inTx: true} }
func (t *txView) Carts() cart.Repository    { return &cartRepo{s: t.s, inTx: true} }

// rlock/wlock return their unlock functions; inside a transaction both are
// no-ops because RunInTx holds the write lock for the duration.
func (s *Store) rlock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) wlock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}
