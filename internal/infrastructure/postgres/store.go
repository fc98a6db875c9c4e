// Package postgres implements the storage ports on database/sql with the
// lib/pq driver. Stock safety comes from conditional UPDATEs, checkout
// atomicity from a single sql.Tx, and order write serialization from
// SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/calico-commerce/storefront/internal/application/checkout"
	"github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/payment"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every repository runs unchanged inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Catalog() catalog.Repository { return &catalogRepo{q: s.db} }
func (s *Store) Carts() cart.Repository      { return &cartRepo{q: s.db} }
func (s *Store) Orders() order.Repository    { return &orderRepo{db: s.db, q: s.db} }
func (s *Store) Ledger() inventory.Ledger    { return &stockLedger{db: s.db, q: s.db} }
func (s *Store) Deduper() payment.Deduper    { return &eventDeduper{q: s.db} }

// RunInTx runs fn inside one database transaction; any error from fn rolls
// every statement back.
func (s *Store) RunInTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(&txView{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

type txView struct{ tx *sql.Tx }

func (t *txView) Orders() order.Repository { return &orderRepo{q: t.tx} }
func (t *txView) Stock() inventory.Ledger  { return &stockLedger{q: t.tx} }
func (t *txView) Carts() cart.Repository   { return &cartRepo{q: t.tx} }

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOf(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}
