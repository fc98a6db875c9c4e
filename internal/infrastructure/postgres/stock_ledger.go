package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
)

// stockLedger implements the conditional stock primitives on the database.
// A decrement is a single conditional UPDATE whose WHERE clause re-checks
// the stock level at write time, so two concurrent buyers can never
// jointly exceed a cell.
type stockLedger struct {
	// db is set outside transactions so multi-cell writes get their own;
	// inside a checkout transaction only q is set.
	db *sql.DB
	q  querier
}

func (l *stockLedger) CheckAvailability(ctx context.Context, req inventory.ItemRequest) (inventory.Availability, error) {
	p, cells, err := resolve(ctx, l.q, req)
	if err != nil {
		return inventory.Availability{}, err
	}

	available := minCellStock(p, cells)
	return inventory.Availability{
		Available:      inventory.Sellable(p, available, req.Quantity),
		AvailableStock: available,
		CanBackorder:   p.AllowBackorder,
	}, nil
}

func (l *stockLedger) Decrement(ctx context.Context, req inventory.ItemRequest) (inventory.Decremented, error) {
	var dec inventory.Decremented
	err := l.write(ctx, func(q querier) error {
		var err error
		dec, err = decrementOne(ctx, q, req)
		return err
	})
	return dec, err
}

func (l *stockLedger) Restore(ctx context.Context, req inventory.ItemRequest) error {
	return l.write(ctx, func(q querier) error {
		p, cells, err := resolve(ctx, q, req)
		if err != nil {
			return err
		}
		if !p.TrackInventory {
			return nil
		}
		for _, c := range cells {
			if err := addCellStock(ctx, q, req.ProductID, c, req.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *stockLedger) BatchDecrement(ctx context.Context, reqs []inventory.ItemRequest) error {
	return l.write(ctx, func(q querier) error {
		return batchDecrement(ctx, q, reqs)
	})
}

// write runs fn in its own transaction when the ledger is used standalone,
// so multi-statement stock writes stay atomic. Inside a checkout
// transaction fn simply joins it.
func (l *stockLedger) write(ctx context.Context, fn func(q querier) error) error {
	if l.db == nil {
		return fn(l.q)
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

func decrementOne(ctx context.Context, q querier, req inventory.ItemRequest) (inventory.Decremented, error) {
	p, cells, err := resolve(ctx, q, req)
	if err != nil {
		return inventory.Decremented{}, err
	}
	if !p.TrackInventory {
		return inventory.Decremented{AvailableStock: minCellStock(p, cells)}, nil
	}

	remaining := 0
	for i, c := range cells {
		after, err := decrementCell(ctx, q, p, c, req.Quantity)
		if err != nil {
			return inventory.Decremented{}, err
		}
		if i == 0 || after < remaining {
			remaining = after
		}
	}
	return inventory.Decremented{AvailableStock: remaining}, nil
}

// decrementCell is the compare-and-swap: the WHERE clause only matches
// while the cell still holds enough stock (or the product backorders, in
// which case the write clamps at zero). A non-matching row means another
// buyer got there first.
func decrementCell(ctx context.Context, q querier, p *catalog.Product, c catalog.CellRef, quantity int) (int, error) {
	var (
		after int
		err   error
	)
	if c.Flat() {
		err = q.QueryRowContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock - $2, 0)
			WHERE id = $1 AND (allow_backorder OR stock >= $2)
			RETURNING stock`, p.ID, quantity).Scan(&after)
	} else {
		err = q.QueryRowContext(ctx, `
			UPDATE product_variant_options
			SET stock = GREATEST(stock - $4, 0)
			WHERE product_id = $1 AND variant_name = $2 AND option_value = $3
			  AND ($5 OR stock >= $4)
			RETURNING stock`, p.ID, c.VariantName, c.OptionValue, quantity, p.AllowBackorder).Scan(&after)
	}
	if isNoRows(err) {
		available, rerr := cellStock(ctx, q, p.ID, c, false)
		if rerr != nil {
			return 0, rerr
		}
		return 0, &inventory.InsufficientStockError{
			ProductID: p.ID,
			Requested: quantity,
			Available: available,
		}
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: decrement stock: %w", err)
	}
	return after, nil
}

// batchDecrement locks every affected cell, verifies the whole batch, and
// only then writes, so either all lines decrement or none do. Lock order
// is sorted by product id to keep concurrent batches deadlock-free.
func batchDecrement(ctx context.Context, q querier, reqs []inventory.ItemRequest) error {
	ordered := append([]inventory.ItemRequest(nil), reqs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	type plan struct {
		req   inventory.ItemRequest
		p     *catalog.Product
		cells []catalog.CellRef
	}
	var (
		plans    []plan
		failures []inventory.ItemFailure
	)
	for _, req := range ordered {
		p, cells, err := resolve(ctx, q, req)
		if err != nil {
			failures = append(failures, inventory.ItemFailure{ProductID: req.ProductID, Err: err})
			continue
		}

		available := 0
		for i, c := range cells {
			stock, err := cellStock(ctx, q, req.ProductID, c, true)
			if err != nil {
				return err
			}
			if i == 0 || stock < available {
				available = stock
			}
		}
		if p.TrackInventory && available < req.Quantity && !p.AllowBackorder {
			failures = append(failures, inventory.ItemFailure{
				ProductID: req.ProductID,
				Err: &inventory.InsufficientStockError{
					ProductID: req.ProductID,
					Requested: req.Quantity,
					Available: available,
				},
			})
			continue
		}
		plans = append(plans, plan{req: req, p: p, cells: cells})
	}
	if len(failures) > 0 {
		return &inventory.BatchError{Failures: failures}
	}

	for _, pl := range plans {
		if !pl.p.TrackInventory {
			continue
		}
		for _, c := range pl.cells {
			if err := addCellStock(ctx, q, pl.req.ProductID, c, -pl.req.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolve(ctx context.Context, q querier, req inventory.ItemRequest) (*catalog.Product, []catalog.CellRef, error) {
	ps, err := loadProducts(ctx, q, []string{req.ProductID})
	if err != nil {
		return nil, nil, err
	}
	p, ok := ps[req.ProductID]
	if !ok {
		return nil, nil, inventory.ErrNotFound
	}
	cells, err := p.ResolveCells(req.Selection)
	if err != nil {
		return nil, nil, err
	}
	return p, cells, nil
}

func cellStock(ctx context.Context, q querier, productID string, c catalog.CellRef, forUpdate bool) (int, error) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}

	var stock int
	var err error
	if c.Flat() {
		err = q.QueryRowContext(ctx,
			`SELECT stock FROM products WHERE id = $1`+suffix, productID).Scan(&stock)
	} else {
		err = q.QueryRowContext(ctx, `
			SELECT stock FROM product_variant_options
			WHERE product_id = $1 AND variant_name = $2 AND option_value = $3`+suffix,
			productID, c.VariantName, c.OptionValue).Scan(&stock)
	}
	if isNoRows(err) {
		return 0, inventory.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: read stock cell: %w", err)
	}
	return stock, nil
}

// addCellStock shifts one cell by delta, clamping at zero. Restores pass a
// positive delta; pre-validated batch decrements pass a negative one.
func addCellStock(ctx context.Context, q querier, productID string, c catalog.CellRef, delta int) error {
	var err error
	if c.Flat() {
		_, err = q.ExecContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock + $2, 0)
			WHERE id = $1`, productID, delta)
	} else {
		_, err = q.ExecContext(ctx, `
			UPDATE product_variant_options
			SET stock = GREATEST(stock + $4, 0)
			WHERE product_id = $1 AND variant_name = $2 AND option_value = $3`,
			productID, c.VariantName, c.OptionValue, delta)
	}
	if err != nil {
		return fmt.Errorf("postgres: adjust stock cell: %w", err)
	}
	return nil
}

func minCellStock(p *catalog.Product, cells []catalog.CellRef) int {
	min := 0
	for i, c := range cells {
		stock, _ := p.CellStock(c)
		if i == 0 || stock < min {
			min = stock
		}
	}
	return min
}
