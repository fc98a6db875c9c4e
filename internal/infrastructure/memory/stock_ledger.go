package memory

import (
	"context"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
)

// stockLedger implements the conditional stock primitives. Check and write
// happen under one critical section, which gives the same
// compare-and-swap guarantee the postgres backend gets from a conditional
// UPDATE: two concurrent decrements can never jointly exceed the cell.
type stockLedger struct {
	s    *Store
	inTx bool
}

func (l *stockLedger) CheckAvailability(ctx context.Context, req inventory.ItemRequest) (inventory.Availability, error) {
	_ = ctx
	unlock := l.s.rlock(l.inTx)
	defer unlock()

	p, cells, err := l.resolve(req)
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
	_ = ctx
	unlock := l.s.wlock(l.inTx)
	defer unlock()
	return l.decrementLocked(req)
}

func (l *stockLedger) Restore(ctx context.Context, req inventory.ItemRequest) error {
	_ = ctx
	unlock := l.s.wlock(l.inTx)
	defer unlock()

	p, cells, err := l.resolve(req)
	if err != nil {
		return err
	}
	if !p.TrackInventory {
		return nil
	}
	for _, c := range cells {
		stock, _ := p.CellStock(c)
		p.SetCellStock(c, stock+req.Quantity)
	}
	return nil
}

func (l *stockLedger) BatchDecrement(ctx context.Context, reqs []inventory.ItemRequest) error {
	_ = ctx
	unlock := l.s.wlock(l.inTx)
	defer unlock()

	// First pass collects every item's failure; nothing is written unless
	// the whole batch can go through.
	var failures []inventory.ItemFailure
	for _, req := range reqs {
		p, cells, err := l.resolve(req)
		if err != nil {
			failures = append(failures, inventory.ItemFailure{ProductID: req.ProductID, Err: err})
			continue
		}
		available := minCellStock(p, cells)
		if p.TrackInventory && available < req.Quantity && !p.AllowBackorder {
			failures = append(failures, inventory.ItemFailure{
				ProductID: req.ProductID,
				Err: &inventory.InsufficientStockError{
					ProductID: req.ProductID,
					Requested: req.Quantity,
					Available: available,
				},
			})
		}
	}
	if len(failures) > 0 {
		return &inventory.BatchError{Failures: failures}
	}

	for _, req := range reqs {
		if _, err := l.decrementLocked(req); err != nil {
			// Unreachable given the check above runs under the same lock.
			return &inventory.BatchError{Failures: []inventory.ItemFailure{{ProductID: req.ProductID, Err: err}}}
		}
	}
	return nil
}

func (l *stockLedger) decrementLocked(req inventory.ItemRequest) (inventory.Decremented, error) {
	p, cells, err := l.resolve(req)
	if err != nil {
		return inventory.Decremented{}, err
	}

	available := minCellStock(p, cells)
	if !p.TrackInventory {
		return inventory.Decremented{AvailableStock: available}, nil
	}
	if available < req.Quantity && !p.AllowBackorder {
		return inventory.Decremented{}, &inventory.InsufficientStockError{
			ProductID: req.ProductID,
			Requested: req.Quantity,
			Available: available,
		}
	}

	// Backordered cells clamp at zero; stock never goes negative.
	for _, c := range cells {
		stock, _ := p.CellStock(c)
		next := stock - req.Quantity
		if next < 0 {
			next = 0
		}
		p.SetCellStock(c, next)
	}
	return inventory.Decremented{AvailableStock: minCellStock(p, cells)}, nil
}

func (l *stockLedger) resolve(req inventory.ItemRequest) (*catalog.Product, []catalog.CellRef, error) {
	p, ok := l.s.products[req.ProductID]
	if !ok {
		return nil, nil, inventory.ErrNotFound
	}
	cells, err := p.ResolveCells(req.Selection)
	if err != nil {
		return nil, nil, err
	}
	return p, cells, nil
}

// minCellStock is the quantity the selection can actually be fulfilled at:
// the scarcest of its resolved cells.
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
