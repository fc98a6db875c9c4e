package catalog

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("catalog: product not found")
	ErrVariantNotFound     = errors.New("catalog: variant option not found")
	ErrSelectionIncomplete = errors.New("catalog: selection must cover every variant")
	ErrSelectionUnexpected = errors.New("catalog: product has no variants")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// VariantOption is one sellable value of a variant ("size" -> "XL") with
// its own stock cell.
type VariantOption struct {
	Value string
	Stock int
}

type Variant struct {
	Name    string
	Options []VariantOption
}

// Product is the read model supplied by the catalog collaborator. The core
// never writes product metadata; only stock cells are mutated, and only
// through the inventory ledger.
type Product struct {
	ID             string
	Name           string
	SKU            string
	Price          int64 // minor units
	Status         Status
	TrackInventory bool
	AllowBackorder bool
	Stock          int // flat stock cell, unused when Variants is non-empty
	Variants       []Variant
}

func (p *Product) Active() bool      { return p.Status == StatusActive }
func (p *Product) HasVariants() bool { return len(p.Variants) > 0 }

// CellRef addresses one stock cell: the flat product counter (zero value)
// or a single variant option's counter.
type CellRef struct {
	VariantName string
	OptionValue string
}

func (c CellRef) Flat() bool { return c.VariantName == "" }

// ResolveCells maps a variant selection to the stock cells it addresses.
// A product without variants accepts only the empty selection and resolves
// to its flat cell. A product with variants requires exactly one selected
// option per variant, each of which must exist.
func (p *Product) ResolveCells(sel Selection) ([]CellRef, error) {
	if !p.HasVariants() {
		if !sel.IsZero() {
			return nil, ErrSelectionUnexpected
		}
		return []CellRef{{}}, nil
	}

	opts := sel.Options()
	if len(opts) != len(p.Variants) {
		return nil, ErrSelectionIncomplete
	}

	cells := make([]CellRef, 0, len(opts))
	for _, v := range p.Variants {
		value, ok := selectedValue(opts, v.Name)
		if !ok {
			return nil, ErrSelectionIncomplete
		}
		if !hasOption(v, value) {
			return nil, ErrVariantNotFound
		}
		cells = append(cells, CellRef{VariantName: v.Name, OptionValue: value})
	}
	return cells, nil
}

// CellStock reads the quantity of one stock cell.
func (p *Product) CellStock(ref CellRef) (int, bool) {
	if ref.Flat() {
		if p.HasVariants() {
			return 0, false
		}
		return p.Stock, true
	}
	for _, v := range p.Variants {
		if v.Name != ref.VariantName {
			continue
		}
		for _, o := range v.Options {
			if o.Value == ref.OptionValue {
				return o.Stock, true
			}
		}
	}
	return 0, false
}

// SetCellStock writes one stock cell. Reserved for ledger implementations;
// cart and order code must never call it.
func (p *Product) SetCellStock(ref CellRef, quantity int) bool {
	if ref.Flat() {
		if p.HasVariants() {
			return false
		}
		p.Stock = quantity
		return true
	}
	for vi := range p.Variants {
		if p.Variants[vi].Name != ref.VariantName {
			continue
		}
		for oi := range p.Variants[vi].Options {
			if p.Variants[vi].Options[oi].Value == ref.OptionValue {
				p.Variants[vi].Options[oi].Stock = quantity
				return true
			}
		}
	}
	return false
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Variants = make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		clone.Variants[i] = Variant{
			Name:    v.Name,
			Options: append([]VariantOption(nil), v.Options...),
		}
	}
	return &clone
}

func selectedValue(opts []SelectedOption, name string) (string, bool) {
	for _, o := range opts {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

func hasOption(v Variant, value string) bool {
	for _, o := range v.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Repository is the read-only port onto the catalog collaborator's data.
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	// FindByIDs batches lookups into one multi-get; missing ids are simply
	// absent from the result map.
	FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
}
