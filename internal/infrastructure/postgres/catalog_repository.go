package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

type catalogRepo struct {
	q querier
}

func (r *catalogRepo) Get(ctx context.Context, id string) (*catalog.Product, error) {
	ps, err := loadProducts(ctx, r.q, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := ps[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (r *catalogRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*catalog.Product, error) {
	if len(ids) == 0 {
		return map[string]*catalog.Product{}, nil
	}
	return loadProducts(ctx, r.q, ids)
}

// loadProducts fetches product rows and their variant options in two
// batched queries; missing ids are simply absent from the result.
func loadProducts(ctx context.Context, q querier, ids []string) (map[string]*catalog.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, sku, price, status, track_inventory, allow_backorder, stock
		FROM products
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: query products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*catalog.Product)
	for rows.Next() {
		p := &catalog.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Status,
			&p.TrackInventory, &p.AllowBackorder, &p.Stock); err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate products: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	found := make([]string, 0, len(out))
	for id := range out {
		found = append(found, id)
	}
	if err := attachVariants(ctx, q, out, found); err != nil {
		return nil, err
	}
	return out, nil
}

func attachVariants(ctx context.Context, q querier, products map[string]*catalog.Product, ids []string) error {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, variant_name, option_value, stock
		FROM product_variant_options
		WHERE product_id = ANY($1)
		ORDER BY product_id, variant_name, option_value`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("postgres: query variant options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID, name, value string
		var stock int
		if err := rows.Scan(&productID, &name, &value, &stock); err != nil {
			return fmt.Errorf("postgres: scan variant option: %w", err)
		}
		p := products[productID]
		if p == nil {
			continue
		}
		appendOption(p, name, catalog.VariantOption{Value: value, Stock: stock})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: iterate variant options: %w", err)
	}
	return nil
}

// appendOption relies on the ORDER BY above: options of one variant arrive
// contiguously, so a new name always starts a new variant.
func appendOption(p *catalog.Product, name string, opt catalog.VariantOption) {
	if n := len(p.Variants); n > 0 && p.Variants[n-1].Name == name {
		p.Variants[n-1].Options = append(p.Variants[n-1].Options, opt)
		return
	}
	p.Variants = append(p.Variants, catalog.Variant{Name: name, Options: []catalog.VariantOption{opt}})
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
