package memory

import (
	"context"

	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

type catalogRepo struct {
	s    *Store
	inTx bool
}

func (r *catalogRepo) Get(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx
	unlock := r.s.rlock(r.inTx)
	defer unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *catalogRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*catalog.Product, error) {
	_ = ctx
	unlock := r.s.rlock(r.inTx)
	defer unlock()

	out := make(map[string]*catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p.Clone()
		}
	}
	return out, nil
}
