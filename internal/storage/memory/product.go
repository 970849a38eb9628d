package memory

import (
	"context"

	"github.com/xenking/bazaar/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids. Missing ids are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer r.s.lock(ctx)()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	defer r.s.lock(ctx)()

	p, ok := r.s.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	// Stock stays within 0..MaxStock, so neither comparison can wrap.
	if delta < 0 && p.Stock+delta < 0 {
		return product.ErrInsufficientStock
	}
	if delta > 0 && p.Stock > product.MaxStock-delta {
		return product.ErrStockOverflow
	}
	p.Stock += delta
	r.s.st.products[id] = p
	return nil
}
