package memory

import (
	"context"
	"slices"

	"github.com/xenking/bazaar/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository.
type CartRepository struct {
	s *Store
}

func (r *CartRepository) ListItems(ctx context.Context, customerID string) ([]cart.Item, error) {
	defer r.s.lock(ctx)()

	return slices.Clone(r.s.st.carts[customerID]), nil
}

func (r *CartRepository) Add(ctx context.Context, customerID, productID string, quantity int) (*cart.Item, error) {
	defer r.s.lock(ctx)()

	now := r.s.now()
	items := r.s.st.carts[customerID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			items[i].UpdatedAt = now
			it := items[i]
			return &it, nil
		}
	}

	it := cart.Item{
		ID:         r.s.newID(),
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   quantity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.s.st.carts[customerID] = append(items, it)
	return &it, nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, customerID, itemID string, quantity int) (*cart.Item, error) {
	defer r.s.lock(ctx)()

	items := r.s.st.carts[customerID]
	i := slices.IndexFunc(items, func(it cart.Item) bool { return it.ID == itemID })
	if i < 0 {
		return nil, cart.ErrItemNotFound
	}
	items[i].Quantity = quantity
	items[i].UpdatedAt = r.s.now()
	it := items[i]
	return &it, nil
}

func (r *CartRepository) Remove(ctx context.Context, customerID, itemID string) error {
	defer r.s.lock(ctx)()

	items := r.s.st.carts[customerID]
	i := slices.IndexFunc(items, func(it cart.Item) bool { return it.ID == itemID })
	if i < 0 {
		return cart.ErrItemNotFound
	}
	r.s.st.carts[customerID] = slices.Delete(slices.Clone(items), i, i+1)
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	defer r.s.lock(ctx)()

	delete(r.s.st.carts, customerID)
	return nil
}
