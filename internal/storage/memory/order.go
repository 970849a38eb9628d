package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bazaar/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.st.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	r.s.st.seq++
	stored := *o
	stored.Items = slices.Clone(o.Items)
	r.s.st.orders[o.ID] = storedOrder{Order: stored, seq: r.s.st.seq}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()

	so, ok := r.s.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := copyOrder(so.Order)
	return &o, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	defer r.s.lock(ctx)()

	var out []order.Order
	for _, so := range r.newestFirst() {
		if so.CustomerID == customerID {
			out = append(out, copyOrder(so.Order))
		}
	}
	return out, nil
}

func (r *OrderRepository) ListLinesByVendor(ctx context.Context, vendorID string) ([]order.VendorLine, error) {
	defer r.s.lock(ctx)()

	var out []order.VendorLine
	for _, so := range r.newestFirst() {
		for _, it := range so.Items {
			if it.VendorID != vendorID {
				continue
			}
			out = append(out, order.VendorLine{
				Item:            it,
				CustomerID:      so.CustomerID,
				OrderStatus:     so.Status,
				ShippingAddress: so.ShippingAddress,
				OrderCreatedAt:  so.CreatedAt,
			})
		}
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	defer r.s.lock(ctx)()

	so, ok := r.s.st.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if so.Status != from {
		return order.ErrStatusConflict
	}
	so.Status = to
	so.UpdatedAt = at
	r.s.st.orders[id] = so
	return nil
}

// newestFirst must be called with the store locked.
func (r *OrderRepository) newestFirst() []storedOrder {
	all := slices.Collect(maps.Values(r.s.st.orders))
	slices.SortFunc(all, func(a, b storedOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	return all
}

func copyOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
