// Package memory implements every store interface in process memory.
//
// A single mutex guards all state. WithinTx holds it for the whole callback
// and snapshots the state first, so a failed callback leaves no trace and
// concurrent transactions are fully serialized.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
)

var _ order.Transactor = (*Store)(nil)

type txKey struct{}

type storedOrder struct {
	order.Order
	seq int
}

type state struct {
	products map[string]product.Product
	coupons  map[string]coupon.Coupon
	codes    map[string]string
	carts    map[string][]cart.Item
	orders   map[string]storedOrder
	seq      int
}

func (st *state) clone() state {
	carts := make(map[string][]cart.Item, len(st.carts))
	for k, v := range st.carts {
		carts[k] = slices.Clone(v)
	}
	return state{
		products: maps.Clone(st.products),
		coupons:  maps.Clone(st.coupons),
		codes:    maps.Clone(st.codes),
		carts:    carts,
		// Order items are immutable, sharing the slices is safe.
		orders: maps.Clone(st.orders),
		seq:    st.seq,
	}
}

// Store is an in-memory marketplace database.
type Store struct {
	mu    sync.Mutex
	st    state
	now   func() time.Time
	newID func() string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		st: state{
			products: make(map[string]product.Product),
			coupons:  make(map[string]coupon.Coupon),
			codes:    make(map[string]string),
			carts:    make(map[string][]cart.Item),
			orders:   make(map[string]storedOrder),
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithinTx runs fn with exclusive access to the store. When fn returns an
// error or panics, all changes made through ctx are rolled back. Nested
// calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snap := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snap
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store mutex unless ctx already holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// PutCoupon inserts or replaces a coupon. The code is stored normalized.
func (s *Store) PutCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = coupon.Normalize(c.Code)
	if old, ok := s.st.coupons[c.ID]; ok {
		delete(s.st.codes, old.Code)
	}
	s.st.coupons[c.ID] = c
	s.st.codes[c.Code] = c.ID
}

// Products returns the product repository view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Coupons returns the coupon repository view of the store.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Carts returns the cart repository view of the store.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }
