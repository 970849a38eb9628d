package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/storage/memory"
)

var (
	alice  = auth.Principal{ID: "alice", Role: auth.RoleCustomer}
	bob    = auth.Principal{ID: "bob", Role: auth.RoleCustomer}
	acme   = auth.Principal{ID: "acme", Role: auth.RoleVendor}
	globex = auth.Principal{ID: "globex", Role: auth.RoleVendor}
	now    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testAddress() *order.Address {
	return &order.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"}
}

type fixture struct {
	store *memory.Store
	carts *cart.Service
	svc   *order.Service
}

func newFixture(t *testing.T, opts ...order.Option) *fixture {
	t.Helper()
	s := memory.New()
	s.PutProduct(product.Product{ID: "a", VendorID: "acme", Name: "Product A", Price: decimal.RequireFromString("100.00"), Stock: 5, Active: true})
	s.PutProduct(product.Product{ID: "b", VendorID: "globex", Name: "Product B", Price: decimal.RequireFromString("25.50"), Stock: 1, Active: true})
	s.PutProduct(product.Product{ID: "c", VendorID: "globex", Name: "Product C", Price: decimal.RequireFromString("3.00"), Stock: 10, Active: true})
	s.PutCoupon(coupon.Coupon{ID: "save10", Code: "SAVE10", DiscountPercent: 10, MaxUses: 100, ExpiresAt: now.Add(24 * time.Hour), Active: true})

	opts = append([]order.Option{order.WithClock(func() time.Time { return now })}, opts...)
	return &fixture{
		store: s,
		carts: cart.NewService(s.Carts(), s.Products()),
		svc:   order.NewService(s, s.Orders(), s.Carts(), s.Products(), s.Coupons(), opts...),
	}
}

func (f *fixture) add(t *testing.T, p auth.Principal, productID string, qty int) {
	t.Helper()
	_, err := f.carts.Add(context.Background(), p, productID, qty)
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.Products().GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) cartLen(t *testing.T, customerID string) int {
	t.Helper()
	items, err := f.store.Carts().ListItems(context.Background(), customerID)
	require.NoError(t, err)
	return len(items)
}

func (f *fixture) couponUses(t *testing.T, code string) int {
	t.Helper()
	c, err := f.store.Coupons().FindByCode(context.Background(), code)
	require.NoError(t, err)
	return c.UsedCount
}

func TestCreateOrder_NoCoupon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 2)

	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(decimal.RequireFromString("200.00")), o.Total.String())
	assert.True(t, o.DiscountAmount.IsZero())
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.DefaultPaymentMethod, o.PaymentMethod)
	assert.Empty(t, o.CouponCode)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "acme", o.Items[0].VendorID)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, o.Items[0].Price.Equal(decimal.RequireFromString("100.00")))

	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Zero(t, f.cartLen(t, "alice"))
}

func TestCreateOrder_WithCoupon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 2)

	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{
		ShippingAddress: testAddress(),
		CouponCode:      " save10 ",
		PaymentMethod:   "card",
	})
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(decimal.RequireFromString("180.00")), o.Total.String())
	assert.True(t, o.DiscountAmount.Equal(decimal.RequireFromString("20.00")), o.DiscountAmount.String())
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, "card", o.PaymentMethod)
	assert.Equal(t, 1, f.couponUses(t, "SAVE10"))
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Bypass the cart stock check to build a cart the store cannot cover.
	_, err := f.store.Carts().Add(ctx, "alice", "b", 2)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Lines, 1)
	assert.Equal(t, order.Shortage{ProductID: "b", Requested: 2, Available: 1}, stockErr.Lines[0])

	assert.Equal(t, 1, f.stock(t, "b"))
	assert.Equal(t, 1, f.cartLen(t, "alice"))
}

func TestCreateOrder_ReportsEveryShortLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 5)
	f.add(t, alice, "b", 1)
	require.NoError(t, f.store.Products().AdjustStock(ctx, "a", -4))
	require.NoError(t, f.store.Products().AdjustStock(ctx, "b", -1))

	_, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []order.Shortage{
		{ProductID: "a", Requested: 5, Available: 1},
		{ProductID: "b", Requested: 1, Available: 0},
	}, stockErr.Lines)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.ErrorIs(t, err, order.ErrEmptyCart)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "a", 1)

	tests := []struct {
		name  string
		addr  *order.Address
		field string
	}{
		{"missing", nil, "shipping_address"},
		{"blank street", &order.Address{City: "X", State: "Y", Zip: "1"}, "shipping_address.street"},
		{"blank zip", &order.Address{Street: "1", City: "X", State: "Y", Zip: "  "}, "shipping_address.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), alice, order.CreateOrderRequest{ShippingAddress: tt.addr})
			var vErr *order.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Equal(t, 1, f.cartLen(t, "alice"))
}

func TestCreateOrder_BlankCouponCode(t *testing.T) {
	f := newFixture(t)
	f.add(t, alice, "a", 1)

	_, err := f.svc.CreateOrder(context.Background(), alice, order.CreateOrderRequest{
		ShippingAddress: testAddress(),
		CouponCode:      "   ",
	})
	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "coupon_code", vErr.Field)
	assert.Equal(t, 1, f.cartLen(t, "alice"))
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestCreateOrder_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), acme, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestCreateOrder_InvalidCouponLeavesCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutCoupon(coupon.Coupon{ID: "old", Code: "OLD", DiscountPercent: 50, MaxUses: 10, ExpiresAt: now.Add(-time.Hour), Active: true})
	f.store.PutCoupon(coupon.Coupon{ID: "off", Code: "OFF", DiscountPercent: 50, MaxUses: 10, ExpiresAt: now.Add(time.Hour)})
	f.store.PutCoupon(coupon.Coupon{ID: "used", Code: "USED", DiscountPercent: 50, MaxUses: 1, UsedCount: 1, ExpiresAt: now.Add(time.Hour), Active: true})
	f.add(t, alice, "a", 1)

	tests := []struct {
		code   string
		reason error
	}{
		{"NOPE", coupon.ErrNotFound},
		{"OLD", coupon.ErrExpired},
		{"OFF", coupon.ErrInactive},
		{"USED", coupon.ErrUsageLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress(), CouponCode: tt.code})
			var invalid *coupon.InvalidError
			require.ErrorAs(t, err, &invalid)
			require.ErrorIs(t, err, tt.reason)
		})
	}

	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 1, f.cartLen(t, "alice"))
}

func TestCreateOrder_DeactivatedProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 1)
	f.add(t, alice, "c", 1)
	f.store.PutProduct(product.Product{ID: "c", VendorID: "globex", Name: "Product C", Price: decimal.RequireFromString("3.00"), Stock: 10})

	_, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	var unavailable *order.ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "c", unavailable.ProductID)

	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 2, f.cartLen(t, "alice"))
}

func TestCreateOrder_ConcurrentStockNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const buyers = 12
	customers := make([]auth.Principal, buyers)
	for i := range customers {
		customers[i] = auth.Principal{ID: string(rune('A' + i)), Role: auth.RoleCustomer}
		f.add(t, customers[i], "a", 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for _, c := range customers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, c, order.CreateOrderRequest{ShippingAddress: testAddress()})
			var stockErr *order.InsufficientStockError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, short)
	assert.Equal(t, 0, f.stock(t, "a"))
}

func TestCreateOrder_ConcurrentCouponCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.PutCoupon(coupon.Coupon{ID: "few", Code: "FEW", DiscountPercent: 20, MaxUses: 3, ExpiresAt: now.Add(time.Hour), Active: true})

	const buyers = 8
	customers := make([]auth.Principal, buyers)
	for i := range customers {
		customers[i] = auth.Principal{ID: string(rune('a' + i)), Role: auth.RoleCustomer}
		f.add(t, customers[i], "c", 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, c := range customers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, c, order.CreateOrderRequest{ShippingAddress: testAddress(), CouponCode: "FEW"})
			var invalid *coupon.InvalidError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &invalid):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, buyers-3, rejected)
	assert.Equal(t, 3, f.couponUses(t, "FEW"))
	assert.Equal(t, 7, f.stock(t, "c"))
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 2)
	f.add(t, alice, "c", 4)

	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress(), CouponCode: "SAVE10"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Equal(t, 6, f.stock(t, "c"))

	cancelled, err := f.svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 10, f.stock(t, "c"))
	assert.Equal(t, 1, f.stock(t, "b"))
	// Redeemed coupon uses are not handed back.
	assert.Equal(t, 1, f.couponUses(t, "SAVE10"))

	_, err = f.svc.CancelOrder(ctx, alice, o.ID)
	require.ErrorIs(t, err, order.ErrAlreadyCancelled)
	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 10, f.stock(t, "c"))
}

func TestCancelOrder_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 1)
	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, bob, o.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)
	_, err = f.svc.CancelOrder(ctx, acme, o.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)
	_, err = f.svc.SetOrderStatus(ctx, acme, o.ID, order.StatusCancelled)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.CancelOrder(ctx, alice, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Equal(t, 4, f.stock(t, "a"))
}

func TestCancelOrder_AfterDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 1)
	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)

	_, err = f.svc.SetOrderStatus(ctx, acme, o.ID, order.StatusDelivered)
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, alice, o.ID)
	var transition *order.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, order.StatusDelivered, transition.From)
	assert.Equal(t, 4, f.stock(t, "a"))
}

func TestSetOrderStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 1)
	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)

	t.Run("ForeignVendor", func(t *testing.T) {
		_, err := f.svc.SetOrderStatus(ctx, globex, o.ID, order.StatusConfirmed)
		require.ErrorIs(t, err, auth.ErrForbidden)
	})
	t.Run("Customer", func(t *testing.T) {
		_, err := f.svc.SetOrderStatus(ctx, alice, o.ID, order.StatusConfirmed)
		require.ErrorIs(t, err, auth.ErrForbidden)
	})
	t.Run("UnknownStatus", func(t *testing.T) {
		_, err := f.svc.SetOrderStatus(ctx, acme, o.ID, order.Status("lost"))
		var vErr *order.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
	t.Run("Forward", func(t *testing.T) {
		got, err := f.svc.SetOrderStatus(ctx, acme, o.ID, order.StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, got.Status)
	})
	t.Run("Backward", func(t *testing.T) {
		for _, to := range []order.Status{order.StatusPending, order.StatusConfirmed, order.StatusShipped} {
			_, err := f.svc.SetOrderStatus(ctx, acme, o.ID, to)
			var transition *order.InvalidTransitionError
			require.ErrorAs(t, err, &transition, to)
			assert.Equal(t, order.StatusShipped, transition.From)
		}
	})
	t.Run("Delivered", func(t *testing.T) {
		got, err := f.svc.SetOrderStatus(ctx, acme, o.ID, order.StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, order.StatusDelivered, got.Status)
	})
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, alice, "a", 1)
	f.add(t, alice, "c", 2)
	o, err := f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, globex, o.ID)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, bob, o.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.GetOrder(ctx, alice, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)

	list, err := f.svc.ListOrdersForCustomer(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.svc.ListOrdersForCustomer(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	lines, err := f.svc.ListOrderLinesForVendor(ctx, globex)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "c", lines[0].ProductID)
	assert.Equal(t, "alice", lines[0].CustomerID)
	assert.Equal(t, order.StatusPending, lines[0].OrderStatus)

	_, err = f.svc.ListOrderLinesForVendor(ctx, alice)
	require.ErrorIs(t, err, auth.ErrForbidden)
}

// fakeIdempotency is an in-process order.IdempotencyStore.
type fakeIdempotency struct {
	mu      sync.Mutex
	locked  map[string]bool
	results map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{locked: map[string]bool{}, results: map[string]string{}}
}

func (f *fakeIdempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[scope+key] {
		return false, nil
	}
	f.locked[scope+key] = true
	return true, nil
}

func (f *fakeIdempotency) Release(_ context.Context, scope, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, scope+key)
	return nil
}

func (f *fakeIdempotency) Remember(_ context.Context, scope, key, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[scope+key] = orderID
	return nil
}

func (f *fakeIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.results[scope+key]
	return id, ok, nil
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	idem := newFakeIdempotency()
	f := newFixture(t, order.WithIdempotency(idem))
	f.add(t, alice, "a", 1)

	req := order.CreateOrderRequest{ShippingAddress: testAddress(), IdempotencyKey: "k1"}
	first, err := f.svc.CreateOrder(ctx, alice, req)
	require.NoError(t, err)

	again, err := f.svc.PlaceOrder(ctx, alice, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.ID, again.Order.ID)
	assert.Equal(t, 4, f.stock(t, "a"))

	// A failed attempt releases its claim.
	failed := order.CreateOrderRequest{ShippingAddress: testAddress(), IdempotencyKey: "k2"}
	_, err = f.svc.CreateOrder(ctx, alice, failed)
	require.ErrorIs(t, err, order.ErrEmptyCart)
	f.add(t, alice, "a", 1)
	placed, err := f.svc.PlaceOrder(ctx, alice, failed)
	require.NoError(t, err)
	assert.False(t, placed.Replayed)
	assert.Equal(t, 3, f.stock(t, "a"))

	// In-flight claims reject duplicates.
	_, err = idem.TryLock(ctx, "alice", "k3")
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress(), IdempotencyKey: "k3"})
	require.ErrorIs(t, err, order.ErrDuplicateRequest)
}

// stockRecorder records the order in which stock rows are adjusted.
type stockRecorder struct {
	product.Repository

	mu  sync.Mutex
	ids []string
}

func (r *stockRecorder) AdjustStock(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return r.Repository.AdjustStock(ctx, id, delta)
}

func TestStockAdjustedInProductOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &stockRecorder{Repository: f.store.Products()}
	svc := order.NewService(f.store, f.store.Orders(), f.store.Carts(), rec, f.store.Coupons(),
		order.WithClock(func() time.Time { return now }))

	// Cart order is c, a, b.
	f.add(t, alice, "c", 1)
	f.add(t, alice, "a", 1)
	f.add(t, alice, "b", 1)

	o, err := svc.CreateOrder(ctx, alice, order.CreateOrderRequest{ShippingAddress: testAddress()})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.ids)
	assert.Equal(t, "c", o.Items[0].ProductID, "order items keep cart order")

	rec.ids = nil
	_, err = svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rec.ids)
}
