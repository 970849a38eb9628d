package memory

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutProduct(product.Product{ID: "p1", VendorID: "v1", Name: "Mug", Price: decimal.RequireFromString("10.00"), Stock: 5, Active: true})
	s.PutCoupon(coupon.Coupon{ID: "c1", Code: "save10", DiscountPercent: 10, MaxUses: 1, ExpiresAt: time.Now().Add(time.Hour), Active: true})
	return s
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Products().AdjustStock(ctx, "p1", -3))
		_, err := s.Carts().Add(ctx, "u1", "p1", 2)
		require.NoError(t, err)
		require.NoError(t, s.Coupons().IncrementUsage(ctx, "c1", time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	items, err := s.Carts().ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	c, err := s.Coupons().FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UsedCount)
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Products().AdjustStock(ctx, "p1", -5))
			panic("boom")
		})
	})

	p, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestWithinTx_Nested(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.WithinTx(ctx, func(ctx context.Context) error {
			return s.Products().AdjustStock(ctx, "p1", -1)
		})
	})
	require.NoError(t, err)

	p, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Stock)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Products()

	require.ErrorIs(t, repo.AdjustStock(ctx, "p1", -6), product.ErrInsufficientStock)
	require.ErrorIs(t, repo.AdjustStock(ctx, "missing", 1), product.ErrNotFound)
	require.NoError(t, repo.AdjustStock(ctx, "p1", -5))

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestAdjustStock_Bounds(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Products()

	require.ErrorIs(t, repo.AdjustStock(ctx, "p1", math.MinInt), product.ErrInsufficientStock)
	require.ErrorIs(t, repo.AdjustStock(ctx, "p1", math.MaxInt), product.ErrStockOverflow)
	require.ErrorIs(t, repo.AdjustStock(ctx, "p1", product.MaxStock-4), product.ErrStockOverflow)
	require.NoError(t, repo.AdjustStock(ctx, "p1", product.MaxStock-5))

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, product.MaxStock, p.Stock)
}

func TestAdjustStock_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Products()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.AdjustStock(ctx, "p1", -1) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, ok)
	assert.Equal(t, 0, p.Stock)
}

func TestCoupon_IncrementUsage(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Coupons()
	now := time.Now()

	require.NoError(t, repo.IncrementUsage(ctx, "c1", now))
	require.ErrorIs(t, repo.IncrementUsage(ctx, "c1", now), coupon.ErrUsageLimitReached)

	s.PutCoupon(coupon.Coupon{ID: "c2", Code: "old", DiscountPercent: 5, MaxUses: 10, ExpiresAt: now.Add(-time.Minute), Active: true})
	require.ErrorIs(t, repo.IncrementUsage(ctx, "c2", now), coupon.ErrUsageLimitReached)

	_, err := repo.FindByCode(ctx, " Old ")
	require.NoError(t, err)
	_, err = repo.FindByCode(ctx, "nope")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCart_AddMergesAndRemoves(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Carts()

	first, err := repo.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	merged, err := repo.Add(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, 3, merged.Quantity)

	items, err := repo.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	set, err := repo.SetQuantity(ctx, "u1", first.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Quantity)
	_, err = repo.SetQuantity(ctx, "u2", first.ID, 1)
	require.ErrorIs(t, err, cart.ErrItemNotFound)

	require.ErrorIs(t, repo.Remove(ctx, "u2", first.ID), cart.ErrItemNotFound)
	require.NoError(t, repo.Remove(ctx, "u1", first.ID))

	items, err = repo.ListItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOrders_StatusAndListing(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	repo := s.Orders()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2"} {
		require.NoError(t, repo.Create(ctx, &order.Order{
			ID:         id,
			CustomerID: "u1",
			Status:     order.StatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Items:      []order.Item{{ID: id + "-i", OrderID: id, ProductID: "p1", VendorID: "v1", Quantity: 1}},
		}))
	}
	require.Error(t, repo.Create(ctx, &order.Order{ID: "o1"}))

	list, err := repo.ListByCustomer(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o2", list[0].ID)

	lines, err := repo.ListLinesByVendor(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "u1", lines[0].CustomerID)

	require.NoError(t, repo.UpdateStatus(ctx, "o1", order.StatusPending, order.StatusConfirmed, base))
	require.ErrorIs(t, repo.UpdateStatus(ctx, "o1", order.StatusPending, order.StatusCancelled, base), order.ErrStatusConflict)
	require.ErrorIs(t, repo.UpdateStatus(ctx, "missing", order.StatusPending, order.StatusCancelled, base), order.ErrNotFound)

	got, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)

	got.Items[0].Quantity = 99
	again, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}
