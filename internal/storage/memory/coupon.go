package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/xenking/bazaar/internal/domain/coupon"
)

var (
	_ coupon.Repository       = (*CouponRepository)(nil)
	_ coupon.VendorRepository = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.VendorRepository.
type CouponRepository struct {
	s *Store
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.st.codes[coupon.Normalize(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c := r.s.st.coupons[id]
	return &c, nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.coupons[id]
	if !ok || !c.Active || !now.Before(c.ExpiresAt) || c.UsedCount >= c.MaxUses {
		return coupon.ErrUsageLimitReached
	}
	c.UsedCount++
	r.s.st.coupons[id] = c
	return nil
}

func (r *CouponRepository) ListByVendor(ctx context.Context, vendorID string) ([]coupon.Coupon, error) {
	defer r.s.lock(ctx)()

	var out []coupon.Coupon
	for _, c := range r.s.st.coupons {
		if c.VendorID == vendorID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out, nil
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	defer r.s.lock(ctx)()

	code := coupon.Normalize(c.Code)
	if _, taken := r.s.st.codes[code]; taken {
		return coupon.ErrDuplicateCode
	}
	stored := *c
	stored.Code = code
	r.s.st.coupons[stored.ID] = stored
	r.s.st.codes[code] = stored.ID
	return nil
}

func (r *CouponRepository) SetActive(ctx context.Context, id string, active bool) (*coupon.Coupon, error) {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c.Active = active
	r.s.st.coupons[id] = c
	return &c, nil
}

func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()

	c, ok := r.s.st.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	delete(r.s.st.coupons, id)
	delete(r.s.st.codes, c.Code)
	return nil
}
