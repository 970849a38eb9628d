package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/coupon"
)

const (
	couponColumns = `id, vendor_id, code, discount_percent, max_uses, used_count, expires_at, active, created_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsByVendorSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE vendor_id = $1 ORDER BY created_at DESC, code`

	insertCouponSQL = `INSERT INTO coupons (id, vendor_id, code, discount_percent, max_uses, used_count, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	setCouponActiveSQL = `UPDATE coupons SET active = $2 WHERE id = $1 RETURNING ` + couponColumns

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND active AND used_count < max_uses AND expires_at > $2`

	upsertCouponSQL = `INSERT INTO coupons (id, vendor_id, code, discount_percent, max_uses, used_count, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent,
			max_uses = GREATEST(EXCLUDED.max_uses, coupons.used_count),
			expires_at = EXCLUDED.expires_at,
			active = EXCLUDED.active`
)

var (
	_ coupon.Repository       = (*CouponRepository)(nil)
	_ coupon.VendorRepository = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.VendorRepository
// backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findCouponByCodeSQL, coupon.Normalize(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage consumes one use if the coupon still qualifies at now.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, incrementCouponUsageSQL, id, now)
	if err != nil {
		return fmt.Errorf("incrementing coupon %q usage: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

// UpsertBatch inserts coupons or refreshes existing codes in one round
// trip. A refresh never lowers max_uses below what was already redeemed.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL,
			c.ID, c.VendorID, coupon.Normalize(c.Code), c.DiscountPercent,
			c.MaxUses, c.UsedCount, c.ExpiresAt, c.Active,
		)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

// ListByVendor returns the vendor's coupons, newest first.
func (r *CouponRepository) ListByVendor(ctx context.Context, vendorID string) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponsByVendorSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing coupons of %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// Create inserts a new coupon. A taken code is reported as
// coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertCouponSQL,
		c.ID, c.VendorID, coupon.Normalize(c.Code), c.DiscountPercent,
		c.MaxUses, c.UsedCount, c.ExpiresAt, c.Active, c.CreatedAt,
	)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

func (r *CouponRepository) SetActive(ctx context.Context, id string, active bool) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, setCouponActiveSQL, id, active)
	if err != nil {
		return nil, fmt.Errorf("updating coupon %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("updating coupon %q: %w", id, err)
	}
	return &c, nil
}

func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.VendorID, &c.Code, &c.DiscountPercent, &c.MaxUses, &c.UsedCount, &c.ExpiresAt, &c.Active, &c.CreatedAt)
	return c, err
}
