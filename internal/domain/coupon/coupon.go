package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reasons a coupon does not qualify. They are wrapped in *InvalidError.
var (
	ErrNotFound          = errors.New("coupon not found")
	ErrInactive          = errors.New("coupon inactive")
	ErrExpired           = errors.New("coupon expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// InvalidError reports that a supplied coupon code cannot be redeemed.
type InvalidError struct {
	Code   string
	Reason error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid coupon %q: %v", e.Code, e.Reason)
}

func (e *InvalidError) Unwrap() error {
	return e.Reason
}

// Invalid wraps reason as an *InvalidError for code.
func Invalid(code string, reason error) error {
	return &InvalidError{Code: code, Reason: reason}
}

var hundred = decimal.NewFromInt(100)

// Coupon is a vendor-issued percentage discount code.
type Coupon struct {
	ID              string
	VendorID        string
	Code            string
	DiscountPercent int
	MaxUses         int
	UsedCount       int
	ExpiresAt       time.Time
	Active          bool
	CreatedAt       time.Time
}

// Normalize returns the canonical (upper-case, trimmed) form of a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check returns nil when the coupon may be redeemed at now, or the reason
// sentinel otherwise.
func (c *Coupon) Check(now time.Time) error {
	switch {
	case !c.Active:
		return ErrInactive
	case !now.Before(c.ExpiresAt):
		return ErrExpired
	case c.UsedCount >= c.MaxUses:
		return ErrUsageLimitReached
	}
	return nil
}

// Discount returns subtotal * percent / 100 rounded to cents, never more
// than subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	amount := subtotal.Mul(decimal.NewFromInt(int64(c.DiscountPercent))).Div(hundred).Round(2)
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Repository provides lookup and usage bookkeeping for coupons.
type Repository interface {
	// FindByCode returns the coupon with the given normalized code or
	// ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUsage atomically increments used_count iff the coupon is still
	// active, unexpired at now and under its cap. It returns
	// ErrUsageLimitReached when the conditional update matched nothing.
	IncrementUsage(ctx context.Context, id string, now time.Time) error
}
