package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"
)

// Validator looks up coupons and decides whether they qualify. Concurrent
// lookups of the same code share one store read.
type Validator struct {
	repo  Repository
	now   func() time.Time
	group singleflight.Group
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate returns the coupon for code when it is currently redeemable. It
// does not consume a use.
func (v *Validator) Validate(ctx context.Context, code string) (*Coupon, error) {
	// The shared lookup must not fail for every caller when the first one
	// goes away.
	shared := context.WithoutCancel(ctx)
	res, err, _ := v.group.Do(Normalize(code), func() (any, error) {
		return Lookup(shared, v.repo, code, v.now())
	})
	if err != nil {
		return nil, err
	}
	c := *res.(*Coupon)
	return &c, nil
}

// Lookup finds the coupon for code and checks it against now. Errors caused
// by the coupon itself are returned as *InvalidError.
func Lookup(ctx context.Context, repo Repository, code string, now time.Time) (*Coupon, error) {
	code = Normalize(code)
	if code == "" {
		return nil, Invalid(code, ErrNotFound)
	}

	c, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Invalid(code, ErrNotFound)
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := c.Check(now); err != nil {
		return nil, Invalid(code, err)
	}
	return c, nil
}

// Redeem consumes one use of c. A lost race against the usage cap surfaces
// as *InvalidError.
func Redeem(ctx context.Context, repo Repository, c *Coupon, now time.Time) error {
	if err := repo.IncrementUsage(ctx, c.ID, now); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return Invalid(c.Code, ErrUsageLimitReached)
		}
		return errors.Wrap(err, "increment coupon usage")
	}
	return nil
}
