package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bazaar/internal/domain/auth"
)

// Code length bounds for vendor-issued coupons.
const (
	MinCodeLen = 3
	MaxCodeLen = 32
)

// DefaultMaxUses applies when a new coupon does not set a cap.
const DefaultMaxUses = 100

// ErrDuplicateCode is returned when a coupon code is already taken.
var ErrDuplicateCode = errors.New("coupon code already exists")

// ValidationError reports malformed coupon input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// VendorRepository stores coupons on behalf of the vendors that own them.
type VendorRepository interface {
	// ListByVendor returns the vendor's coupons, newest first.
	ListByVendor(ctx context.Context, vendorID string) ([]Coupon, error)
	// GetByID returns the coupon or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// Create inserts c or returns ErrDuplicateCode.
	Create(ctx context.Context, c *Coupon) error
	// SetActive flips the active flag and returns the updated coupon.
	SetActive(ctx context.Context, id string, active bool) (*Coupon, error)
	// Delete removes the coupon or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// CreateRequest is the input for issuing a new coupon.
type CreateRequest struct {
	Code            string
	DiscountPercent int
	// MaxUses is DefaultMaxUses when zero.
	MaxUses   int
	ExpiresAt time.Time
}

// Validate checks the request and returns it with the code normalized and
// defaults applied.
func (r CreateRequest) Validate() (CreateRequest, error) {
	r.Code = Normalize(r.Code)
	if r.MaxUses == 0 {
		r.MaxUses = DefaultMaxUses
	}
	switch {
	case len(r.Code) < MinCodeLen || len(r.Code) > MaxCodeLen:
		return r, &ValidationError{Field: "code", Reason: fmt.Sprintf("must be %d to %d characters", MinCodeLen, MaxCodeLen)}
	case r.DiscountPercent < 1 || r.DiscountPercent > 100:
		return r, &ValidationError{Field: "discount_percent", Reason: "must be between 1 and 100"}
	case r.MaxUses < 1:
		return r, &ValidationError{Field: "max_uses", Reason: "must be positive"}
	case r.ExpiresAt.IsZero():
		return r, &ValidationError{Field: "expires_at", Reason: "is required"}
	}
	return r, nil
}

// Service lets vendors manage their own coupons.
type Service struct {
	repo  VendorRepository
	now   func() time.Time
	newID func() string
}

// NewService creates a coupon management Service.
func NewService(repo VendorRepository) *Service {
	return &Service{repo: repo, now: time.Now, newID: uuid.NewString}
}

// List returns the principal's coupons.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons, auth.Resource{}); err != nil {
		return nil, err
	}
	coupons, err := s.repo.ListByVendor(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Create issues a new active coupon owned by the principal.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons, auth.Resource{}); err != nil {
		return nil, err
	}
	req, err := req.Validate()
	if err != nil {
		return nil, err
	}

	c := &Coupon{
		ID:              s.newID(),
		VendorID:        p.ID,
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		MaxUses:         req.MaxUses,
		ExpiresAt:       req.ExpiresAt.UTC(),
		Active:          true,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Toggle flips the active flag of one of the principal's coupons.
func (s *Service) Toggle(ctx context.Context, p auth.Principal, id string) (*Coupon, error) {
	c, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetActive(ctx, c.ID, !c.Active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "toggle coupon")
	}
	return updated, nil
}

// Delete removes one of the principal's coupons. Orders that already used
// it keep their recorded code.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	c, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

func (s *Service) owned(ctx context.Context, p auth.Principal, id string) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons, auth.Resource{}); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "get coupon %s", id)
	}
	if err := auth.Authorize(p, auth.ActionEditCoupon, auth.Resource{OwnerID: c.VendorID}); err != nil {
		return nil, err
	}
	return c, nil
}
