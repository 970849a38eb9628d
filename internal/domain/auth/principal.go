// Package auth defines the authenticated principal and the single
// authorization decision consulted by every order, cart, status and coupon
// operation.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Role is the marketplace role carried by a principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Principal is the identity supplied by the authentication layer. It is
// trusted as-is and never re-verified by the domain.
type Principal struct {
	ID   string
	Role Role
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ErrForbidden is returned when a principal may not perform an action.
var ErrForbidden = errors.New("forbidden")

// Action names a capability checked by Authorize.
type Action string

const (
	ActionManageCart         Action = "manage_cart"
	ActionPlaceOrder         Action = "place_order"
	ActionReadOrder          Action = "read_order"
	ActionListCustomerOrders Action = "list_customer_orders"
	ActionListVendorLines    Action = "list_vendor_lines"
	ActionAdvanceOrder       Action = "advance_order"
	ActionCancelOrder        Action = "cancel_order"
	ActionManageCoupons      Action = "manage_coupons"
	ActionEditCoupon         Action = "edit_coupon"
)

// Resource describes who owns the object an action targets. Zero value is
// used for collection-level actions.
type Resource struct {
	OwnerID   string
	VendorIDs []string
}

func (r Resource) fulfilledBy(vendorID string) bool {
	return slices.Contains(r.VendorIDs, vendorID)
}

// Authorize returns nil when p may perform a on r, ErrForbidden otherwise.
// Admin capabilities live behind separate endpoints and are not granted here.
func Authorize(p Principal, a Action, r Resource) error {
	if p.ID == "" {
		return ErrForbidden
	}

	var ok bool
	switch a {
	case ActionManageCart, ActionPlaceOrder, ActionListCustomerOrders:
		ok = p.Role == RoleCustomer
	case ActionListVendorLines, ActionManageCoupons:
		ok = p.Role == RoleVendor
	case ActionEditCoupon:
		ok = p.Role == RoleVendor && r.OwnerID == p.ID
	case ActionReadOrder:
		ok = r.OwnerID == p.ID || (p.Role == RoleVendor && r.fulfilledBy(p.ID))
	case ActionAdvanceOrder:
		ok = p.Role == RoleVendor && r.fulfilledBy(p.ID)
	case ActionCancelOrder:
		ok = p.Role == RoleCustomer && r.OwnerID == p.ID
	}

	if !ok {
		return ErrForbidden
	}
	return nil
}
