package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPaymentMethod is recorded when the customer does not choose one.
const DefaultPaymentMethod = "cod"

// Address is the shipping destination of an order.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Validate requires every field to be non-blank.
func (a *Address) Validate() error {
	if a == nil {
		return &ValidationError{Field: "shipping_address", Reason: "is required"}
	}
	for _, f := range []struct{ name, value string }{
		{"shipping_address.street", a.Street},
		{"shipping_address.city", a.City},
		{"shipping_address.state", a.State},
		{"shipping_address.zip", a.Zip},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "must not be empty"}
		}
	}
	return nil
}

// Order is a placed purchase. Orders are never deleted; cancellation is a
// status transition.
type Order struct {
	ID              string
	CustomerID      string
	Items           []Item
	Total           decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingAddress Address
	PaymentMethod   string
	// CouponCode is empty when no coupon was applied.
	CouponCode string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VendorIDs returns the distinct vendors fulfilling the order.
func (o *Order) VendorIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.VendorID]; ok {
			continue
		}
		seen[it.VendorID] = struct{}{}
		ids = append(ids, it.VendorID)
	}
	return ids
}

// Item is one product line of an order with vendor and unit price captured
// at purchase time. Immutable after creation.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	VendorID  string
	Quantity  int
	Price     decimal.Decimal
}

// VendorLine is an order item as seen by the vendor fulfilling it.
type VendorLine struct {
	Item
	CustomerID      string
	OrderStatus     Status
	ShippingAddress Address
	OrderCreatedAt  time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order row and all of its items.
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with items or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByCustomer returns the customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// ListLinesByVendor returns items assigned to the vendor, newest first.
	ListLinesByVendor(ctx context.Context, vendorID string) ([]VendorLine, error)
	// UpdateStatus sets the status to `to` only if it is still `from`.
	// It returns ErrStatusConflict when the order is no longer in `from`.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}

// Transactor runs fn atomically: either every store write made through ctx
// inside fn commits, or none does.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdempotencyStore remembers which order a client request key produced.
type IdempotencyStore interface {
	// TryLock claims key for scope. It returns false when already claimed.
	TryLock(ctx context.Context, scope, key string) (bool, error)
	// Release drops a claim so the request can be retried.
	Release(ctx context.Context, scope, key string) error
	// Remember stores the produced order id for the key.
	Remember(ctx context.Context, scope, key, orderID string) error
	// Recall returns the order id remembered for the key.
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}
