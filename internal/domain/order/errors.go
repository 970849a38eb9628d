package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when an order is placed with nothing in the cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyCancelled is returned when cancelling a cancelled order.
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	// ErrStatusConflict is returned by Repository.UpdateStatus when the
	// order's status changed underneath the caller.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrDuplicateRequest is returned while another request with the same
	// idempotency key is in flight.
	ErrDuplicateRequest = errors.New("duplicate request in progress")
)

// ValidationError reports malformed order input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Shortage is one cart line that cannot be covered by current stock.
type Shortage struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError lists every line whose quantity exceeds stock.
type InsufficientStockError struct {
	Lines []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("product %s: requested %d, available %d", l.ProductID, l.Requested, l.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// ProductUnavailableError indicates a cart line references a product that
// was deleted or deactivated after it was added.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// InvalidTransitionError reports an illegal status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
