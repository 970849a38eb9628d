// Package cart holds a customer's pending purchases.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrItemNotFound is returned when a cart item does not exist for the customer.
var ErrItemNotFound = errors.New("cart item not found")

// Item is one (product, quantity) line in a customer's cart.
type Item struct {
	ID         string
	CustomerID string
	ProductID  string
	Quantity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository stores cart items.
type Repository interface {
	// ListItems returns the customer's items, oldest first.
	ListItems(ctx context.Context, customerID string) ([]Item, error)
	// Add inserts a line or, when the customer already has one for the
	// product, increments its quantity in place.
	Add(ctx context.Context, customerID, productID string, quantity int) (*Item, error)
	// SetQuantity replaces the quantity of an item owned by the customer
	// or returns ErrItemNotFound.
	SetQuantity(ctx context.Context, customerID, itemID string, quantity int) (*Item, error)
	// Remove deletes a single item owned by the customer.
	Remove(ctx context.Context, customerID, itemID string) error
	// Clear deletes every item owned by the customer.
	Clear(ctx context.Context, customerID string) error
}
