package cart

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/product"
)

// ErrInvalidQuantity is returned when a request asks for fewer than one unit.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// UnavailableError indicates the product cannot be added to a cart.
type UnavailableError struct {
	ProductID string
	// Stock is the available stock when the request exceeded it, -1 when the
	// product is missing or inactive.
	Stock int
}

func (e *UnavailableError) Error() string {
	if e.Stock >= 0 {
		return fmt.Sprintf("product %s has only %d in stock", e.ProductID, e.Stock)
	}
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// Service implements the customer-facing cart operations.
type Service struct {
	items    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(items Repository, products product.Repository) *Service {
	return &Service{items: items, products: products}
}

// List returns the principal's cart.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Item, error) {
	if err := auth.Authorize(p, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	items, err := s.items.ListItems(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	return items, nil
}

// Add puts quantity units of productID into the principal's cart, merging
// with an existing line. A zero quantity means one unit.
func (s *Service) Add(ctx context.Context, p auth.Principal, productID string, quantity int) (*Item, error) {
	if err := auth.Authorize(p, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	prod, err := s.available(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > prod.Stock {
		return nil, &UnavailableError{ProductID: productID, Stock: prod.Stock}
	}

	items, err := s.items.ListItems(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	// quantity <= stock, so the subtraction cannot overflow.
	room := prod.Stock - quantity
	for _, it := range items {
		if it.ProductID == productID && it.Quantity > room {
			return nil, &UnavailableError{ProductID: productID, Stock: prod.Stock}
		}
	}

	item, err := s.items.Add(ctx, p.ID, productID, quantity)
	if err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}
	return item, nil
}

// UpdateQuantity sets the quantity of one item in the principal's cart.
func (s *Service) UpdateQuantity(ctx context.Context, p auth.Principal, itemID string, quantity int) (*Item, error) {
	if err := auth.Authorize(p, auth.ActionManageCart, auth.Resource{}); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	items, err := s.items.ListItems(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == itemID })
	if i < 0 {
		return nil, ErrItemNotFound
	}

	prod, err := s.available(ctx, items[i].ProductID)
	if err != nil {
		return nil, err
	}
	if quantity > prod.Stock {
		return nil, &UnavailableError{ProductID: prod.ID, Stock: prod.Stock}
	}

	item, err := s.items.SetQuantity(ctx, p.ID, itemID, quantity)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update cart item")
	}
	return item, nil
}

// available returns the product when it exists and is active.
func (s *Service) available(ctx context.Context, productID string) (*product.Product, error) {
	prod, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &UnavailableError{ProductID: productID, Stock: -1}
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	if !prod.Available() {
		return nil, &UnavailableError{ProductID: productID, Stock: -1}
	}
	return prod, nil
}

// Remove deletes one item from the principal's cart.
func (s *Service) Remove(ctx context.Context, p auth.Principal, itemID string) error {
	if err := auth.Authorize(p, auth.ActionManageCart, auth.Resource{}); err != nil {
		return err
	}
	if err := s.items.Remove(ctx, p.ID, itemID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return err
		}
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// Clear empties the principal's cart.
func (s *Service) Clear(ctx context.Context, p auth.Principal) error {
	if err := auth.Authorize(p, auth.ActionManageCart, auth.Resource{}); err != nil {
		return err
	}
	if err := s.items.Clear(ctx, p.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
