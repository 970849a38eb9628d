package product

import (
	"context"
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by AdjustStock when a decrement would
	// take stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockOverflow is returned by AdjustStock when an increment would
	// take stock above MaxStock.
	ErrStockOverflow = errors.New("stock overflow")
)

// MaxStock is the largest stock level a product can hold. It matches the
// range of the stock column.
const MaxStock = math.MaxInt32

// Product is a vendor listing in the catalog.
type Product struct {
	ID       string
	VendorID string
	Name     string
	Price    decimal.Decimal
	Stock    int
	Active   bool
}

// Available reports whether the product can currently be purchased.
func (p Product) Available() bool {
	return p.Active
}

// Repository defines the catalog operations the order flow consumes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock atomically adds delta to the product's stock. A negative
	// delta is applied only if the current stock covers it; otherwise
	// ErrInsufficientStock is returned and nothing changes. An increment
	// past MaxStock returns ErrStockOverflow.
	AdjustStock(ctx context.Context, id string, delta int) error
}
