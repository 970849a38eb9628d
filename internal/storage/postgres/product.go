package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/product"
)

const (
	productColumns = `id, vendor_id, name, price, stock, active`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	// The predicate makes the decrement atomic: concurrent orders for the
	// last units cannot both match.
	adjustStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1 AND stock + $2 >= 0`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (id, vendor_id, name, price, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id, name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, active = EXCLUDED.active`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// AdjustStock adds delta to the product's stock with a single conditional
// update.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, adjustStockSQL, id, delta)
	if err != nil {
		if hasCode(err, codeNumericOutOfRange) {
			return product.ErrStockOverflow
		}
		return fmt.Errorf("adjusting stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// Upsert inserts or replaces a product. Used by seeding.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL, p.ID, p.VendorID, p.Name, p.Price, p.Stock, p.Active)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock, &p.Active)
	return p, err
}
