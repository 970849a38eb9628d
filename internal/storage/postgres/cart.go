package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/cart"
)

const (
	cartColumns = `id, customer_id, product_id, quantity, created_at, updated_at`

	listCartItemsSQL = `SELECT ` + cartColumns + ` FROM cart_items
		WHERE customer_id = $1 ORDER BY created_at, id`

	addCartItemSQL = `INSERT INTO cart_items (id, customer_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING ` + cartColumns

	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE id = $1 AND customer_id = $2
		RETURNING ` + cartColumns

	removeCartItemSQL = `DELETE FROM cart_items WHERE id = $1 AND customer_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE customer_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) ListItems(ctx context.Context, customerID string) ([]cart.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCartItemsSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[cart.Item])
}

func (r *CartRepository) Add(ctx context.Context, customerID, productID string, quantity int) (*cart.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, addCartItemSQL, uuid.NewString(), customerID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("adding %q to cart: %w", productID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[cart.Item])
	if err != nil {
		return nil, fmt.Errorf("adding %q to cart: %w", productID, err)
	}
	return &it, nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, customerID, itemID string, quantity int) (*cart.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, setCartItemQuantitySQL, itemID, customerID, quantity)
	if err != nil {
		return nil, fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[cart.Item])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	return &it, nil
}

func (r *CartRepository) Remove(ctx context.Context, customerID, itemID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, removeCartItemSQL, itemID, customerID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearCartSQL, customerID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", customerID, err)
	}
	return nil
}
