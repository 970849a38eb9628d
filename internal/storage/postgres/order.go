package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, customer_id, total, discount_amount, shipping_address, payment_method, coupon_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, vendor_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id, customer_id, total, discount_amount, shipping_address, payment_method, coupon_code, status, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT id, order_id, product_id, vendor_id, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	listVendorLinesSQL = `SELECT i.id, i.order_id, i.product_id, i.vendor_id, i.quantity, i.price,
			o.customer_id, o.status, o.shipping_address, o.created_at
		FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE i.vendor_id = $1
		ORDER BY o.created_at DESC, i.id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order row and its items in one batch. Callers wrap it
// in a transaction to make the batch atomic.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(insertOrderSQL,
		o.ID, o.CustomerID, o.Total, o.DiscountAmount, o.ShippingAddress,
		o.PaymentMethod, o.CouponCode, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	for _, it := range o.Items {
		batch.Queue(insertOrderItemSQL, it.ID, o.ID, it.ProductID, it.VendorID, it.Quantity, it.Price)
	}
	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListLinesByVendor returns the vendor's order items joined with their
// order header.
func (r *OrderRepository) ListLinesByVendor(ctx context.Context, vendorID string) ([]order.VendorLine, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listVendorLinesSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.VendorLine, error) {
		var (
			l      order.VendorLine
			status string
		)
		err := row.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.VendorID, &l.Quantity, &l.Price,
			&l.CustomerID, &status, &l.ShippingAddress, &l.OrderCreatedAt,
		)
		l.OrderStatus = order.Status(status)
		return l, err
	})
}

// UpdateStatus is a compare-and-set on the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

func (r *OrderRepository) attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[order.Item])
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Total, &o.DiscountAmount, &o.ShippingAddress,
		&o.PaymentMethod, &o.CouponCode, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
