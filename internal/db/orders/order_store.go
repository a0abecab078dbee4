package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"shopgate/internal/checkout"
)

// OrderStore persists durable orders and their line items in Postgres.
type OrderStore struct {
	db    *sql.DB
	newID func() string
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db, newID: uuid.NewString}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the order tables if they do not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			correlation_id TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL,
			shipping_address TEXT NOT NULL,
			city TEXT NOT NULL,
			zip TEXT NOT NULL,
			country TEXT NOT NULL,
			phone TEXT NOT NULL,
			total_before_discount DOUBLE PRECISION NOT NULL,
			total_after_discount DOUBLE PRECISION NOT NULL,
			payment_status TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			discount_percent DOUBLE PRECISION NOT NULL,
			line_subtotal DOUBLE PRECISION NOT NULL,
			line_subtotal_after_discount DOUBLE PRECISION NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// CreateOrderWithItems promotes a pending order in one transaction: the order
// row first, then its items, so a failure anywhere rolls back both. The
// unique constraint on correlation_id makes promotion exactly-once even if
// two callers race; the loser returns the existing order.
func (s *OrderStore) CreateOrderWithItems(ctx context.Context, pending checkout.PendingOrder) (checkout.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return checkout.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	orderID := s.newID()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (correlation_id) DO NOTHING`,
		orderID, pending.CorrelationID, pending.CustomerID,
		pending.Shipping.Address, pending.Shipping.City, pending.Shipping.Zip,
		pending.Shipping.Country, pending.Shipping.Phone,
		pending.TotalBeforeDiscount, pending.TotalAfterDiscount,
		string(checkout.PaymentStatusPaid), string(checkout.OrderStatusPending),
	)
	if err != nil {
		return checkout.Order{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return checkout.Order{}, err
	}
	if affected == 0 {
		// Lost the race to a concurrent settlement for the same correlation.
		// Return the winner's order, items included, so both callers see the
		// same settlement result.
		_ = tx.Rollback()
		existing, err := s.FindOrderByCorrelation(ctx, pending.CorrelationID)
		if err != nil {
			return checkout.Order{}, err
		}
		if existing.Lines, err = s.loadItems(ctx, existing.ID); err != nil {
			return checkout.Order{}, err
		}
		return existing, nil
	}

	for _, line := range pending.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, discount_percent,
				line_subtotal, line_subtotal_after_discount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, line.ProductID, line.Quantity, line.UnitPrice, line.DiscountPercent,
			line.LineSubtotal, line.LineSubtotalAfterDiscount,
		); err != nil {
			return checkout.Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return checkout.Order{}, err
	}

	return s.FindOrder(ctx, orderID)
}

// DeleteOrder removes an order; its items go with it via the FK cascade.
func (s *OrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", checkout.ErrOrderNotFound, orderID)
	}
	return nil
}

// ListOrders returns a page of orders, newest first, plus the total count.
// Line items are not loaded for listings.
func (s *OrderStore) ListOrders(ctx context.Context, page, limit int) ([]checkout.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = total
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListOrdersForUser returns all orders for a customer, newest first.
func (s *OrderStore) ListOrdersForUser(ctx context.Context, userID string) ([]checkout.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status, created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// FindOrder returns an order with its line items.
func (s *OrderStore) FindOrder(ctx context.Context, orderID string) (checkout.Order, error) {
	order, err := s.scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status, created_at
		FROM orders
		WHERE id = $1`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkout.Order{}, fmt.Errorf("%w: %s", checkout.ErrOrderNotFound, orderID)
		}
		return checkout.Order{}, err
	}

	if order.Lines, err = s.loadItems(ctx, order.ID); err != nil {
		return checkout.Order{}, err
	}
	return order, nil
}

// FindOrderForUser returns an order only when it belongs to the user.
func (s *OrderStore) FindOrderForUser(ctx context.Context, userID, orderID string) (checkout.Order, error) {
	order, err := s.scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status, created_at
		FROM orders
		WHERE id = $1 AND customer_id = $2`,
		orderID, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkout.Order{}, fmt.Errorf("%w: %s", checkout.ErrOrderNotFound, orderID)
		}
		return checkout.Order{}, err
	}

	if order.Lines, err = s.loadItems(ctx, order.ID); err != nil {
		return checkout.Order{}, err
	}
	return order, nil
}

// FindOrderByCorrelation looks an order up by its gateway correlation id.
func (s *OrderStore) FindOrderByCorrelation(ctx context.Context, correlationID string) (checkout.Order, error) {
	order, err := s.scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, customer_id, shipping_address, city, zip, country, phone,
			total_before_discount, total_after_discount, payment_status, status, created_at
		FROM orders
		WHERE correlation_id = $1`,
		correlationID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkout.Order{}, fmt.Errorf("%w: correlation %s", checkout.ErrOrderNotFound, correlationID)
		}
		return checkout.Order{}, err
	}
	return order, nil
}

// UpdateOrderStatus sets the fulfilment status and returns the updated order.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, orderID string, status checkout.OrderStatus) (checkout.Order, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return checkout.Order{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return checkout.Order{}, err
	}
	if affected == 0 {
		return checkout.Order{}, fmt.Errorf("%w: %s", checkout.ErrOrderNotFound, orderID)
	}
	return s.FindOrder(ctx, orderID)
}

func (s *OrderStore) loadItems(ctx context.Context, orderID string) ([]checkout.PricedLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, discount_percent, line_subtotal, line_subtotal_after_discount
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []checkout.PricedLine
	for rows.Next() {
		var line checkout.PricedLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.DiscountPercent,
			&line.LineSubtotal, &line.LineSubtotalAfterDiscount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *OrderStore) scanOrderRow(row rowScanner) (checkout.Order, error) {
	var order checkout.Order
	var paymentStatus, status string
	if err := row.Scan(&order.ID, &order.CorrelationID, &order.CustomerID,
		&order.Shipping.Address, &order.Shipping.City, &order.Shipping.Zip,
		&order.Shipping.Country, &order.Shipping.Phone,
		&order.TotalBeforeDiscount, &order.TotalAfterDiscount,
		&paymentStatus, &status, &order.CreatedAt); err != nil {
		return checkout.Order{}, err
	}
	order.PaymentStatus = checkout.PaymentStatus(paymentStatus)
	order.Status = checkout.OrderStatus(status)
	return order, nil
}

func scanOrders(rows *sql.Rows) ([]checkout.Order, error) {
	var orders []checkout.Order
	for rows.Next() {
		var order checkout.Order
		var paymentStatus, status string
		if err := rows.Scan(&order.ID, &order.CorrelationID, &order.CustomerID,
			&order.Shipping.Address, &order.Shipping.City, &order.Shipping.Zip,
			&order.Shipping.Country, &order.Shipping.Phone,
			&order.TotalBeforeDiscount, &order.TotalAfterDiscount,
			&paymentStatus, &status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.PaymentStatus = checkout.PaymentStatus(paymentStatus)
		order.Status = checkout.OrderStatus(status)
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
