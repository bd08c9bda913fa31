package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CreateOrderWithItems creates an order and its items in one transaction.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItemData) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, address_id, total_amount, status, payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.UserID, order.AddressID, order.TotalAmount,
		order.Status, order.PaymentStatus); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)`,
			order.ID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateOrderPaymentStatus updates the payment status observed on an order
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	return err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, method, status, amount, reference, qr_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Method, payment.Status,
		payment.Amount, payment.Reference, payment.QRPayload)
}

// GetPaymentByOrderID retrieves the payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for order %d: %w", orderID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaymentPaid flips a payment to PAID by its transfer reference and
// mirrors the status onto the order. Returns the order ID affected.
func (s *Store) MarkPaymentPaid(ctx context.Context, reference string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID,
		`UPDATE payments SET status = $1, updated_at = NOW()
		 WHERE reference = $2 AND status = $3
		 RETURNING order_id`,
		models.PaymentStatusPaid, reference, models.PaymentStatusUnpaid)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no unpaid payment with reference %s", reference)
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		models.PaymentStatusPaid, orderID)
	if err != nil {
		return 0, err
	}

	return orderID, tx.Commit()
}
