package gateway

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
)

// OrderGateway creates orders from a cart snapshot.
type OrderGateway interface {
	Create(ctx context.Context, userID, addressID int64, items []models.OrderItemData) (*models.Order, error)
}

// PaymentGateway initiates payments and looks up their status by order.
type PaymentGateway interface {
	Initiate(ctx context.Context, orderID int64, method string, amount int64) (*models.Payment, error)
	GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error)
}

// OrderCreationError means the order could not be created.
type OrderCreationError struct {
	Err error
}

func (e *OrderCreationError) Error() string {
	return fmt.Sprintf("order creation failed: %v", e.Err)
}

func (e *OrderCreationError) Unwrap() error { return e.Err }

// PaymentInitiationError means the payment could not be initiated.
type PaymentInitiationError struct {
	OrderID int64
	Err     error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed for order %d: %v", e.OrderID, e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }

// TransportError is a retryable failure reaching the payment provider. The
// polling engine retries these up to its per-tick budget.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError means the provider has no payment for the order. Not
// retryable.
type NotFoundError struct {
	OrderID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payment not found for order %d", e.OrderID)
}
