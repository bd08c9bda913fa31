package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeCheckoutCompleted = "CHECKOUT_COMPLETED"
	EventTypePaymentConfirmed  = "PAYMENT_CONFIRMED"
	EventTypePaymentTimedOut   = "PAYMENT_TIMED_OUT"
	EventTypePaymentFailed     = "PAYMENT_FAILED"
	EventTypePaymentNotified   = "PAYMENT_NOTIFIED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created at checkout
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	AddressID   int64           `json:"address_id"`
	Method      string          `json:"method"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// CheckoutCompletedEvent published when a checkout reaches its terminal
// success: immediately for COD, after payment confirmation for bank transfer.
type CheckoutCompletedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Method  string `json:"method"`
}

// PaymentConfirmedEvent published when polling observes a PAID payment
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// PaymentTimedOutEvent published when the polling budget is exhausted
type PaymentTimedOutEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	Attempts int   `json:"attempts"`
}

// PaymentFailedEvent published when polling gives up on repeated errors
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentNotifiedEvent is what the payment provider pushes when it settles a
// transfer. Consumed by the notification worker, which marks the payment PAID.
type PaymentNotifiedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
