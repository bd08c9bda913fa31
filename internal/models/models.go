package models

import "time"

// Product represents a product in the catalog
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Address represents a shipping address
type Address struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Recipient  string    `db:"recipient" json:"recipient"`
	Line1      string    `db:"line1" json:"line1"`
	City       string    `db:"city" json:"city"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Phone      string    `db:"phone" json:"phone"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CartItem represents one line in a cart
type CartItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Cart represents a user's cart snapshot. Total is in minor currency units
// and must equal the item sum at checkout time.
type Cart struct {
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
	Total  int64      `json:"total"`
}

// ItemSum returns the sum of unit_price * quantity over all items.
func (c *Cart) ItemSum() int64 {
	var sum int64
	for _, item := range c.Items {
		sum += item.UnitPrice * int64(item.Quantity)
	}
	return sum
}

// Order represents a customer order
type Order struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	AddressID     int64     `db:"address_id" json:"address_id"`
	TotalAmount   int64     `db:"total_amount" json:"total_amount"`
	Status        string    `db:"status" json:"status"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Payment represents a payment for an order. Reference and QRPayload are set
// for bank transfers so the buyer can complete the transfer out-of-band.
type Payment struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Method    string    `db:"method" json:"method"`
	Status    string    `db:"status" json:"status"`
	Amount    int64     `db:"amount" json:"amount"`
	Reference string    `db:"reference" json:"reference,omitempty"`
	QRPayload string    `db:"qr_payload" json:"qr_payload,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
)

// Payment methods
const (
	PaymentMethodCOD          = "COD"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
)
