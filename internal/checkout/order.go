package checkout

import (
	"context"
	"time"
)

// PaymentStatus records the settlement outcome on a durable order.
type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "Paid"
)

// OrderStatus is the fulfilment status of a durable order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// ShippingDetails are the delivery fields collected at checkout.
type ShippingDetails struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

// PendingOrder is a priced, not-yet-durable order awaiting payment
// confirmation. It is created after a payment credential is issued, keyed by
// the gateway transaction id, and consumed exactly once by settlement.
type PendingOrder struct {
	CorrelationID       string          `json:"correlation_id"`
	CustomerID          string          `json:"customer_id"`
	Shipping            ShippingDetails `json:"shipping"`
	Lines               []PricedLine    `json:"lines"`
	TotalBeforeDiscount float64         `json:"total_before_discount"`
	TotalAfterDiscount  float64         `json:"total_after_discount"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Order is the durable record created when settlement confirms payment.
type Order struct {
	ID                  string          `json:"id"`
	CorrelationID       string          `json:"correlation_id"`
	CustomerID          string          `json:"customer_id"`
	Shipping            ShippingDetails `json:"shipping"`
	Lines               []PricedLine    `json:"lines,omitempty"`
	TotalBeforeDiscount float64         `json:"total_before_discount"`
	TotalAfterDiscount  float64         `json:"total_after_discount"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	Status              OrderStatus     `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ProductCatalog supplies authoritative pricing for products.
type ProductCatalog interface {
	FindProduct(ctx context.Context, productID string) (ProductQuote, error)
}

// UserDirectory supplies billing identity fields for customers.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (UserProfile, error)
}

// UserProfile holds the identity fields the gateway's billing data needs.
type UserProfile struct {
	FirstName string
	LastName  string
	Email     string
}

// OrderStore persists durable orders and their line items.
type OrderStore interface {
	// CreateOrderWithItems promotes a pending order to a durable order.
	// Items and order are written atomically; at most one order is ever
	// created per correlation id.
	CreateOrderWithItems(ctx context.Context, pending PendingOrder) (Order, error)
	// DeleteOrder removes an order and cascade-deletes its line items.
	DeleteOrder(ctx context.Context, orderID string) error
	// ListOrders returns a page of orders, newest first, and the total count.
	ListOrders(ctx context.Context, page, limit int) ([]Order, int, error)
	// ListOrdersForUser returns all orders for a customer, newest first.
	ListOrdersForUser(ctx context.Context, userID string) ([]Order, error)
	// FindOrder returns an order with its line items.
	FindOrder(ctx context.Context, orderID string) (Order, error)
	// FindOrderForUser returns an order only when it belongs to the user.
	FindOrderForUser(ctx context.Context, userID, orderID string) (Order, error)
	// FindOrderByCorrelation looks an order up by its gateway correlation id.
	FindOrderByCorrelation(ctx context.Context, correlationID string) (Order, error)
	// UpdateOrderStatus sets the fulfilment status of an order.
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error)
}

// PendingStore stages pending orders between credential issuance and
// settlement, keyed by correlation id. Implementations must isolate entries
// per key and make Take an atomic read-and-remove.
type PendingStore interface {
	Put(ctx context.Context, order PendingOrder) error
	Take(ctx context.Context, correlationID string) (PendingOrder, bool, error)
	Peek(ctx context.Context, correlationID string) (PendingOrder, bool, error)
}
