package models

import (
	"math"
	"time"
)

// OrderStatus enumerates every state of the order lifecycle.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusAssigned  OrderStatus = "assigned"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// InFlight reports whether the order is in active kitchen or delivery work.
func (s OrderStatus) InFlight() bool {
	switch s {
	case StatusPreparing, StatusReady, StatusAssigned, StatusPickedUp:
		return true
	}
	return false
}

// PaymentStatus enumerates payment states of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Actor identifies who triggered a status transition.
type Actor string

const (
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
	ActorDriver Actor = "driver"
)

// Order represents a delivery order in the system.
type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id"`
	RestaurantID  string        `json:"restaurant_id"`
	DriverID      *string       `json:"driver_id,omitempty"`
	Status        OrderStatus   `json:"status"`
	Subtotal      float64       `json:"subtotal"`
	DeliveryFee   float64       `json:"delivery_fee"`
	Discount      float64       `json:"discount"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    *string       `json:"payment_ref,omitempty"`
	Address       string        `json:"delivery_address"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	// Version is bumped on every write and checked by compare-and-swap
	// updates; a stale version fails with ErrConflict.
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	EstimatedDelivery *time.Time `json:"estimated_delivery_time,omitempty"`
	ActualDelivery    *time.Time `json:"actual_delivery_time,omitempty"`
}

// StatusHistoryEntry is one row of the append-only transition ledger.
// Entries are never mutated or deleted.
type StatusHistoryEntry struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Actor     Actor       `json:"actor"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// CreateOrderRequest seeds a new order into the store. Checkout itself is
// external; this is the surface it (or an admin backfill) calls.
type CreateOrderRequest struct {
	CustomerID   string  `json:"customer_id" validate:"required"`
	RestaurantID string  `json:"restaurant_id" validate:"required"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
	DeliveryFee  float64 `json:"delivery_fee" validate:"gte=0"`
	Discount     float64 `json:"discount" validate:"gte=0"`
	Tax          float64 `json:"tax" validate:"gte=0"`
	Total        float64 `json:"total" validate:"gte=0"`
	// Payment outcome as reported by checkout. Empty defaults to pending.
	PaymentStatus     PaymentStatus `json:"payment_status,omitempty" validate:"omitempty,oneof=pending paid failed"`
	PaymentRef        *string       `json:"payment_ref,omitempty"`
	Address           string        `json:"delivery_address" validate:"required"`
	Latitude          float64       `json:"latitude"`
	Longitude         float64       `json:"longitude"`
	EstimatedDelivery *time.Time    `json:"estimated_delivery_time,omitempty"`
}

// CheckTotals verifies total = subtotal + delivery fee + tax - discount.
// Float addition error up to 1e-6 is tolerated.
func (r CreateOrderRequest) CheckTotals() bool {
	return math.Abs(r.Subtotal+r.DeliveryFee+r.Tax-r.Discount-r.Total) < 1e-6
}

// TransitionRequest asks to move an order to a new status.
type TransitionRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending confirmed preparing ready assigned picked_up delivered cancelled"`
	Note   string      `json:"note,omitempty"`
}

// AssignRequest asks to assign a driver to a ready order. A nil DriverID
// lets the dispatcher pick the best available driver.
type AssignRequest struct {
	DriverID *string `json:"driver_id,omitempty"`
}

// ErrorResponse is the uniform JSON error body returned by handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
