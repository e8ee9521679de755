package models

import "time"

// Driver represents a delivery driver in the registry. The row carries the
// latest known position; historical samples live in position_samples.
type Driver struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	IsVerified      bool       `json:"is_verified"`
	IsOnline        bool       `json:"is_online"`
	OnHold          bool       `json:"on_hold"`
	HoldReason      *string    `json:"hold_reason,omitempty"`
	HoldStart       *time.Time `json:"hold_start,omitempty"`
	HoldEnd         *time.Time `json:"hold_end,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	CurrentOrderID  *string    `json:"current_order_id,omitempty"`
	Rating          float64    `json:"rating"`
	TotalDeliveries int        `json:"total_deliveries"`
	LastLocationAt  *time.Time `json:"last_location_update,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Assignable reports whether the driver may be offered a new order.
func (d *Driver) Assignable() bool {
	return d.IsVerified && d.IsOnline && !d.OnHold && d.CurrentOrderID == nil
}

// PositionSample is one row of the append-only driver position time series,
// kept for route reconstruction. The Driver row holds the latest position.
type PositionSample struct {
	ID         string    `json:"id"`
	DriverID   string    `json:"driver_id"`
	OrderID    *string   `json:"order_id,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RegisterDriverRequest enrolls a new driver.
type RegisterDriverRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

// ReportPositionRequest carries one position update from a driver device.
// RecordedAt is optional; the server clock is used when absent.
type ReportPositionRequest struct {
	Latitude   float64    `json:"lat" validate:"required,gte=-90,lte=90"`
	Longitude  float64    `json:"lng" validate:"required,gte=-180,lte=180"`
	OrderID    *string    `json:"order_id,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// AvailabilityRequest flips a driver's online flag.
type AvailabilityRequest struct {
	IsOnline *bool `json:"is_online" validate:"required"`
}

// VerificationRequest flips a driver's verification flag.
type VerificationRequest struct {
	IsVerified *bool `json:"is_verified" validate:"required"`
}

// HoldRequest places a temporary suspension on a driver.
type HoldRequest struct {
	Reason string     `json:"reason" validate:"required"`
	Until  *time.Time `json:"until,omitempty"`
}
