package models

import "time"

// FeedEventType enumerates events on the live delivery feed.
type FeedEventType string

const (
	// FeedSnapshot carries the initial state of one in-flight delivery.
	FeedSnapshot FeedEventType = "snapshot"
	// FeedPosition carries a driver position update.
	FeedPosition FeedEventType = "position"
	// FeedStatus carries a status change of an in-flight order.
	FeedStatus FeedEventType = "status"
	// FeedEntered marks an order entering the in-flight set.
	FeedEntered FeedEventType = "entered"
	// FeedLeft marks an order leaving the in-flight set.
	FeedLeft FeedEventType = "left"
)

// FeedEvent is one message on the live delivery feed stream.
type FeedEvent struct {
	Type       FeedEventType `json:"type"`
	OrderID    string        `json:"order_id,omitempty"`
	DriverID   string        `json:"driver_id,omitempty"`
	Status     OrderStatus   `json:"status,omitempty"`
	Latitude   float64       `json:"lat,omitempty"`
	Longitude  float64       `json:"lng,omitempty"`
	RecordedAt time.Time     `json:"recorded_at,omitempty"`
}

// NotificationEvent describes a status change or assignment that interested
// parties should hear about.
type NotificationEvent struct {
	OrderID      string      `json:"order_id"`
	CustomerID   string      `json:"customer_id"`
	RestaurantID string      `json:"restaurant_id"`
	DriverID     *string     `json:"driver_id,omitempty"`
	Status       OrderStatus `json:"status"`
	Actor        Actor       `json:"actor"`
	Note         string      `json:"note,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// Audience identifies a notification recipient class.
type Audience string

const (
	AudienceCustomer   Audience = "customer"
	AudienceRestaurant Audience = "restaurant"
	AudienceDriver     Audience = "driver"
)
