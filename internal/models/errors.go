package models

import "errors"

var ErrNotFound = errors.New("requested resource not found")
var ErrForbidden = errors.New("user does not have permission to access this resource")
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidState indicates the order is already in a terminal state and
// accepts no further transitions.
var ErrInvalidState = errors.New("order is in a terminal state")

// ErrIllegalTransition indicates the requested status is not reachable from
// the order's current status.
var ErrIllegalTransition = errors.New("status transition not allowed from current status")

// ErrDriverUnavailable indicates the driver is offline, unverified, on hold,
// or already carrying an order.
var ErrDriverUnavailable = errors.New("driver is not available for assignment")

// ErrNoDriverAvailable indicates auto-assignment found no eligible driver.
var ErrNoDriverAvailable = errors.New("no eligible driver available")

// ErrOutOfBounds indicates a reported position falls outside the operational region.
var ErrOutOfBounds = errors.New("position outside operational region")

// ErrInvalidTotals indicates a monetary breakdown that does not sum to its total.
var ErrInvalidTotals = errors.New("total does not match subtotal + delivery fee + tax - discount")

// ErrConflict indicates an optimistic concurrency check failed; the caller
// must re-read the entity and retry.
var ErrConflict = errors.New("concurrent modification detected")
