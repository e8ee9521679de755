package dispatch

import (
	"errors"
	"net/http"

	"delivery-dispatch/internal/models"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for driver assignment.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new dispatch handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// AssignDriver assigns a driver to an order. Body may carry a driver_id for a
// manual override; without one the dispatcher picks the best available driver.
func (h *Handler) AssignDriver(c echo.Context) error {
	orderID := c.Param("orderId")

	var req models.AssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}

	order, err := h.svc.Assign(c.Request().Context(), orderID, req.DriverID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order or driver not found"})
		case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrIllegalTransition):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is not ready for assignment"})
		case errors.Is(err, models.ErrDriverUnavailable):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Driver no longer available, pick another"})
		case errors.Is(err, models.ErrNoDriverAvailable):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "No eligible driver available"})
		case errors.Is(err, models.ErrConflict):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order was modified concurrently, re-fetch and retry"})
		}
		c.Logger().Error("Handler.AssignDriver: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to assign driver"})
	}

	return c.JSON(http.StatusOK, order)
}
