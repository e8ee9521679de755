package orders

import (
	"errors"
	"net/http"
	"strconv"

	"delivery-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new order handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req models.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTotals) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Monetary breakdown does not sum to total"})
		}
		c.Logger().Error("Handler.CreateOrder: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to create order"})
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c echo.Context) error {
	orderID := c.Param("orderId")

	order, err := h.svc.Get(c.Request().Context(), orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		c.Logger().Error("Handler.GetOrder: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve order"})
	}

	return c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrderHistory(c echo.Context) error {
	orderID := c.Param("orderId")

	entries, err := h.svc.History(c.Request().Context(), orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		}
		c.Logger().Error("Handler.GetOrderHistory: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve order history"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"order_id": orderID, "history": entries})
}

func (h *Handler) ListOrders(c echo.Context) error {
	page := 1
	limit := 20
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	status := models.OrderStatus(c.QueryParam("status"))

	orders, total, err := h.svc.List(c.Request().Context(), status, page, limit)
	if err != nil {
		c.Logger().Error("Handler.ListOrders: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list orders"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total": total})
}

// TransitionOrder moves an order through the status state machine. Illegal or
// stale transitions come back as 409 so the dashboard can re-fetch and retry.
func (h *Handler) TransitionOrder(c echo.Context) error {
	orderID := c.Param("orderId")

	var req models.TransitionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	order, err := h.svc.Transition(c.Request().Context(), orderID, req.Status, models.ActorAdmin, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
		case errors.Is(err, models.ErrInvalidState):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order is already in a terminal state"})
		case errors.Is(err, models.ErrIllegalTransition):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Status not reachable from current status"})
		case errors.Is(err, models.ErrConflict):
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Order was modified concurrently, re-fetch and retry"})
		}
		c.Logger().Error("Handler.TransitionOrder: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to transition order"})
	}

	return c.JSON(http.StatusOK, order)
}
