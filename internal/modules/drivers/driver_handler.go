package drivers

import (
	"errors"
	"net/http"
	"strconv"

	"delivery-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for the driver registry.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new driver handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterDriver(c echo.Context) error {
	var req models.RegisterDriverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	driver, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		c.Logger().Error("Handler.RegisterDriver: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to register driver"})
	}
	return c.JSON(http.StatusCreated, driver)
}

func (h *Handler) GetDriver(c echo.Context) error {
	driver, err := h.svc.Get(c.Request().Context(), c.Param("driverId"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		}
		c.Logger().Error("Handler.GetDriver: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to retrieve driver"})
	}
	return c.JSON(http.StatusOK, driver)
}

func (h *Handler) ListDrivers(c echo.Context) error {
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

	list, total, err := h.svc.List(c.Request().Context(), page, limit)
	if err != nil {
		c.Logger().Error("Handler.ListDrivers: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to list drivers"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"drivers": list, "total": total})
}

func (h *Handler) SetAvailability(c echo.Context) error {
	var req models.AvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	driver, err := h.svc.SetAvailability(c.Request().Context(), c.Param("driverId"), *req.IsOnline)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		}
		c.Logger().Error("Handler.SetAvailability: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update availability"})
	}
	return c.JSON(http.StatusOK, driver)
}

func (h *Handler) SetVerification(c echo.Context) error {
	var req models.VerificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	driver, err := h.svc.SetVerification(c.Request().Context(), c.Param("driverId"), *req.IsVerified)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		}
		c.Logger().Error("Handler.SetVerification: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to update verification"})
	}
	return c.JSON(http.StatusOK, driver)
}

func (h *Handler) PlaceHold(c echo.Context) error {
	var req models.HoldRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	driver, err := h.svc.PlaceHold(c.Request().Context(), c.Param("driverId"), req.Reason, req.Until)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		}
		c.Logger().Error("Handler.PlaceHold: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to place hold"})
	}
	return c.JSON(http.StatusOK, driver)
}

func (h *Handler) LiftHold(c echo.Context) error {
	driver, err := h.svc.LiftHold(c.Request().Context(), c.Param("driverId"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		}
		c.Logger().Error("Handler.LiftHold: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to lift hold"})
	}
	return c.JSON(http.StatusOK, driver)
}

// ReportPosition ingests one position update. Out-of-region coordinates come
// back as 422 with the driver's stored position untouched.
func (h *Handler) ReportPosition(c echo.Context) error {
	var req models.ReportPositionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	err := h.svc.ReportPosition(c.Request().Context(), c.Param("driverId"), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Driver not found"})
		case errors.Is(err, models.ErrOutOfBounds):
			return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Message: "Position outside operational region"})
		}
		c.Logger().Error("Handler.ReportPosition: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to report position"})
	}
	return c.NoContent(http.StatusNoContent)
}
