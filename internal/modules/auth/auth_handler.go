package auth

import (
	"net/http"
	"time"

	"delivery-dispatch/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handler issues JWTs for the admin dashboard session.
type Handler struct {
	jwtSecret   string
	adminEmail  string
	adminPwHash string
	validate    *validator.Validate
}

// NewHandler creates a new auth handler.
func NewHandler(jwtSecret, adminEmail, adminPwHash string) *Handler {
	return &Handler{
		jwtSecret:   jwtSecret,
		adminEmail:  adminEmail,
		adminPwHash: adminPwHash,
		validate:    validator.New(),
	}
}

// Login verifies the admin credential and returns a signed token.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "Validation failed: " + err.Error()})
	}

	if req.Email != h.adminEmail ||
		bcrypt.CompareHashAndPassword([]byte(h.adminPwHash), []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid credentials"})
	}

	claims := jwt.MapClaims{
		"sub":  req.Email,
		"role": "admin",
		"exp":  time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.Logger().Error("Handler.Login: ", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "Failed to issue token"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": signed})
}

// Middleware returns the JWT guard for protected routes.
func Middleware(jwtSecret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(jwtSecret),
	})
}
