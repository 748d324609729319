package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/teamspace-service/internal/api/dto"
	"github.com/spec-kit/teamspace-service/internal/service"
)

// AuthHandler exposes registration and login endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		return fiber.NewError(http.StatusBadRequest, "username, password, displayName required")
	}

	user, err := h.auth.Register(c.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"id":          user.ID,
			"username":    user.Username,
			"displayName": user.DisplayName,
		},
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "username and password required")
	}

	user, token, _, err := h.auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(dto.AuthResponse{
			Token:  nil,
			Reason: "login failed: invalid username or password",
		})
	}

	return c.JSON(dto.AuthResponse{
		Token:       &token,
		DisplayName: user.DisplayName,
	})
}

// Logout handles POST /api/auth/logout. Tokens are stateless; the client
// is instructed to discard its copy.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.Context(), ""); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": "logged out"})
}
