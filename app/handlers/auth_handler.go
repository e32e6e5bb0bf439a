package handlers

import (
	"log"
	"strings"

	"github.com/amirphl/esim-relay/app/dto"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AuthHandlerInterface defines the contract for admin session handlers
type AuthHandlerInterface interface {
	Login(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
	Status(c fiber.Ctx) error
}

// AuthHandler handles admin login, logout and session status
type AuthHandler struct {
	flow      businessflow.AdminAuthFlow
	validator *validator.Validate
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(flow businessflow.AdminAuthFlow) AuthHandlerInterface {
	return &AuthHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func bearerToken(c fiber.Ctx) string {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Login authenticates the admin with username/password and issues an access token
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/login", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.Login(ctx, &req, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsIncorrectCredentials(err):
			return ErrorResponse(c, fiber.StatusUnauthorized, "Incorrect username or password", "INCORRECT_CREDENTIALS", nil)
		case businessflow.IsAdminNotConfigured(err):
			return ErrorResponse(c, fiber.StatusServiceUnavailable, "Admin login is not configured", "ADMIN_NOT_CONFIGURED", nil)
		}
		log.Println("Admin login failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// Logout revokes the bearer token of the current session
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return ErrorResponse(c, fiber.StatusUnauthorized, "Access token is required", "MISSING_ACCESS_TOKEN", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/logout", defaultRequestTimeout)
	defer cancel()

	if err := h.flow.Logout(ctx, token); err != nil {
		if businessflow.IsUnauthenticated(err) {
			return ErrorResponse(c, fiber.StatusUnauthorized, "Not authenticated", "UNAUTHENTICATED", nil)
		}
		log.Println("Admin logout failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Logout failed", "LOGOUT_FAILED", nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Logout successful", nil)
}

// Status reports whether the request carries a live admin session
func (h *AuthHandler) Status(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/auth/status", defaultRequestTimeout)
	defer cancel()

	status, err := h.flow.Status(ctx, bearerToken(c))
	if err != nil {
		log.Println("Admin status check failed", err)
		return ErrorResponse(c, fiber.StatusInternalServerError, "Status check failed", "STATUS_FAILED", nil)
	}

	return SuccessResponse(c, fiber.StatusOK, "Session status", status)
}
