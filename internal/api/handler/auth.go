package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/api/middleware"
	"github.com/ecoshield360/ecoshield/internal/api/models"
	"github.com/ecoshield360/ecoshield/internal/api/response"
	"github.com/ecoshield360/ecoshield/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger.With().Str("handler", "auth").Logger(),
	}
}

// Register handles POST /api/v1/auth/register - create an account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, r, "/api/v1/users/me", authResponse(result,
		"User registered successfully. Check your email to verify your account."))
}

// Login handles POST /api/v1/auth/login - exchange credentials for a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, authResponse(result, "Login successful"))
}

// VerifyEmail handles GET /api/v1/auth/verify-email?token= - the link sent
// by email.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.BadRequest(w, r, "token is required", []models.FieldError{{
			Field:   "token",
			Message: "is required",
			Code:    "REQUIRED",
		}})
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.MessageResponse{
		Message: "Email verified. You can now log in.",
		Status:  true,
	})
}

// ResendVerification handles POST /api/v1/auth/resend-verification. The
// response is the same whether or not the address has a pending account.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req auth.ResendVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ResendVerification(r.Context(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Accepted(w, r, "", models.MessageResponse{
		Message: "If the address belongs to an unverified account, a new verification email has been sent.",
		Status:  true,
	})
}

// writeError maps auth service errors to problem responses.
func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *auth.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "validation error", validationErr.Fields)
	case errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrEmailTaken):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Unauthorized(w, r, err.Error())
	case errors.Is(err, auth.ErrEmailNotVerified), errors.Is(err, auth.ErrAccountDisabled):
		response.Forbidden(w, r, err.Error())
	case errors.Is(err, auth.ErrInvalidVerificationToken), errors.Is(err, auth.ErrVerificationTokenExpired):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, auth.ErrUserNotFound):
		response.NotFound(w, r, "user not found")
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("auth request failed")
		response.InternalError(w, r, "authentication failed")
	}
}

func authResponse(result *auth.AuthResult, message string) models.AuthResponse {
	expiresAt := models.Timestamp(result.ExpiresAt)
	return models.AuthResponse{
		Username:  result.User.Username,
		Message:   message,
		JWT:       result.AccessToken,
		ExpiresAt: &expiresAt,
		Status:    true,
	}
}
