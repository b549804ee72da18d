package handler

import (
	"errors"
	"net/http"

	"github.com/ecoshield360/ecoshield/internal/api/models"
	"github.com/ecoshield360/ecoshield/internal/api/response"
	"github.com/ecoshield360/ecoshield/internal/auth"
)

// UserHandler handles account endpoints for the authenticated user.
type UserHandler struct {
	authService *auth.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{authService: authService}
}

// GetMe handles GET /api/v1/users/me.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(w, r, "user not found")
			return
		}
		response.InternalError(w, r, "failed to load user")
		return
	}

	response.JSON(w, r, http.StatusOK, models.UserProfile{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		FullName:    user.FullName(),
		Role:        string(user.Role),
		Authorities: user.Authorities(),
		IsVerified:  user.IsVerified,
		CreatedAt:   models.Timestamp(user.CreatedAt),
	})
}
