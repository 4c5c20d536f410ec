package user

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/dto"
	"github.com/squadlink/voice-backend/internal/shared"
)

// Notifier lets the handler kick room-level side effects after a user's
// tactical flags change, without importing the room machinery.
type Notifier interface {
	RoomStateChanged(ctx context.Context, roomID string)
}

type Handler struct {
	store     *Store
	validator *auth.JWTValidator
	notifier  Notifier
	logger    *slog.Logger
}

func NewHandler(store *Store, validator *auth.JWTValidator, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(public, authed *echo.Group) {
	public.POST("/guest", h.GuestLogin)
	authed.GET("/me", h.Me)
	authed.PATCH("/me", h.UpdateMe)
}

// @Summary      Guest login
// @Description  Creates a guest user and returns a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      dto.GuestLoginRequest  true  "Display name"
// @Success      200      {object}  dto.GuestLoginResponse
// @Failure      400      {object}  shared.APIError
// @Router       /auth/guest [post]
func (h *Handler) GuestLogin(c echo.Context) error {
	var req dto.GuestLoginRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return shared.BadRequest("name_required", "display name is required")
	}

	u := &User{Name: req.Name, MicEnabled: true, SpeakerEnabled: true}
	if err := h.store.Create(c.Request().Context(), u); err != nil {
		h.logger.Error("failed to create guest user", "error", err)
		return shared.InternalError("create_failed", "failed to create user")
	}

	token, err := h.validator.Issue(u.ID, u.Name)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err, "user_id", u.ID)
		return shared.InternalError("token_failed", "failed to issue token")
	}

	return c.JSON(http.StatusOK, dto.GuestLoginResponse{
		Token: token,
		User:  ToMeResponse(u),
	})
}

// @Summary      Get current user
// @Description  Returns the authenticated user's profile and tactical state
// @Tags         auth
// @Produce      json
// @Success      200  {object}  dto.MeResponse
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *Handler) Me(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	u, err := h.store.GetByID(c.Request().Context(), userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}

	return c.JSON(http.StatusOK, ToMeResponse(u))
}

// @Summary      Update current user
// @Description  Updates the display name or mic/speaker flags. Flag changes retune room audio.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      dto.UpdateMeRequest  true  "Fields to update"
// @Success      200      {object}  dto.MeResponse
// @Failure      400      {object}  shared.APIError
// @Failure      401      {object}  shared.APIError
// @Security     BearerAuth
// @Router       /auth/me [patch]
func (h *Handler) UpdateMe(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.UpdateMeRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return shared.BadRequest("name_required", "display name cannot be empty")
	}

	u, err := h.store.Update(c.Request().Context(), userID, req.Name, req.MicEnabled, req.SpeakerEnabled)
	if err != nil {
		if err == shared.ErrNotFound {
			return shared.NotFound("user_not_found", "user not found")
		}
		h.logger.Error("failed to update user", "error", err, "user_id", userID)
		return shared.InternalError("update_failed", "failed to update user")
	}

	if u.RoomID != "" && (req.MicEnabled != nil || req.SpeakerEnabled != nil) {
		h.notifier.RoomStateChanged(c.Request().Context(), u.RoomID)
	}

	return c.JSON(http.StatusOK, ToMeResponse(u))
}

func ToMeResponse(u *User) dto.MeResponse {
	return dto.MeResponse{
		ID:             u.ID,
		Name:           u.Name,
		RoomID:         u.RoomID,
		TeamID:         u.TeamID,
		Role:           string(u.Role),
		MicEnabled:     u.MicEnabled,
		SpeakerEnabled: u.SpeakerEnabled,
	}
}
