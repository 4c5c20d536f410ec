package team

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/dto"
	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/shared"
	"github.com/squadlink/voice-backend/internal/user"
)

type Notifier interface {
	RoomStateChanged(ctx context.Context, roomID string)
}

type Handler struct {
	service  *Service
	teams    *Store
	users    *user.Store
	notifier Notifier
	logger   *slog.Logger
}

func NewHandler(service *Service, teams *Store, users *user.Store, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		teams:    teams,
		users:    users,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:id/join", h.Join)
	g.POST("/leave", h.Leave)
	g.POST("/:id/captain", h.SetCaptain)
	g.POST("/:id/enable", h.Enable)
}

// @Summary      Join a squad
// @Description  Moves the caller onto the squad. The first member of a captainless squad becomes captain.
// @Tags         teams
// @Param        id  path  string  true  "Team ID"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /teams/{id}/join [post]
func (h *Handler) Join(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.service.Join(ctx, userID, c.Param("id")); err != nil {
		return h.mapError(err, userID)
	}

	h.notifyFor(ctx, userID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Leave the current squad
// @Description  Detaches the caller from their squad. A departing captain hands off the captaincy.
// @Tags         teams
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /teams/leave [post]
func (h *Handler) Leave(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}

	if err := h.service.Leave(ctx, userID); err != nil {
		return h.mapError(err, userID)
	}

	if u.RoomID != "" {
		h.notifier.RoomStateChanged(ctx, u.RoomID)
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Assign the squad captain
// @Description  Leader-only. Demotes the current captain and promotes the target atomically.
// @Tags         teams
// @Accept       json
// @Param        id       path  string                 true  "Team ID"
// @Param        request  body  dto.SetCaptainRequest  true  "Target user"
// @Success      204  "No Content"
// @Failure      400  {object}  shared.APIError
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /teams/{id}/captain [post]
func (h *Handler) SetCaptain(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.SetCaptainRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return shared.BadRequest("invalid_body", "user_id is required")
	}

	ctx := c.Request().Context()
	if err := h.requireLeader(ctx, userID); err != nil {
		return err
	}

	if err := h.service.SetCaptain(ctx, c.Param("id"), req.UserID); err != nil {
		return h.mapError(err, userID)
	}

	h.notifyFor(ctx, req.UserID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Enable or disable a squad
// @Description  Leader-only. Disabled squads refuse new joins.
// @Tags         teams
// @Accept       json
// @Param        id       path  string                 true  "Team ID"
// @Param        request  body  dto.EnableTeamRequest  true  "Enabled flag"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /teams/{id}/enable [post]
func (h *Handler) Enable(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.EnableTeamRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}

	ctx := c.Request().Context()
	if err := h.requireLeader(ctx, userID); err != nil {
		return err
	}

	t, err := h.teams.GetByID(ctx, c.Param("id"))
	if err != nil {
		return shared.NotFound("team_not_found", "team not found")
	}

	if err := h.teams.SetEnabled(ctx, t.ID, req.Enabled); err != nil {
		h.logger.Error("failed to toggle team", "error", err, "team_id", t.ID)
		return shared.InternalError("update_failed", "failed to update team")
	}

	h.notifier.RoomStateChanged(ctx, t.RoomID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) requireLeader(ctx context.Context, userID string) error {
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}
	if u.Role != policy.RoleLeader {
		return shared.Forbidden("leader_only", "only the room leader may do this")
	}
	return nil
}

// notifyFor broadcasts to the room the named user currently occupies.
func (h *Handler) notifyFor(ctx context.Context, userID string) {
	u, err := h.users.GetByID(ctx, userID)
	if err != nil || u.RoomID == "" {
		return
	}
	h.notifier.RoomStateChanged(ctx, u.RoomID)
}

func (h *Handler) mapError(err error, userID string) error {
	switch err {
	case shared.ErrNotFound:
		return shared.NotFound("not_found", "team or user not found")
	case ErrNotInRoom:
		return shared.Conflict("not_in_room", "user is not in the team's room")
	case ErrTeamDisabled:
		return shared.Conflict("team_disabled", "team is disabled")
	case ErrTeamFull:
		return shared.Conflict("team_full", "team is full")
	case ErrNotOnTeam:
		return shared.BadRequest("not_on_team", "user is not on this team")
	case ErrLeaderCaptain:
		return shared.BadRequest("leader_captain", "the room leader cannot hold a captaincy")
	default:
		h.logger.Error("team operation failed", "error", err, "user_id", userID)
		return shared.InternalError("team_op_failed", "team operation failed")
	}
}
