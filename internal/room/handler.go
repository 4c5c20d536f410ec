package room

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/dto"
	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/shared"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
)

// Notifier fans room lifecycle events out to the realtime layer. The
// handler fires it after state is committed, never before.
type Notifier interface {
	RoomStateChanged(ctx context.Context, roomID string)
	RoomDestroyed(ctx context.Context, roomID string)
	UserLeftRoom(ctx context.Context, roomID, userID string)
	ForceCallChanged(ctx context.Context, roomID string, active bool)
	MuteAllIssued(ctx context.Context, roomID string)
}

type Handler struct {
	service  *Service
	rooms    *Store
	teams    *team.Store
	users    *user.Store
	force    *ForceCalls
	notifier Notifier
	logger   *slog.Logger
}

func NewHandler(service *Service, rooms *Store, teams *team.Store, users *user.Store, force *ForceCalls, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		rooms:    rooms,
		teams:    teams,
		users:    users,
		force:    force,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/join", h.Join)
	g.POST("/:id/leave", h.Leave)
	g.DELETE("/:id", h.Destroy)
	g.POST("/:id/status", h.SetStatus)
	g.POST("/:id/leader", h.TransferLeader)
	g.POST("/:id/mute-all", h.MuteAll)
	g.POST("/:id/force-call", h.ForceCall)
}

// @Summary      Create a room
// @Description  Creates a room in preparing state with the default squads
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        request  body      dto.CreateRoomRequest  true  "Room settings"
// @Success      201      {object}  dto.RoomDetail
// @Failure      400      {object}  shared.APIError
// @Failure      401      {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms [post]
func (h *Handler) Create(c echo.Context) error {
	if _, err := auth.RequireAuth(c); err != nil {
		return err
	}

	var req dto.CreateRoomRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return shared.BadRequest("invalid_body", "room name is required")
	}

	r, _, err := h.service.Create(c.Request().Context(), req.Name, req.Capacity)
	if err != nil {
		h.logger.Error("failed to create room", "error", err)
		return shared.InternalError("create_failed", "failed to create room")
	}

	detail, err := h.detail(c.Request().Context(), r)
	if err != nil {
		return shared.InternalError("read_failed", "failed to load room")
	}
	return c.JSON(http.StatusCreated, detail)
}

// @Summary      List rooms
// @Tags         rooms
// @Produce      json
// @Success      200  {array}  dto.RoomSummary
// @Failure      401  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms [get]
func (h *Handler) List(c echo.Context) error {
	if _, err := auth.RequireAuth(c); err != nil {
		return err
	}

	ctx := c.Request().Context()
	rooms, err := h.rooms.List(ctx)
	if err != nil {
		h.logger.Error("failed to list rooms", "error", err)
		return shared.InternalError("list_failed", "failed to list rooms")
	}

	out := make([]dto.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		members, err := h.users.ListByRoom(ctx, r.ID)
		if err != nil {
			return shared.InternalError("list_failed", "failed to list rooms")
		}
		out = append(out, dto.RoomSummary{
			ID:        r.ID,
			Name:      r.Name,
			Status:    string(r.Status),
			Capacity:  r.Capacity,
			UserCount: len(members),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// @Summary      Get a room
// @Description  Returns the room with its squads and members
// @Tags         rooms
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  dto.RoomDetail
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	if _, err := auth.RequireAuth(c); err != nil {
		return err
	}

	r, err := h.rooms.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return shared.NotFound("room_not_found", "room not found")
	}

	detail, err := h.detail(c.Request().Context(), r)
	if err != nil {
		h.logger.Error("failed to load room detail", "error", err, "room_id", r.ID)
		return shared.InternalError("read_failed", "failed to load room")
	}
	return c.JSON(http.StatusOK, detail)
}

// @Summary      Join a room
// @Description  Puts the caller into the room. The first joiner takes command.
// @Tags         rooms
// @Param        id  path  string  true  "Room ID"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/join [post]
func (h *Handler) Join(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	roomID := c.Param("id")
	if err := h.service.Join(ctx, roomID, userID); err != nil {
		return h.mapError(err, userID)
	}

	h.notifier.RoomStateChanged(ctx, roomID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Leave a room
// @Description  Removes the caller. Command passes on if the leader leaves; the last member out destroys the room.
// @Tags         rooms
// @Param        id  path  string  true  "Room ID"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/leave [post]
func (h *Handler) Leave(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	roomID := c.Param("id")
	destroyed, err := h.service.Leave(ctx, roomID, userID)
	if err != nil {
		return h.mapError(err, userID)
	}

	if destroyed {
		h.notifier.RoomDestroyed(ctx, roomID)
	} else {
		h.notifier.UserLeftRoom(ctx, roomID, userID)
		h.notifier.RoomStateChanged(ctx, roomID)
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Destroy a room
// @Description  Leader-only. Tears the room down and releases every member.
// @Tags         rooms
// @Param        id  path  string  true  "Room ID"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id} [delete]
func (h *Handler) Destroy(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	r, err := h.requireLeader(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	if err := h.service.Destroy(ctx, r.ID); err != nil {
		h.logger.Error("failed to destroy room", "error", err, "room_id", r.ID)
		return shared.InternalError("destroy_failed", "failed to destroy room")
	}

	h.notifier.RoomDestroyed(ctx, r.ID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Set room status
// @Description  Leader-only. Flips the room between preparing and assaulting, retuning all audio.
// @Tags         rooms
// @Accept       json
// @Param        id       path  string                true  "Room ID"
// @Param        request  body  dto.SetStatusRequest  true  "New status"
// @Success      204  "No Content"
// @Failure      400  {object}  shared.APIError
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/status [post]
func (h *Handler) SetStatus(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}

	ctx := c.Request().Context()
	r, err := h.requireLeader(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	if err := h.service.SetStatus(ctx, r.ID, policy.RoomStatus(req.Status)); err != nil {
		return h.mapError(err, userID)
	}

	h.notifier.RoomStateChanged(ctx, r.ID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Transfer command
// @Description  Leader-only. Hands command to another member of the room.
// @Tags         rooms
// @Accept       json
// @Param        id       path  string                     true  "Room ID"
// @Param        request  body  dto.TransferLeaderRequest  true  "New leader"
// @Success      204  "No Content"
// @Failure      400  {object}  shared.APIError
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/leader [post]
func (h *Handler) TransferLeader(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.TransferLeaderRequest
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return shared.BadRequest("invalid_body", "user_id is required")
	}

	ctx := c.Request().Context()
	r, err := h.requireLeader(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	if err := h.service.TransferLeader(ctx, r.ID, req.UserID); err != nil {
		return h.mapError(err, userID)
	}

	h.notifier.RoomStateChanged(ctx, r.ID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Mute everyone
// @Description  Leader-only. Switches every mic in the room off except the leader's.
// @Tags         rooms
// @Param        id  path  string  true  "Room ID"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/mute-all [post]
func (h *Handler) MuteAll(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	r, err := h.requireLeader(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	if err := h.service.MuteAll(ctx, r.ID, userID); err != nil {
		h.logger.Error("failed to mute room", "error", err, "room_id", r.ID)
		return shared.InternalError("mute_failed", "failed to mute room")
	}

	h.notifier.MuteAllIssued(ctx, r.ID)
	h.notifier.RoomStateChanged(ctx, r.ID)
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Force call
// @Description  Leader-only. Raises or drops the all-hands audio override.
// @Tags         rooms
// @Accept       json
// @Param        id       path  string                true  "Room ID"
// @Param        request  body  dto.ForceCallRequest  true  "Override flag"
// @Success      204  "No Content"
// @Failure      401  {object}  shared.APIError
// @Failure      403  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rooms/{id}/force-call [post]
func (h *Handler) ForceCall(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.ForceCallRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_body", "invalid request body")
	}

	ctx := c.Request().Context()
	r, err := h.requireLeader(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	h.service.SetForceCall(r.ID, req.Active)
	h.notifier.ForceCallChanged(ctx, r.ID, req.Active)
	h.notifier.RoomStateChanged(ctx, r.ID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) requireLeader(ctx context.Context, roomID, userID string) (*Room, error) {
	r, err := h.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, shared.NotFound("room_not_found", "room not found")
	}
	if r.LeaderID != userID {
		return nil, shared.Forbidden("leader_only", "only the room leader may do this")
	}
	return r, nil
}

func (h *Handler) detail(ctx context.Context, r *Room) (dto.RoomDetail, error) {
	members, err := h.users.ListByRoom(ctx, r.ID)
	if err != nil {
		return dto.RoomDetail{}, err
	}
	teams, err := h.teams.ListByRoom(ctx, r.ID)
	if err != nil {
		return dto.RoomDetail{}, err
	}

	byTeam := make(map[string][]string)
	userDTOs := make([]dto.MeResponse, 0, len(members))
	for i := range members {
		m := &members[i]
		if m.TeamID != "" {
			byTeam[m.TeamID] = append(byTeam[m.TeamID], m.ID)
		}
		userDTOs = append(userDTOs, user.ToMeResponse(m))
	}

	teamDTOs := make([]dto.TeamDetail, 0, len(teams))
	for _, t := range teams {
		memberIDs := byTeam[t.ID]
		if memberIDs == nil {
			memberIDs = []string{}
		}
		teamDTOs = append(teamDTOs, dto.TeamDetail{
			ID:         t.ID,
			RoomID:     t.RoomID,
			Color:      t.Color,
			Enabled:    t.Enabled,
			CaptainID:  t.CaptainID,
			MaxMembers: t.MaxMembers,
			MemberIDs:  memberIDs,
		})
	}

	return dto.RoomDetail{
		ID:        r.ID,
		Name:      r.Name,
		Status:    string(r.Status),
		LeaderID:  r.LeaderID,
		Capacity:  r.Capacity,
		ForceCall: h.force.Active(r.ID),
		Teams:     teamDTOs,
		Users:     userDTOs,
	}, nil
}

func (h *Handler) mapError(err error, userID string) error {
	switch err {
	case shared.ErrNotFound:
		return shared.NotFound("not_found", "room or user not found")
	case ErrRoomFull:
		return shared.Conflict("room_full", "room is at capacity")
	case ErrAlreadyInRoom:
		return shared.Conflict("already_in_room", "leave the current room first")
	case ErrNotInRoom:
		return shared.Conflict("not_in_room", "user is not in this room")
	case ErrBadStatus:
		return shared.BadRequest("bad_status", "status must be preparing or assaulting")
	default:
		h.logger.Error("room operation failed", "error", err, "user_id", userID)
		return shared.InternalError("room_op_failed", "room operation failed")
	}
}
