package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	lkauth "github.com/livekit/protocol/auth"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/dto"
	"github.com/squadlink/voice-backend/internal/shared"
	"github.com/squadlink/voice-backend/internal/user"
)

// TokenService mints access tokens for the hosted RTC backbone, used
// when audio runs client-enforced instead of through the built-in SFU.
type TokenService struct {
	apiKey    string
	apiSecret string
	url       string
}

func NewTokenService(apiKey, apiSecret, url string) *TokenService {
	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		url:       url,
	}
}

func (s *TokenService) URL() string {
	return s.url
}

func (s *TokenService) Enabled() bool {
	return s.apiKey != "" && s.apiSecret != ""
}

func (s *TokenService) GenerateToken(identity, room string) (string, error) {
	at := lkauth.NewAccessToken(s.apiKey, s.apiSecret)

	grant := &lkauth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}

	at.SetIdentity(identity).
		SetValidFor(24 * time.Hour).
		SetVideoGrant(grant)

	return at.ToJWT()
}

// TokenHandler exposes the RTC token endpoint.
type TokenHandler struct {
	tokens *TokenService
	users  *user.Store
	logger *slog.Logger
}

func NewTokenHandler(tokens *TokenService, users *user.Store, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, users: users, logger: logger}
}

func (h *TokenHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/token", h.Token)
}

// @Summary      Get an RTC token
// @Description  Returns a media token for the caller's current room on the hosted RTC backbone
// @Tags         rtc
// @Produce      json
// @Success      200  {object}  dto.RTCTokenResponse
// @Failure      401  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Security     BearerAuth
// @Router       /rtc/token [get]
func (h *TokenHandler) Token(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	if !h.tokens.Enabled() {
		return shared.NotFound("rtc_disabled", "hosted RTC backbone is not configured")
	}

	u, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return shared.NotFound("user_not_found", "user not found")
	}
	if u.RoomID == "" {
		return shared.Conflict("not_in_room", "join a room first")
	}

	token, err := h.tokens.GenerateToken(u.ID, u.RoomID)
	if err != nil {
		h.logger.Error("token generation failed", "error", err, "user_id", u.ID)
		return shared.InternalError("token_failed", "failed to generate token")
	}

	return c.JSON(http.StatusOK, dto.RTCTokenResponse{
		Token:    token,
		URL:      h.tokens.URL(),
		Room:     u.RoomID,
		Identity: u.ID,
	})
}
