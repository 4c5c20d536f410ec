package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/gateway"
	"github.com/squadlink/voice-backend/internal/room"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	UserHandler   *user.Handler
	TeamHandler   *team.Handler
	RoomHandler   *room.Handler
	TokenHandler  *gateway.TokenHandler
	JWTMiddleware *auth.Middleware
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/api/v1")

	public := api.Group("/auth")
	authed := api.Group("/auth")
	authed.Use(params.JWTMiddleware.Authenticate)
	params.UserHandler.RegisterRoutes(public, authed)

	roomsGroup := api.Group("/rooms")
	roomsGroup.Use(params.JWTMiddleware.Authenticate)
	params.RoomHandler.RegisterRoutes(roomsGroup)

	teamsGroup := api.Group("/teams")
	teamsGroup.Use(params.JWTMiddleware.Authenticate)
	params.TeamHandler.RegisterRoutes(teamsGroup)

	rtcGroup := api.Group("/rtc")
	rtcGroup.Use(params.JWTMiddleware.Authenticate)
	params.TokenHandler.RegisterRoutes(rtcGroup)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideJWTValidator(cfg *Config) *auth.JWTValidator {
	return auth.NewJWTValidator(cfg.HMACKey)
}

func ProvideJWTMiddleware(validator *auth.JWTValidator) *auth.Middleware {
	return auth.NewMiddleware(validator)
}

func ProvideUserHandler(store *user.Store, validator *auth.JWTValidator, notifier user.Notifier, logger *slog.Logger) *user.Handler {
	return user.NewHandler(store, validator, notifier, logger.With("handler", "user"))
}

func ProvideTeamHandler(service *team.Service, teams *team.Store, users *user.Store, notifier team.Notifier, logger *slog.Logger) *team.Handler {
	return team.NewHandler(service, teams, users, notifier, logger.With("handler", "team"))
}

func ProvideRoomHandler(service *room.Service, rooms *room.Store, teams *team.Store, users *user.Store, force *room.ForceCalls, notifier room.Notifier, logger *slog.Logger) *room.Handler {
	return room.NewHandler(service, rooms, teams, users, force, notifier, logger.With("handler", "room"))
}

func ProvideTokenHandler(tokens *gateway.TokenService, users *user.Store, logger *slog.Logger) *gateway.TokenHandler {
	return gateway.NewTokenHandler(tokens, users, logger.With("handler", "rtc_token"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideJWTValidator,
		ProvideJWTMiddleware,
		ProvideUserHandler,
		ProvideTeamHandler,
		ProvideRoomHandler,
		ProvideTokenHandler,
	),
	fx.Invoke(RegisterRoutes),
)
