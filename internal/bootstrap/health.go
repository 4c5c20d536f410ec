package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/squadlink/voice-backend/internal/gateway"
	"github.com/squadlink/voice-backend/internal/health"
	"github.com/squadlink/voice-backend/internal/presence"
	"github.com/squadlink/voice-backend/internal/room"
	"github.com/squadlink/voice-backend/internal/sfu"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	registry *sfu.Registry,
	hub *gateway.Hub,
	rooms *room.Store,
	presenceStore *presence.Store,
) *health.Handler {
	return health.NewHandler(
		db,
		redisClient,
		registry,
		hub,
		rooms,
		presenceStore,
		version,
	)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
