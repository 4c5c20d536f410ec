package bootstrap

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/squadlink/voice-backend/internal/auth"
	"github.com/squadlink/voice-backend/internal/gateway"
	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/presence"
	"github.com/squadlink/voice-backend/internal/room"
	"github.com/squadlink/voice-backend/internal/sfu"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
	"go.uber.org/fx"
)

func ProvideEngineConfig(cfg *Config) sfu.EngineConfig {
	iceServers := make([]sfu.ICEServerConfig, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		iceServers = append(iceServers, sfu.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return sfu.EngineConfig{
		ICEServers: iceServers,
		PortRange: sfu.PortRange{
			Min: cfg.RTCPortMin,
			Max: cfg.RTCPortMax,
		},
	}
}

func ProvideMediaEngine(cfg sfu.EngineConfig, logger *slog.Logger) (sfu.Engine, error) {
	return sfu.NewWebRTCEngine(cfg, logger)
}

func ProvideRegistry(engine sfu.Engine, logger *slog.Logger) *sfu.Registry {
	return sfu.NewRegistry(engine, logger)
}

func ProvidePolicyEngine(cfg *Config) *policy.Engine {
	return policy.NewEngine(cfg.ForceCallOverridesSpeaker)
}

func ProvideHub(logger *slog.Logger) *gateway.Hub {
	return gateway.NewHub(logger)
}

func ProvideStrategy(cfg *Config, registry *sfu.Registry, hub *gateway.Hub, logger *slog.Logger) sfu.Strategy {
	if cfg.RoutingMode == RoutingModeClient {
		return sfu.NewClientEnforced(hub, logger)
	}
	return sfu.NewServerEnforced(registry)
}

func ProvideSnapshotProvider(rooms *room.Store, users *user.Store, force *room.ForceCalls) sfu.SnapshotProvider {
	return room.NewSnapshots(rooms, users, force)
}

func ProvideReconciler(snapshots sfu.SnapshotProvider, registry *sfu.Registry, engine *policy.Engine, strategy sfu.Strategy, logger *slog.Logger) *sfu.Reconciler {
	return sfu.NewReconciler(snapshots, registry, engine, strategy, logger)
}

func ProvideMonitor(registry *sfu.Registry, hub *gateway.Hub, logger *slog.Logger) *sfu.Monitor {
	return sfu.NewMonitor(registry, hub, logger)
}

func ProvideForceCalls() *room.ForceCalls {
	return room.NewForceCalls()
}

func ProvideTeamService(teams *team.Store, users *user.Store) *team.Service {
	return team.NewService(teams, users)
}

func ProvideRoomService(rooms *room.Store, teams *team.Store, teamSvc *team.Service, users *user.Store, force *room.ForceCalls) *room.Service {
	return room.NewService(rooms, teams, teamSvc, users, force)
}

func ProvideTokenService(cfg *Config) *gateway.TokenService {
	return gateway.NewTokenService(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
}

type GatewayServerParams struct {
	fx.In

	Validator  *auth.JWTValidator
	Hub        *gateway.Hub
	Registry   *sfu.Registry
	Reconciler *sfu.Reconciler
	Monitor    *sfu.Monitor
	Presence   *presence.Store
	Users      *user.Store
	Logger     *slog.Logger
}

func ProvideGatewayServer(params GatewayServerParams) *gateway.Server {
	return gateway.NewServer(
		params.Validator,
		params.Hub,
		params.Registry,
		params.Reconciler,
		params.Monitor,
		params.Presence,
		params.Users,
		params.Logger,
	)
}

func RegisterGatewayRoutes(e *echo.Echo, server *gateway.Server) {
	e.GET("/ws", server.HandleConnection)
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideEngineConfig,
		ProvideMediaEngine,
		ProvideRegistry,
		ProvidePolicyEngine,
		ProvideHub,
		ProvideStrategy,
		ProvideSnapshotProvider,
		ProvideReconciler,
		ProvideMonitor,
		ProvideForceCalls,
		ProvideTeamService,
		ProvideRoomService,
		ProvideTokenService,
		ProvideGatewayServer,
	),
	fx.Invoke(RegisterGatewayRoutes),
)
