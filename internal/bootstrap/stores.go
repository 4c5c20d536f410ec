package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"github.com/squadlink/voice-backend/internal/presence"
	"github.com/squadlink/voice-backend/internal/room"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideUserStore(db *gorm.DB) *user.Store {
	return user.NewStore(db)
}

func ProvideRoomStore(db *gorm.DB) *room.Store {
	return room.NewStore(db)
}

func ProvideTeamStore(db *gorm.DB) *team.Store {
	return team.NewStore(db)
}

func ProvidePresenceStore(redisClient *redis.Client) *presence.Store {
	return presence.NewStore(redisClient)
}

func RunMigrations(userStore *user.Store, roomStore *room.Store, teamStore *team.Store) error {
	if err := userStore.Migrate(); err != nil {
		return err
	}
	if err := roomStore.Migrate(); err != nil {
		return err
	}
	return teamStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideUserStore,
		ProvideRoomStore,
		ProvideTeamStore,
		ProvidePresenceStore,
	),
	fx.Invoke(RunMigrations),
)
