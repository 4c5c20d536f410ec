// Package presence tracks which users hold a live signaling connection,
// backed by redis with TTLs so crashed nodes shed their entries on their
// own.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 60 * time.Second

	userKeyPrefix = "presence:user:"
	roomKeyPrefix = "presence:room:"
)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient, ttl: defaultTTL}
}

// Connect marks the user online in a room. Reconnects simply refresh.
func (s *Store) Connect(ctx context.Context, roomID, userID string) error {
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, userKeyPrefix+userID, roomID, s.ttl)
	pipe.SAdd(ctx, roomKeyPrefix+roomID, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat extends the user's liveness window. Returns false when the
// entry already expired and the client must reconnect.
func (s *Store) Heartbeat(ctx context.Context, userID string) (bool, error) {
	ok, err := s.redis.Expire(ctx, userKeyPrefix+userID, s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Disconnect removes the user's presence immediately.
func (s *Store) Disconnect(ctx context.Context, userID string) error {
	roomID, err := s.redis.Get(ctx, userKeyPrefix+userID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.redis.Pipeline()
	pipe.Del(ctx, userKeyPrefix+userID)
	pipe.SRem(ctx, roomKeyPrefix+roomID, userID)
	_, err = pipe.Exec(ctx)
	return err
}

// RoomMembers returns the users currently online in a room, pruning
// entries whose TTL lapsed without a clean disconnect.
func (s *Store) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, roomKeyPrefix+roomID).Result()
	if err != nil {
		return nil, err
	}

	alive := make([]string, 0, len(members))
	var stale []interface{}
	for _, userID := range members {
		n, err := s.redis.Exists(ctx, userKeyPrefix+userID).Result()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			alive = append(alive, userID)
		} else {
			stale = append(stale, userID)
		}
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, roomKeyPrefix+roomID, stale...).Err()
	}
	return alive, nil
}

// Online reports whether a user currently holds a live connection.
func (s *Store) Online(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Exists(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ForgetRoom drops a destroyed room's membership set.
func (s *Store) ForgetRoom(ctx context.Context, roomID string) error {
	return s.redis.Del(ctx, roomKeyPrefix+roomID).Err()
}
