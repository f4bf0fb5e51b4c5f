package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "charasync:lobby:"

// RedisBackend shares lobbies between server instances. Membership lives
// in a set per lobby and events travel over a pub/sub channel per lobby.
type RedisBackend struct {
	client *redis.Client
	log    logging.Logger
}

// NewRedisBackend connects to redisURL and checks the connection.
func NewRedisBackend(ctx context.Context, redisURL string, log logging.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisBackendWithClient(client, log), nil
}

func NewRedisBackendWithClient(client *redis.Client, log logging.Logger) *RedisBackend {
	return &RedisBackend{client: client, log: log.With("module", "lobby-redis")}
}

func openKey(lobbyID string) string    { return keyPrefix + lobbyID + ":open" }
func membersKey(lobbyID string) string { return keyPrefix + lobbyID + ":members" }
func channel(lobbyID string) string    { return keyPrefix + lobbyID }

func (b *RedisBackend) Create(ctx context.Context, lobbyID string) error {
	ok, err := b.client.SetNX(ctx, openKey(lobbyID), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return fmt.Errorf("create lobby: %w", err)
	}
	if !ok {
		return common.ErrConflict
	}
	return nil
}

func (b *RedisBackend) exists(ctx context.Context, lobbyID string) error {
	n, err := b.client.Exists(ctx, openKey(lobbyID)).Result()
	if err != nil {
		return fmt.Errorf("lookup lobby: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// joinScript adds a member to an open lobby and returns the members.
// A nil reply means the lobby is not open.
var joinScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
redis.call("SADD", KEYS[2], ARGV[1])
return redis.call("SMEMBERS", KEYS[2])
`)

// leaveScript removes a member and closes the lobby once it is empty.
// A nil reply means the lobby is not open or the user was not a member.
var leaveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
if redis.call("SREM", KEYS[2], ARGV[1]) == 0 then
	return false
end
local left = redis.call("SMEMBERS", KEYS[2])
if #left == 0 then
	redis.call("DEL", KEYS[1], KEYS[2])
end
return left
`)

func (b *RedisBackend) runMembership(ctx context.Context, script *redis.Script, op, lobbyID, userID string) ([]string, error) {
	m, err := script.Run(ctx, b.client, []string{openKey(lobbyID), membersKey(lobbyID)}, userID).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s lobby: %w", op, err)
	}
	slices.Sort(m)
	return m, nil
}

func (b *RedisBackend) Join(ctx context.Context, lobbyID, userID string) ([]string, error) {
	return b.runMembership(ctx, joinScript, "join", lobbyID, userID)
}

func (b *RedisBackend) Leave(ctx context.Context, lobbyID, userID string) ([]string, error) {
	return b.runMembership(ctx, leaveScript, "leave", lobbyID, userID)
}

func (b *RedisBackend) Members(ctx context.Context, lobbyID string) ([]string, error) {
	if err := b.exists(ctx, lobbyID); err != nil {
		return nil, err
	}
	return b.members(ctx, lobbyID)
}

func (b *RedisBackend) members(ctx context.Context, lobbyID string) ([]string, error) {
	m, err := b.client.SMembers(ctx, membersKey(lobbyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	slices.Sort(m)
	return m, nil
}

func (b *RedisBackend) Publish(ctx context.Context, ev models.LobbyEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(ev.LobbyID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBackend) Subscribe(ctx context.Context, lobbyID string) (<-chan models.LobbyEvent, error) {
	if err := b.exists(ctx, lobbyID); err != nil {
		return nil, err
	}
	sub := b.client.Subscribe(ctx, channel(lobbyID))
	// Receive returns once the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	msgs := sub.Channel()
	out := make(chan models.LobbyEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev models.LobbyEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn(ctx, "dropping malformed lobby event", "lobby_id", lobbyID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
