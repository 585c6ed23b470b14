package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis"

	"notespresence/internal/config"
	"notespresence/internal/models"
)

// TokenKey holds the uid for a session token.
func TokenKey(token string) string { return "token:" + token }

// UserKey is the hash holding a user's profile fields.
func UserKey(uid string) string { return "user:" + uid }

// RedisWriter stores presence in per-user hashes.
type RedisWriter struct {
	client *redis.Client
}

// NewRedisWriter connects and pings the server.
func NewRedisWriter(cfg config.Redis) (*RedisWriter, error) {
	client := redis.NewClient(&redis.Options{
		Network:  "tcp",
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := client.Ping().Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisWriter{client: client}, nil
}

// Write resolves the token to a uid and updates isOnline and updatedTime.
func (w *RedisWriter) Write(ctx context.Context, report models.PresenceReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := w.client.WithContext(ctx)
	uid, err := c.Get(TokenKey(report.Token)).Result()
	if err == redis.Nil {
		return ErrUnknownToken
	}
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	fields := map[string]interface{}{
		"isOnline":    strconv.FormatBool(report.IsOnline),
		"updatedTime": report.ObservedAt.UnixMilli(),
	}
	if err := c.HMSet(UserKey(uid), fields).Err(); err != nil {
		return fmt.Errorf("update profile %s: %w", uid, err)
	}
	return nil
}

// Close closes the client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}
