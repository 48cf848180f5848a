package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/bazaar-backend/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const (
	// AdminSessionDuration is 7 days
	AdminSessionDuration = 7 * 24 * time.Hour
	// AdminSessionKeyPrefix is the Redis key prefix for admin sessions
	AdminSessionKeyPrefix = "admin_session:"
	// AdminToSessionKeyPrefix maps an admin name to its current session
	AdminToSessionKeyPrefix = "admin_to_session:"
)

// ErrInvalidAdminKey is returned by SignIn for a wrong key or an unconfigured hash.
var ErrInvalidAdminKey = errors.New("invalid admin key")

// AdminSessions issues and validates admin session tokens kept in Redis.
// Each admin name holds at most one session; signing in again replaces it.
type AdminSessions struct {
	client  *redis.Client
	keyHash string
}

func NewAdminSessions(client *redis.Client, keyHash string) *AdminSessions {
	return &AdminSessions{client: client, keyHash: keyHash}
}

// SignIn checks key against the configured argon2id hash and opens a session.
func (s *AdminSessions) SignIn(ctx context.Context, name, key string) (string, error) {
	if s.keyHash == "" || key == "" {
		return "", ErrInvalidAdminKey
	}
	ok, err := utils.VerifySecret(key, s.keyHash)
	if err != nil {
		return "", fmt.Errorf("verify admin key: %w", err)
	}
	if !ok {
		return "", ErrInvalidAdminKey
	}
	if name == "" {
		name = "admin"
	}
	return s.Create(ctx, name)
}

// Create opens a new session for name, invalidating the previous one so the
// 7-day timer restarts.
func (s *AdminSessions) Create(ctx context.Context, name string) (string, error) {
	_ = s.InvalidateAll(ctx, name)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, AdminSessionKeyPrefix+token, name, AdminSessionDuration)
	pipe.Set(ctx, AdminToSessionKeyPrefix+name, token, AdminSessionDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// Validate returns the admin name for a live token.
func (s *AdminSessions) Validate(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	name, err := s.client.Get(ctx, AdminSessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Refresh extends the session by another 7 days from now.
func (s *AdminSessions) Refresh(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is empty")
	}
	name, err := s.client.Get(ctx, AdminSessionKeyPrefix+token).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, AdminSessionKeyPrefix+token, AdminSessionDuration)
	pipe.Expire(ctx, AdminToSessionKeyPrefix+name, AdminSessionDuration)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate ends one session.
func (s *AdminSessions) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sessionKey := AdminSessionKeyPrefix + token
	if name, err := s.client.Get(ctx, sessionKey).Result(); err == nil && name != "" {
		_ = s.client.Del(ctx, AdminToSessionKeyPrefix+name).Err()
	}
	return s.client.Del(ctx, sessionKey).Err()
}

// InvalidateAll ends the session held by name, if any.
func (s *AdminSessions) InvalidateAll(ctx context.Context, name string) error {
	mapKey := AdminToSessionKeyPrefix + name
	if token, err := s.client.Get(ctx, mapKey).Result(); err == nil && token != "" {
		_ = s.client.Del(ctx, AdminSessionKeyPrefix+token).Err()
	}
	return s.client.Del(ctx, mapKey).Err()
}
