// Package session provides Redis-backed storage for portal cookie sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reviewport/api/internal/auth"
)

// ErrNotFound is returned when no session exists for the presented id.
var ErrNotFound = errors.New("session not found or expired")

// Actor is the authenticated client user bound to a session. It is written
// once at login; nothing here is derived from client input afterwards.
type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// Data is the full per-session payload.
type Data struct {
	Actor     Actor     `json:"actor"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps sessions keyed by the SHA-256 of the opaque cookie id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + auth.HashToken(sessionID)
}

// Create stores a fresh session for actor and returns the new opaque session id
// and CSRF token. A new id is always minted here, so a pre-login id presented
// by the browser can never name an authenticated session.
func (s *RedisStore) Create(ctx context.Context, actor Actor) (sessionID, csrfToken string, err error) {
	sessionID, err = auth.NewToken()
	if err != nil {
		return "", "", err
	}
	csrfToken, err = auth.NewToken()
	if err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(Data{
		Actor:     actor,
		CSRFToken: csrfToken,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sessionID), payload, s.ttl).Err(); err != nil {
		return "", "", fmt.Errorf("save session: %w", err)
	}
	return sessionID, csrfToken, nil
}

// Get returns the session payload for an id, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (Data, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("lookup session: %w", err)
	}

	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Data{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if data.Actor.ID == "" || data.CSRFToken == "" {
		return Data{}, ErrNotFound
	}
	return data, nil
}

// Touch extends the session TTL. Missing sessions are not an error.
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	return s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()
}

// Destroy removes the session. Destroying an absent session is a no-op.
func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
