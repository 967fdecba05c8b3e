// Package session provides Redis-backed storage for login sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/api/internal/password"
	"inkwell/api/internal/store"
)

var ErrNotFound = errors.New("session not found")

// View is the denormalized snapshot handed to clients on login and on every
// session fetch. It mirrors the profile document at the time it was built.
type View struct {
	UserID          string           `json:"userId"`
	Avatar          string           `json:"avatar"`
	Name            string           `json:"name"`
	Username        string           `json:"username"`
	PasswordHistory []password.Entry `json:"passwordHistory"`
	Email           string           `json:"email"`
	Profile         store.Profile    `json:"profile"`
	IsRegistered    bool             `json:"isRegistered"`
	IsLoggedIn      bool             `json:"isLoggedIn"`
	AuthToken       string           `json:"authToken"`
}

// RedisStore keeps one JSON View per session ID with a TTL.
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

	return &RedisStore{client: client, prefix: "session:", ttl: ttl}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "session:", ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) markerKey(sessionID string) string {
	return s.prefix + "pwupdated:" + sessionID
}

// Create stores a new session under sessionID with the configured TTL.
func (s *RedisStore) Create(ctx context.Context, sessionID string, view View) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal session view: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the stored view, or ErrNotFound when the session does not
// exist or has expired. Session existence is the login state.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (View, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return View{}, ErrNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("lookup session: %w", err)
	}

	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return View{}, fmt.Errorf("unmarshal session view: %w", err)
	}
	return view, nil
}

// Update replaces the stored view without touching the remaining TTL.
func (s *RedisStore) Update(ctx context.Context, sessionID string, view View) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal session view: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key(sessionID), raw, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session and any pending password-updated marker.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID), s.markerKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MarkPasswordUpdated flags the session so the next view fetch reports the
// password change exactly once.
func (s *RedisStore) MarkPasswordUpdated(ctx context.Context, sessionID string) error {
	if err := s.client.Set(ctx, s.markerKey(sessionID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark password updated: %w", err)
	}
	return nil
}

// ConsumePasswordUpdated reads and clears the marker in one step.
func (s *RedisStore) ConsumePasswordUpdated(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.client.GetDel(ctx, s.markerKey(sessionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume password updated: %w", err)
	}
	return true, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
