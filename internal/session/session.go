// Package session persists pending consent sessions between request cycles.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

// Store keeps pending sessions with a TTL.
type Store interface {
	// Load returns nil, nil when the session is absent or expired
	Load(ctx context.Context, id string) (*domain.PendingSession, error)
	Save(ctx context.Context, s *domain.PendingSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// Take removes the session and reports whether it was still there, so only
	// one caller can act on a finishing session
	Take(ctx context.Context, id string) (bool, error)
	Close() error
}

// Config selects the driver.
type Config struct {
	Driver   string // "redis" | "memory"
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New builds a Store for cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported session driver: %s", cfg.Driver)
	}
}

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the redis server.
func NewRedis(ctx context.Context, cfg Config) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "user_agreement:session"
	}
	return &redisStore{client: rdb, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *redisStore) Load(ctx context.Context, id string) (*domain.PendingSession, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var ps domain.PendingSession
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &ps, nil
}

func (s *redisStore) Save(ctx context.Context, ps *domain.PendingSession, ttl time.Duration) error {
	raw, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(ps.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *redisStore) Take(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take session: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// memoryStore keeps JSON copies so callers never share state with the store.
type memoryStore struct {
	c  *gocache.Cache
	mu sync.Mutex // serializes Take
}

func NewMemory() Store {
	return &memoryStore{c: gocache.New(30*time.Minute, 5*time.Minute)}
}

func (s *memoryStore) Load(ctx context.Context, id string) (*domain.PendingSession, error) {
	v, ok := s.c.Get(id)
	if !ok {
		return nil, nil
	}
	var ps domain.PendingSession
	if err := json.Unmarshal(v.([]byte), &ps); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &ps, nil
}

func (s *memoryStore) Save(ctx context.Context, ps *domain.PendingSession, ttl time.Duration) error {
	raw, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(ps.ID, raw, ttl)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.c.Delete(id)
	return nil
}

func (s *memoryStore) Take(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.c.Get(id); !ok {
		return false, nil
	}
	s.c.Delete(id)
	return true, nil
}

func (s *memoryStore) Close() error {
	s.c.Flush()
	return nil
}
