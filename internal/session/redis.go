package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConnectTimeout bounds the initial connectivity check.
const RedisConnectTimeout = 3 * time.Second

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	URL    string // redis://[:password@]host:port/db
	TTL    time.Duration
	Logger *zap.Logger
}

// RedisStore keeps sessions in Redis as JSON under "session:<id>" with a TTL.
// Every write is mirrored in memory; when Redis is unreachable at startup the
// store serves from the mirror only, and when a single operation fails it
// falls back to the mirror for that operation.
type RedisStore struct {
	client   *redis.Client
	mirror   *MemoryStore
	ttl      time.Duration
	logger   *zap.Logger
	degraded atomic.Bool
}

// NewRedisStore connects to Redis. An invalid URL is an error; an unreachable
// server is not: the store starts degraded and logs a warning.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = RedisConnectTimeout

	s := &RedisStore{
		client: redis.NewClient(opts),
		mirror: NewMemoryStore(cfg.TTL),
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}

	pingCtx, cancel := context.WithTimeout(ctx, RedisConnectTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		s.degraded.Store(true)
		s.logger.Warn("redis unavailable, using in-memory session store",
			zap.String("addr", opts.Addr), zap.Error(err))
		return s, nil
	}
	s.logger.Info("redis session store connected", zap.String("addr", opts.Addr))
	return s, nil
}

// Degraded reports whether the store is serving from memory only.
func (s *RedisStore) Degraded() bool {
	return s.degraded.Load()
}

// Get loads a session, or nil when absent or expired.
func (s *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	if s.Degraded() {
		return s.mirror.Get(ctx, id)
	}
	raw, err := s.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("redis get failed, reading mirror", zap.String("session", id), zap.Error(err))
		return s.mirror.Get(ctx, id)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &st, nil
}

// Set stores a session in the mirror and, unless degraded, in Redis.
func (s *RedisStore) Set(ctx context.Context, state *State) error {
	if err := s.mirror.Set(ctx, state); err != nil {
		return err
	}
	if s.Degraded() {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", state.ID, err)
	}
	if err := s.client.Set(ctx, Key(state.ID), data, s.ttl).Err(); err != nil {
		// The mirror already holds the write.
		s.logger.Warn("redis set failed, kept in mirror", zap.String("session", state.ID), zap.Error(err))
	}
	return nil
}

// List scans all session keys.
func (s *RedisStore) List(ctx context.Context) ([]*State, error) {
	if s.Degraded() {
		return s.mirror.List(ctx)
	}
	var (
		out    []*State
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, Key("*"), 200).Result()
		if err != nil {
			s.logger.Warn("redis scan failed, listing mirror", zap.Error(err))
			return s.mirror.List(ctx)
		}
		for _, key := range keys {
			raw, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", key, err)
			}
			var st State
			if err := json.Unmarshal(raw, &st); err != nil {
				s.logger.Warn("skipping undecodable session", zap.String("key", key), zap.Error(err))
				continue
			}
			out = append(out, &st)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
