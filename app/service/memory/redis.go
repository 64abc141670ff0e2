package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gastobot/app/config"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const opTimeout = 2 * time.Second

type RedisStore struct {
	client *redis.Client
	cap    int
	ttl    time.Duration
}

func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opts.DialTimeout = opTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout

	return &RedisStore{
		client: redis.NewClient(opts),
		cap:    cfg.Policy.WindowSize,
		ttl:    cfg.Policy.WindowTTL,
	}, nil
}

func (s *RedisStore) Append(ctx context.Context, userID string, turn Turn) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := windowKey(userID, turn.Timestamp)

	// ExpireNX arms the TTL only when the key has none yet, i.e. at window
	// creation. Appends never extend the window's lifetime.
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.cap), -1)
	pipe.ExpireNX(ctx, key, s.ttl)

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	return nil
}

func (s *RedisStore) Read(ctx context.Context, userID string) ([]Turn, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := windowKey(userID, time.Now())

	lines, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		slog.Warn("Memory read degraded", "user", userID, "error", err)
		return nil, true
	}

	turns := make([]Turn, 0, len(lines))
	for _, line := range lines {
		var turn Turn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			slog.Warn("Skipping unparsable turn", "user", userID, "error", err)
			continue
		}
		turns = append(turns, turn)
	}

	if len(turns) > s.cap {
		turns = turns[len(turns)-s.cap:]
	}

	return turns, false
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, windowKey(userID, time.Now())).Err(); err != nil {
		return fmt.Errorf("clear window: %w", err)
	}

	return nil
}

func (s *RedisStore) Shutdown() error {
	return s.client.Close()
}
