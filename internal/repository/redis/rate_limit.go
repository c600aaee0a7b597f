package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// slidingWindowHit trims, counts and conditionally records in one round trip.
// Scores are unix microseconds so they stay exact as float64. Large numbers
// are passed as strings because Lua would format them in exponent notation.
var slidingWindowHit = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = ''
if oldest[2] ~= nil then
  oldestScore = oldest[2]
end
redis.call('PEXPIRE', key, ARGV[5])
return {count, allowed, oldestScore}
`)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
}

// RateLimitRepository persists rate-limit attempts in Redis sorted sets.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Hit records an attempt for key when fewer than limit attempts fall inside
// the window ending at now. The script runs atomically on the server, so
// concurrent instances share one budget per key.
func (r *RateLimitRepository) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (domain.RateLimitWindow, error) {
	if window <= 0 {
		return domain.RateLimitWindow{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return domain.RateLimitWindow{}, errors.New("limit must be positive")
	}

	nowMicros := now.UnixMicro()
	member := strconv.FormatInt(nowMicros, 10) + ":" + uuid.NewString()

	res, err := slidingWindowHit.Run(ctx, r.client,
		[]string{r.key(key)},
		strconv.FormatInt(nowMicros, 10),
		strconv.FormatInt(nowMicros-window.Microseconds(), 10),
		limit,
		member,
		window.Milliseconds()+1,
	).Slice()
	if err != nil {
		return domain.RateLimitWindow{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return domain.RateLimitWindow{}, fmt.Errorf("redis sliding window: unexpected reply length %d", len(res))
	}

	count, _ := res[0].(int64)
	allowed, _ := res[1].(int64)

	result := domain.RateLimitWindow{
		Key:         key,
		Count:       int(count),
		Limit:       limit,
		WindowStart: now.Add(-window),
		ResetAt:     now.Add(window),
		Allowed:     allowed == 1,
	}

	if raw, ok := res[2].(string); ok && raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.RateLimitWindow{}, fmt.Errorf("parse oldest attempt: %w", err)
		}
		result.ResetAt = time.UnixMicro(int64(score)).Add(window).UTC()
	}

	return result, nil
}

// Reset forgets every attempt recorded for key.
func (r *RateLimitRepository) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del rate limit: %w", err)
	}
	return nil
}

func (r *RateLimitRepository) key(identifier string) string {
	prefix := strings.TrimSpace(r.cfg.KeyPrefix)
	if prefix == "" {
		return "ratelimit:" + identifier
	}
	return fmt.Sprintf("%s:ratelimit:%s", prefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
