package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisCallTimeout = 500 * time.Millisecond

// slidingWindowScript checks every tier against a sorted set of request
// timestamps and records the request only when all tiers have room.
//
// KEYS[1] = zset key
// ARGV[1] = now_ms
// ARGV[2] = member for this request
// ARGV[3] = retention_ms (longest tier, also used as PEXPIRE)
// ARGV[4..] = span_ms, max pairs
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local retention = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - retention)

for i = 4, #ARGV, 2 do
  local span = tonumber(ARGV[i])
  local max = tonumber(ARGV[i + 1])
  local count = redis.call("ZCOUNT", key, "(" .. (now - span), "+inf")
  if count >= max then
    return 1
  end
end

redis.call("ZADD", key, now, ARGV[2])
redis.call("PEXPIRE", key, retention)
return 0
`)

// RedisLimiter applies the Limiter budgets against Redis so that every
// instance shares one view of each key. Redis errors allow the request.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	tiers  []tier
	logger *slog.Logger
	now    func() time.Time
	member func() string
}

var _ Checker = (*RedisLimiter)(nil)

// NewRedis returns a RedisLimiter storing keys under prefix. Only the budget
// fields of cfg are used; Redis key expiry replaces sweeping.
func NewRedis(client redis.Scripter, prefix string, cfg Config, logger *slog.Logger, opts ...Option) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := applyOptions(opts)
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		tiers:  cfg.tiers(),
		logger: logger.With("component", "ratelimit", "backend", "redis"),
		now:    s.now,
		member: uuid.NewString,
	}, nil
}

// NewRedisDaily is the Redis counterpart of NewDaily: one 24 hour tier of
// maxPerDay requests per key.
func NewRedisDaily(client redis.Scripter, prefix string, maxPerDay int, logger *slog.Logger, opts ...Option) (*RedisLimiter, error) {
	if maxPerDay <= 0 {
		return nil, fmt.Errorf("%w: max_per_day must be positive, got %d", ErrInvalidConfig, maxPerDay)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := applyOptions(opts)
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		tiers:  []tier{{span: dayWindow, max: maxPerDay}},
		logger: logger.With("component", "ratelimit", "backend", "redis"),
		now:    s.now,
		member: uuid.NewString,
	}, nil
}

// IsRateLimited reports whether key exceeds a budget. When Redis cannot be
// reached the request is allowed and the failure is logged.
func (r *RedisLimiter) IsRateLimited(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	limited, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.args()...).Int()
	if err != nil {
		r.logger.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return false
	}
	return limited == 1
}

func (r *RedisLimiter) args() []any {
	var retention time.Duration
	for _, t := range r.tiers {
		if t.span > retention {
			retention = t.span
		}
	}
	args := []any{r.now().UnixMilli(), r.member(), retention.Milliseconds()}
	for _, t := range r.tiers {
		args = append(args, t.span.Milliseconds(), t.max)
	}
	return args
}
