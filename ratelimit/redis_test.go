package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T, cfg Config) (*RedisLimiter, redismock.ClientMock, time.Time) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	now := time.UnixMilli(1_700_000_000_000)
	rl, err := NewRedis(db, "rl:contact:", cfg, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	rl.member = func() string { return "req-1" }
	return rl, mock, now
}

func TestRedisLimiter_Allows(t *testing.T) {
	rl, mock, now := newTestRedisLimiter(t, Config{MaxPerMinute: 5, MaxPerHour: 20})

	mock.ExpectEvalSha(slidingWindowScript.Hash(), []string{"rl:contact:10.0.0.1"},
		now.UnixMilli(), "req-1", int64(3600000), int64(60000), 5, int64(3600000), 20).
		SetVal(int64(0))

	assert.False(t, rl.IsRateLimited("10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_Rejects(t *testing.T) {
	rl, mock, now := newTestRedisLimiter(t, Config{MaxPerMinute: 2})

	mock.ExpectEvalSha(slidingWindowScript.Hash(), []string{"rl:contact:10.0.0.1"},
		now.UnixMilli(), "req-1", int64(60000), int64(60000), 2).
		SetVal(int64(1))

	assert.True(t, rl.IsRateLimited("10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	rl, mock, now := newTestRedisLimiter(t, Config{MaxPerMinute: 2})

	mock.ExpectEvalSha(slidingWindowScript.Hash(), []string{"rl:contact:10.0.0.1"},
		now.UnixMilli(), "req-1", int64(60000), int64(60000), 2).
		SetErr(errors.New("connection refused"))

	assert.False(t, rl.IsRateLimited("10.0.0.1"), "redis errors should allow the request")
}

func TestNewRedis_ValidatesConfig(t *testing.T) {
	db, _ := redismock.NewClientMock()
	_, err := NewRedis(db, "rl:", Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRedisDailyLimiter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.UnixMilli(1_700_000_000_000)
	rl, err := NewRedisDaily(db, "rl:chat_sessions:", 3, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	rl.member = func() string { return "req-1" }

	mock.ExpectEvalSha(slidingWindowScript.Hash(), []string{"rl:chat_sessions:10.0.0.1"},
		now.UnixMilli(), "req-1", int64(86400000), int64(86400000), 3).
		SetVal(int64(0))
	mock.ExpectEvalSha(slidingWindowScript.Hash(), []string{"rl:chat_sessions:10.0.0.1"},
		now.UnixMilli(), "req-1", int64(86400000), int64(86400000), 3).
		SetVal(int64(1))

	assert.False(t, rl.IsRateLimited("10.0.0.1"))
	assert.True(t, rl.IsRateLimited("10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisDaily_ValidatesMax(t *testing.T) {
	db, _ := redismock.NewClientMock()
	_, err := NewRedisDaily(db, "rl:", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
