package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		WindowSeconds:  60,
		DefaultLimit:   6,
		DefaultBurst:   0,
		AnonymousLimit: 3,
		AnonymousBurst: 1,
		RedisPrefix:    "rl",
		EndpointOverrides: map[string]config.EndpointRateLimitConfig{
			"POST:/api/v1/rides": {AuthenticatedLimit: 2, AuthenticatedBurst: 1, WindowSeconds: 30},
		},
	}
}

func TestRuleFor(t *testing.T) {
	db, _ := redismock.NewClientMock()
	limiter := NewLimiter(db, testConfig())

	assert.Equal(t, Rule{Limit: 6, Burst: 0, Window: time.Minute}, limiter.RuleFor("GET:/api/v1/rides", true))
	assert.Equal(t, Rule{Limit: 3, Burst: 1, Window: time.Minute}, limiter.RuleFor("GET:/api/v1/rides", false))
	assert.Equal(t, Rule{Limit: 2, Burst: 1, Window: 30 * time.Second}, limiter.RuleFor("POST:/api/v1/rides", true))
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := testConfig()
	cfg.Enabled = false
	limiter := NewLimiter(db, cfg)

	decision, err := limiter.Allow(context.Background(), "GET:/api/v1/rides", Identity{Key: "u1", Authenticated: true})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_EvaluatesBucketScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, testConfig())
	now := time.UnixMilli(1_700_000_000_000)
	limiter.WithNow(func() time.Time { return now })

	key := "rl:GET:/api/v1/rides:u1"
	args := []interface{}{now.UnixMilli(), "0.0001000000", "6.0000", int64(120000)}

	mock.ExpectEvalSha(limiter.script.Hash(), []string{key}, args...).
		SetVal([]interface{}{int64(1), "5", int64(0)})
	mock.ExpectEvalSha(limiter.script.Hash(), []string{key}, args...).
		SetVal([]interface{}{int64(0), "0.4", int64(6000)})

	allowed, err := limiter.Allow(context.Background(), "GET:/api/v1/rides", Identity{Key: "u1", Authenticated: true})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 5, allowed.Remaining)
	assert.InDelta(t, float64(10*time.Second), float64(allowed.ResetAfter), float64(time.Millisecond))

	denied, err := limiter.Allow(context.Background(), "GET:/api/v1/rides", Identity{Key: "u1", Authenticated: true})
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.Equal(t, 6*time.Second, denied.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}
