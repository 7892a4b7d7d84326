package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func ping(router *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	return w
}

// ignoreScriptHash compares EVALSHA arguments except the script digest.
func ignoreScriptHash(expected, actual []interface{}) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("expected %d args, got %d", len(expected), len(actual))
	}
	for i := range expected {
		if i == 1 {
			continue
		}
		if fmt.Sprint(expected[i]) != fmt.Sprint(actual[i]) {
			return fmt.Errorf("arg %d: expected %v, got %v", i, expected[i], actual[i])
		}
	}
	return nil
}

func TestRateLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := ratelimit.NewLimiter(db, config.RateLimitConfig{
		Enabled:        true,
		WindowSeconds:  60,
		AnonymousLimit: 3,
		AnonymousBurst: 1,
		RedisPrefix:    "rl",
	})
	now := time.UnixMilli(1_700_000_000_000)
	limiter.WithNow(func() time.Time { return now })

	key := "rl:GET:/ping:192.0.2.1"
	args := []interface{}{now.UnixMilli(), "0.0000500000", "4.0000", int64(120000)}

	mock.CustomMatch(ignoreScriptHash).ExpectEvalSha("", []string{key}, args...).SetVal([]interface{}{int64(1), "3", int64(0)})
	mock.CustomMatch(ignoreScriptHash).ExpectEvalSha("", []string{key}, args...).SetVal([]interface{}{int64(0), "0.5", int64(10000)})
	mock.CustomMatch(ignoreScriptHash).ExpectEvalSha("", []string{key}, args...).SetErr(errors.New("redis unavailable"))

	router := rateLimitedRouter(limiter)

	allowed := ping(router)
	assert.Equal(t, http.StatusOK, allowed.Code)
	assert.Equal(t, "3", allowed.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", allowed.Header().Get("X-RateLimit-Remaining"))

	denied := ping(router)
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "10", denied.Header().Get("Retry-After"))
	assert.Equal(t, "0", denied.Header().Get("X-RateLimit-Remaining"))

	failOpen := ping(router)
	assert.Equal(t, http.StatusOK, failOpen.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	assert.Equal(t, http.StatusOK, ping(rateLimitedRouter(nil)).Code)
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 0, ceilSeconds(0))
	assert.Equal(t, 1, ceilSeconds(10*time.Millisecond))
	assert.Equal(t, 2, ceilSeconds(1500*time.Millisecond))
	assert.Equal(t, 6, ceilSeconds(6*time.Second))
}
