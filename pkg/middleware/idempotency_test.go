package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/models"
	redisClient "github.com/richxcame/ride-dispatch/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedis struct {
	mock.Mock
}

func (m *MockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockRedis) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockRedis) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockRedis) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

const idemBody = `{"fare":268}`

func idempotencyRouter(redis redisClient.ClientInterface, actor models.Actor, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/rides", func(c *gin.Context) {
		SetActor(c, actor)
		c.Next()
	}, Idempotency(redis), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusCreated, gin.H{"id": "ride-1"})
	})
	return router
}

func postRide(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rides", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_FirstRequestIsCached(t *testing.T) {
	redis := new(MockRedis)
	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	redisKey := idempotencyPrefix + actor.ID.String() + ":k1"
	calls := 0

	redis.On("GetString", mock.Anything, redisKey).Return("", redisClient.ErrNotFound)
	redis.On("SetNX", mock.Anything, redisKey+":lock", mock.Anything, idempotencyLockTTL).Return(true, nil)
	redis.On("SetWithExpiration", mock.Anything, redisKey, mock.MatchedBy(func(v interface{}) bool {
		var entry idempotencyEntry
		return json.Unmarshal(v.([]byte), &entry) == nil && entry.StatusCode == http.StatusCreated
	}), idempotencyTTL).Return(nil)
	redis.On("Delete", mock.Anything, []string{redisKey + ":lock"}).Return(nil)

	w := postRide(idempotencyRouter(redis, actor, &calls), "k1", idemBody)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get(IdempotencyReplayedHeader))
	redis.AssertExpectations(t)
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	redis := new(MockRedis)
	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	redisKey := idempotencyPrefix + actor.ID.String() + ":k1"
	calls := 0

	cached, err := json.Marshal(idempotencyEntry{
		StatusCode:  http.StatusCreated,
		Body:        json.RawMessage(`{"id":"ride-1"}`),
		RequestHash: hashRequest(http.MethodPost, "/rides", []byte(idemBody)),
	})
	require.NoError(t, err)
	redis.On("GetString", mock.Anything, redisKey).Return(string(cached), nil)

	w := postRide(idempotencyRouter(redis, actor, &calls), "k1", idemBody)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "true", w.Header().Get(IdempotencyReplayedHeader))
	assert.JSONEq(t, `{"id":"ride-1"}`, w.Body.String())
	redis.AssertNotCalled(t, "SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	redis := new(MockRedis)
	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	redisKey := idempotencyPrefix + actor.ID.String() + ":k1"
	calls := 0

	cached, _ := json.Marshal(idempotencyEntry{
		StatusCode:  http.StatusCreated,
		Body:        json.RawMessage(`{}`),
		RequestHash: hashRequest(http.MethodPost, "/rides", []byte(`{"fare":1}`)),
	})
	redis.On("GetString", mock.Anything, redisKey).Return(string(cached), nil)

	w := postRide(idempotencyRouter(redis, actor, &calls), "k1", idemBody)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotency_InFlightRequestConflicts(t *testing.T) {
	redis := new(MockRedis)
	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	redisKey := idempotencyPrefix + actor.ID.String() + ":k1"
	calls := 0

	redis.On("GetString", mock.Anything, redisKey).Return("", redisClient.ErrNotFound)
	redis.On("SetNX", mock.Anything, redisKey+":lock", mock.Anything, idempotencyLockTTL).Return(false, nil)

	w := postRide(idempotencyRouter(redis, actor, &calls), "k1", idemBody)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
	redis.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestIdempotency_RedisDownProceeds(t *testing.T) {
	redis := new(MockRedis)
	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	redisKey := idempotencyPrefix + actor.ID.String() + ":k1"
	calls := 0

	redis.On("GetString", mock.Anything, redisKey).Return("", errors.New("connection refused"))
	redis.On("SetNX", mock.Anything, redisKey+":lock", mock.Anything, idempotencyLockTTL).Return(false, errors.New("connection refused"))

	w := postRide(idempotencyRouter(redis, actor, &calls), "k1", idemBody)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeySkips(t *testing.T) {
	redis := new(MockRedis)
	calls := 0

	w := postRide(idempotencyRouter(redis, models.Actor{ID: uuid.New(), Role: models.RolePassenger}, &calls), "", idemBody)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
	redis.AssertExpectations(t)
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	redis := new(MockRedis)
	calls := 0

	w := postRide(idempotencyRouter(redis, models.Actor{ID: uuid.New(), Role: models.RolePassenger}, &calls),
		strings.Repeat("k", maxIdempotencyKey+1), idemBody)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, calls)
}
