package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString_MissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{Client: db}

	mock.ExpectGet("idempotency:missing").RedisNil()

	_, err := client.GetString(context.Background(), "idempotency:missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetString_RetriesTransientErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{Client: db}

	mock.ExpectGet("k").SetErr(errors.New("connection reset by peer"))
	mock.ExpectGet("k").SetVal("v")

	value, err := client.GetString(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetNX(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{Client: db}

	mock.ExpectSetNX("lock", "1", time.Minute).SetVal(true)
	mock.ExpectSetNX("lock", "1", time.Minute).SetVal(false)

	ok, err := client.SetNX(context.Background(), "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(context.Background(), "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRedisRetryable(t *testing.T) {
	assert.False(t, isRedisRetryable(nil))
	assert.False(t, isRedisRetryable(context.Canceled))
	assert.True(t, isRedisRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, isRedisRetryable(errors.New("LOADING Redis is loading the dataset in memory")))
	assert.False(t, isRedisRetryable(errors.New("WRONGTYPE Operation against a key")))
}
