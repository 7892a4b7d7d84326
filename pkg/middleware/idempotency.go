package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	redisClient "github.com/richxcame/ride-dispatch/pkg/redis"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the HTTP header for idempotency keys
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayedHeader marks a response served from the cache
	IdempotencyReplayedHeader = "Idempotent-Replayed"

	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
	idempotencyPrefix  = "idempotency:"
	maxIdempotencyKey  = 255
)

// idempotencyEntry stores the cached response for a given idempotency key
type idempotencyEntry struct {
	StatusCode  int             `json:"status_code"`
	Body        json.RawMessage `json:"body"`
	RequestHash string          `json:"request_hash"`
}

// idempotencyResponseWriter captures the response for caching
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key from the same user. A key reused with a different body is
// rejected, and a key whose first request is still running yields 409.
// Must run after AuthMiddleware.
func Idempotency(redis redisClient.ClientInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			common.AppErrorResponse(c, common.NewValidationError("invalid Idempotency-Key",
				[]common.FieldError{{Field: IdempotencyKeyHeader, Message: "must be at most 255 characters"}}))
			c.Abort()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		requestHash := hashRequest(c.Request.Method, c.FullPath(), bodyBytes)

		userID := "anonymous"
		if actor, err := GetActor(c); err == nil {
			userID = actor.ID.String()
		}
		redisKey := fmt.Sprintf("%s%s:%s", idempotencyPrefix, userID, key)
		lockKey := redisKey + ":lock"
		ctx := c.Request.Context()

		if replayed := replayCached(c, redis, redisKey, requestHash); replayed {
			c.Abort()
			return
		}

		acquired, err := redis.SetNX(ctx, lockKey, requestHash, idempotencyLockTTL)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lock unavailable, proceeding without it",
				zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			common.AppErrorResponse(c, common.NewConflictError("a request with this Idempotency-Key is already in progress"))
			c.Abort()
			return
		}
		defer func() {
			if err := redis.Delete(ctx, lockKey); err != nil {
				logger.WarnContext(ctx, "failed to release idempotency lock", zap.String("key", key), zap.Error(err))
			}
		}()

		writer := &idempotencyResponseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		data, err := json.Marshal(idempotencyEntry{
			StatusCode:  status,
			Body:        writer.body.Bytes(),
			RequestHash: requestHash,
		})
		if err != nil {
			return
		}
		if err := redis.SetWithExpiration(ctx, redisKey, data, idempotencyTTL); err != nil {
			logger.WarnContext(ctx, "failed to cache idempotency response",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// replayCached writes the stored response for redisKey, if any, and reports
// whether the request has been answered.
func replayCached(c *gin.Context, redis redisClient.ClientInterface, redisKey, requestHash string) bool {
	cached, err := redis.GetString(c.Request.Context(), redisKey)
	if err != nil {
		if !errors.Is(err, redisClient.ErrNotFound) {
			logger.WarnContext(c.Request.Context(), "idempotency lookup failed", zap.Error(err))
		}
		return false
	}

	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		return false
	}
	if entry.RequestHash != requestHash {
		common.ErrorResponse(c, http.StatusUnprocessableEntity,
			"Idempotency-Key has already been used with a different request")
		return true
	}

	c.Header(IdempotencyReplayedHeader, "true")
	c.Data(entry.StatusCode, "application/json; charset=utf-8", entry.Body)
	return true
}

// hashRequest creates a SHA-256 hash of the request method, path, and body
func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
