package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"go.uber.org/zap"
)

const maxLoggedPayload = 512

type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}

func (r *responseRecorder) WriteString(data string) (int, error) {
	r.body.WriteString(data)
	return r.ResponseWriter.WriteString(data)
}

// RequestLogger logs HTTP requests. Bodies are logged at debug level only.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		debug := logger.Get().Core().Enabled(zap.DebugLevel)

		var requestBody string
		if debug {
			requestBody = captureRequestBody(c)
		}
		recorder := &responseRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder

		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("service", serviceName),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("response_size", recorder.body.Len()),
		}

		if actor, err := GetActor(c); err == nil {
			fields = append(fields,
				zap.String("user_id", actor.ID.String()),
				zap.String("user_role", string(actor.Role)),
			)
		}

		if debug {
			if requestBody != "" {
				fields = append(fields, zap.String("request_body", requestBody))
			}
			if responseBody := compactPayload(recorder.body.Bytes()); responseBody != "" {
				fields = append(fields, zap.String("response_body", responseBody))
			}
		}

		reqLogger := logger.WithContext(c.Request.Context())

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			reqLogger.Error("Request completed with errors", fields...)
		} else {
			reqLogger.Info("Request completed", fields...)
		}
	}
}

func captureRequestBody(c *gin.Context) string {
	if c.Request == nil || c.Request.Body == nil {
		return ""
	}

	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}

	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return compactPayload(bodyBytes)
}

// compactPayload drops control characters, collapses whitespace and
// truncates the payload for logging.
func compactPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, string(payload))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if len(cleaned) > maxLoggedPayload {
		cleaned = cleaned[:maxLoggedPayload] + "...(truncated)"
	}

	return cleaned
}
