package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// RequestTimeout bounds how long a handler may run. Requests that exceed
// d get a 504 with the standard error envelope.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return timeout.New(
		timeout.WithTimeout(d),
		timeout.WithResponse(func(c *gin.Context) {
			logger.WarnContext(c.Request.Context(), "request timeout",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Duration("timeout", d),
			)
			c.Header("X-Timeout", "true")
			common.ErrorResponse(c, http.StatusGatewayTimeout, "request timeout")
		}),
	)
}
