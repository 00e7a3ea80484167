// internal/middleware/recovery_middleware.go
package middleware

import (
	"errors"
	"net/http"

	"qrloop-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope and logs it with
// the request id and stack. http.ErrAbortHandler is re-raised so net/http can
// drop the connection as intended.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Bool("response_started", c.Writer.Written()),
				zap.Stack("stack"),
			)

			if c.Writer.Written() {
				// Headers are gone; all that is left is to stop the chain.
				c.Abort()
				return
			}
			response.Internal(c, "internal server error")
		}()
		c.Next()
	}
}
