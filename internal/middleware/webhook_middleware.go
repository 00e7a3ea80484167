// internal/middleware/webhook_middleware.go
package middleware

import (
	"net/http"
	"strconv"

	"qrloop-service/internal/domain/tool"
	xerrors "qrloop-service/internal/pkg/errors"
	"qrloop-service/internal/pkg/response"
	toolsvc "qrloop-service/internal/service/tool"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	toolKeyHeader  = "X-Tool-Key"
	webhookToolKey = "webhook_tool"
)

// WebhookAuth checks the X-Tool-Key header against the tool named in the path.
func WebhookAuth(tools *toolsvc.ToolService) gin.HandlerFunc {
	return func(c *gin.Context) {
		toolID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			response.ValidationError(c, "invalid tool ID", err)
			return
		}

		key := c.GetHeader(toolKeyHeader)
		if key == "" {
			response.Unauthorized(c, "missing tool key")
			return
		}

		t, err := tools.AuthenticateWebhook(c.Request.Context(), toolID, key)
		switch {
		case err == nil:
		case xerrors.Is(err, xerrors.ErrUnauthorized):
			response.Unauthorized(c, "invalid tool key")
			return
		case xerrors.Is(err, xerrors.ErrForbidden):
			response.Forbidden(c, "tool is inactive")
			return
		default:
			response.Internal(c, "failed to authenticate tool")
			return
		}

		c.Set(webhookToolKey, t)
		c.Next()
	}
}

// WebhookTool returns the tool authenticated by WebhookAuth.
func WebhookTool(c *gin.Context) (*tool.Tool, bool) {
	v, ok := c.Get(webhookToolKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(*tool.Tool)
	return t, ok
}

// Throttle is a process-wide token bucket in front of the webhook routes.
func Throttle(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			response.Error(c, http.StatusTooManyRequests, "too many requests", xerrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
