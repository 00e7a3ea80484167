// internal/app/router.go
package app

import (
	"net/http"

	campaignHandler "qrloop-service/internal/handlers/qrcampaign"
	toolHandler "qrloop-service/internal/handlers/tool"
	wsHandler "qrloop-service/internal/handlers/websocket"
	"qrloop-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	ToolHandler     *toolHandler.ToolHandler
	CampaignHandler *campaignHandler.CampaignHandler
	WSHandler       *wsHandler.WebSocketHandler
	AuthMiddleware  *middleware.AuthMiddleware
	WebhookAuth     gin.HandlerFunc
	WebhookThrottle gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health & Metrics ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Webhooks (X-Tool-Key) ====================
	webhooks := api.Group("/webhooks/tools/:id")
	webhooks.Use(h.WebhookThrottle, h.WebhookAuth)
	{
		webhooks.POST("/qr/validate", h.CampaignHandler.WebhookValidate)
		webhooks.POST("/qr/current", h.CampaignHandler.WebhookCurrentCode)
	}

	// ==================== Tools ====================
	tools := api.Group("/tools")
	tools.Use(h.AuthMiddleware.Auth())
	{
		tools.POST("", h.ToolHandler.CreateTool)
		tools.GET("", h.ToolHandler.ListTools)
		tools.GET("/:id", h.ToolHandler.GetTool)
		tools.PUT("/:id/qr-config", h.ToolHandler.UpdateQRConfig)
		tools.PATCH("/:id/status", h.ToolHandler.UpdateStatus)
		tools.POST("/:id/webhook-key/rotate", h.ToolHandler.RotateWebhookKey)

		// Campaign engine
		tools.POST("/:id/qr/scan", h.CampaignHandler.Scan)
		tools.POST("/:id/qr/users/:user_id/issue", h.CampaignHandler.IssueCode)
		tools.POST("/:id/qr/starter-codes", h.CampaignHandler.IssueStarterCodes)
		tools.GET("/:id/qr/users/:user_id/progress", h.CampaignHandler.GetProgress)
		tools.GET("/:id/qr/codes", h.CampaignHandler.ListCodes)
		tools.GET("/:id/qr/rewards", h.CampaignHandler.ListRewards)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
