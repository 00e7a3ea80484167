// internal/handlers/qrcampaign/handler.go
package qrcampaign

import (
	"net/http"
	"strconv"

	domain "qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/metrics"
	"qrloop-service/internal/middleware"
	"qrloop-service/internal/pkg/ratelimit"
	"qrloop-service/internal/pkg/response"
	service "qrloop-service/internal/service/qrcampaign"
	toolsvc "qrloop-service/internal/service/tool"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *service.CampaignService
	toolService     *toolsvc.ToolService
	limiter         ratelimit.ScanLimiter
	logger          *zap.Logger
}

func NewCampaignHandler(
	campaignService *service.CampaignService,
	toolService *toolsvc.ToolService,
	limiter ratelimit.ScanLimiter,
	logger *zap.Logger,
) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		toolService:     toolService,
		limiter:         limiter,
		logger:          logger,
	}
}

// ========== Webhook Endpoints (X-Tool-Key) ==========

// WebhookValidate validates a code submitted by the chat automation
func (h *CampaignHandler) WebhookValidate(c *gin.Context) {
	t, ok := middleware.WebhookTool(c)
	if !ok {
		response.Unauthorized(c, "tool not authenticated")
		return
	}
	h.validate(c, t.ID)
}

// WebhookCurrentCode returns the user's live code, issuing one if needed
func (h *CampaignHandler) WebhookCurrentCode(c *gin.Context) {
	t, ok := middleware.WebhookTool(c)
	if !ok {
		response.Unauthorized(c, "tool not authenticated")
		return
	}

	var req domain.CurrentCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.campaignService.IssueNext(c.Request.Context(), t.ID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "current code retrieved", result)
}

// ========== Dashboard Endpoints (JWT) ==========

// Scan validates a code from the in-app scanner
func (h *CampaignHandler) Scan(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}
	h.validate(c, toolID)
}

// IssueCode returns the user's active code or mints the next one
func (h *CampaignHandler) IssueCode(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}

	result, err := h.campaignService.IssueNext(c.Request.Context(), toolID, c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "code issued", result)
}

// IssueStarterCodes mints unbound codes for printed material
func (h *CampaignHandler) IssueStarterCodes(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}

	var req domain.StarterCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.campaignService.IssueStarterCodes(c.Request.Context(), toolID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "starter codes issued", result)
}

// GetProgress returns a user's streak and reward counters
func (h *CampaignHandler) GetProgress(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}

	progress, err := h.campaignService.GetProgress(c.Request.Context(), toolID, c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "progress retrieved", progress)
}

// ListCodes lists a tool's codes with filters
func (h *CampaignHandler) ListCodes(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}

	var filters domain.CodeListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.campaignService.ListCodes(c.Request.Context(), toolID, &filters)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "codes retrieved", result)
}

// ListRewards lists the reward audit trail of a tool
func (h *CampaignHandler) ListRewards(c *gin.Context) {
	toolID, ok := h.authorizedTool(c)
	if !ok {
		return
	}

	var filters domain.RewardListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.campaignService.ListRewards(c.Request.Context(), toolID, &filters)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "rewards retrieved", result)
}

// ========== Helpers ==========

func (h *CampaignHandler) validate(c *gin.Context, toolID int64) {
	var req domain.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	allowed, err := h.limiter.AllowScan(c.Request.Context(), toolID, req.UserID)
	if err != nil {
		// Fail open when the limiter is down.
		h.logger.Warn("scan rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		metrics.ScanRateLimited.Inc()
		response.TooManyRequests(c, "too many scan attempts, slow down")
		return
	}

	result, err := h.campaignService.ValidateAndAdvance(c.Request.Context(), domain.ValidateInput{
		ToolID: toolID,
		Code:   req.Code,
		UserID: req.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	writeResult(c, result)
}

func (h *CampaignHandler) authorizedTool(c *gin.Context) (int64, bool) {
	toolID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid tool ID", err)
		return 0, false
	}

	if err := h.toolService.Authorize(c.Request.Context(), middleware.Actor(c), toolID); err != nil {
		writeError(c, err)
		return 0, false
	}

	return toolID, true
}
