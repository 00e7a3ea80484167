// internal/handlers/tool/tool_handler.go
package tool

import (
	"errors"
	"net/http"
	"strconv"

	"qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	"qrloop-service/internal/middleware"
	xerrors "qrloop-service/internal/pkg/errors"
	"qrloop-service/internal/pkg/response"
	service "qrloop-service/internal/service/tool"

	"github.com/gin-gonic/gin"
)

type ToolHandler struct {
	toolService *service.ToolService
}

func NewToolHandler(toolService *service.ToolService) *ToolHandler {
	return &ToolHandler{
		toolService: toolService,
	}
}

type updateStatusRequest struct {
	Status tool.ToolStatus `json:"status" binding:"required,oneof=active inactive"`
}

// CreateTool creates a QR campaign tool owned by the caller
func (h *ToolHandler) CreateTool(c *gin.Context) {
	var req tool.CreateToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.toolService.CreateTool(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		writeError(c, "failed to create tool", err)
		return
	}

	response.Success(c, http.StatusCreated, "tool created successfully", result)
}

// ListTools lists the caller's tools (all tools for admins)
func (h *ToolHandler) ListTools(c *gin.Context) {
	var filters tool.ToolListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.toolService.ListTools(c.Request.Context(), middleware.Actor(c), &filters)
	if err != nil {
		writeError(c, "failed to list tools", err)
		return
	}

	response.Success(c, http.StatusOK, "tools retrieved", result)
}

func (h *ToolHandler) GetTool(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}

	result, err := h.toolService.GetTool(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		writeError(c, "failed to get tool", err)
		return
	}

	response.Success(c, http.StatusOK, "tool retrieved", result)
}

// UpdateQRConfig replaces the campaign config after validating it
func (h *ToolHandler) UpdateQRConfig(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}

	var req tool.UpdateQRConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.toolService.UpdateQRConfig(c.Request.Context(), middleware.Actor(c), id, &req)
	if err != nil {
		writeError(c, "failed to update qr config", err)
		return
	}

	response.Success(c, http.StatusOK, "qr config updated", result)
}

func (h *ToolHandler) UpdateStatus(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.toolService.UpdateStatus(c.Request.Context(), middleware.Actor(c), id, req.Status)
	if err != nil {
		writeError(c, "failed to update status", err)
		return
	}

	response.Success(c, http.StatusOK, "tool status updated", result)
}

// RotateWebhookKey issues a new webhook key; the old one stops working immediately
func (h *ToolHandler) RotateWebhookKey(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}

	key, err := h.toolService.RotateWebhookKey(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		writeError(c, "failed to rotate webhook key", err)
		return
	}

	response.Success(c, http.StatusOK, "webhook key rotated", gin.H{"webhook_key": key})
}

func toolID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid tool ID", err)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "tool not found")
	case errors.Is(err, xerrors.ErrForbidden):
		response.Forbidden(c, "you do not have access to this tool")
	case xerrors.IsAny(err, xerrors.ErrInvalidInput, qrcampaign.ErrInvalidConfig):
		response.ValidationError(c, message, err)
	default:
		response.Internal(c, message)
	}
}
