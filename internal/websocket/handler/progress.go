// internal/websocket/handler/progress.go
package handler

import (
	"context"
	"fmt"

	wstypes "qrloop-service/internal/domain/websocket"
	campaignsvc "qrloop-service/internal/service/qrcampaign"
	toolsvc "qrloop-service/internal/service/tool"
	ws "qrloop-service/internal/websocket"
)

// ProgressHandler answers qr:progress requests from dashboard connections.
type ProgressHandler struct {
	campaignService *campaignsvc.CampaignService
	toolService     *toolsvc.ToolService
}

func NewProgressHandler(campaignService *campaignsvc.CampaignService, toolService *toolsvc.ToolService) *ProgressHandler {
	return &ProgressHandler{
		campaignService: campaignService,
		toolService:     toolService,
	}
}

func (h *ProgressHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeProgress}
}

func (h *ProgressHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.ProgressRequest
	if err := ws.DecodeData(msg.Data, &req); err != nil {
		client.SendError("invalid_request", "Invalid progress request", err.Error())
		return nil
	}
	if req.ToolID == 0 || req.UserID == "" {
		client.SendError("invalid_request", "tool_id and user_id are required", "")
		return nil
	}

	actor := toolsvc.Actor{IdentityID: client.GetIdentityID(), Admin: client.IsAdmin()}
	if err := h.toolService.Authorize(ctx, actor, req.ToolID); err != nil {
		client.SendError("forbidden", "No access to this tool", err.Error())
		return nil
	}

	progress, err := h.campaignService.GetProgress(ctx, req.ToolID, req.UserID)
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeProgress, map[string]interface{}{
		"tool_id":  req.ToolID,
		"user_id":  req.UserID,
		"progress": progress,
	}))
	return nil
}
