// internal/domain/tool/dto.go
package tool

import "qrloop-service/internal/domain/qrcampaign"

type CreateToolRequest struct {
	Name     string                    `json:"name" binding:"required,max=255"`
	QRConfig qrcampaign.CampaignConfig `json:"qr_config" binding:"required"`
}

type UpdateQRConfigRequest struct {
	QRConfig qrcampaign.CampaignConfig `json:"qr_config" binding:"required"`
}

// CreateToolResponse carries the plaintext webhook key exactly once.
type CreateToolResponse struct {
	Tool       *Tool  `json:"tool"`
	WebhookKey string `json:"webhook_key"`
}

type ToolListFilters struct {
	Status   *ToolStatus `form:"status"`
	Search   string      `form:"search"`
	Page     int         `form:"page"`
	PageSize int         `form:"page_size" binding:"omitempty,max=100"`
}

type ToolListResponse struct {
	Tools      []Tool `json:"tools"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}
