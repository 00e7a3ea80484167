// internal/domain/qrcampaign/dto.go
package qrcampaign

type ScanRequest struct {
	Code   string `json:"code" binding:"required,max=64"`
	UserID string `json:"user_id" binding:"required,max=128"`
}

type CurrentCodeRequest struct {
	UserID string `json:"user_id" binding:"required,max=128"`
}

// ValidateInput is what the state machine consumes. ToolID pins the code to a tool when non-zero.
type ValidateInput struct {
	ToolID int64
	Code   string
	UserID string
}

// StarterCodesRequest asks for unbound codes to print.
type StarterCodesRequest struct {
	Count int `json:"count" binding:"required,min=1,max=100"`
}

type StarterCodesResponse struct {
	Codes []QRCodeInstance `json:"codes"`
}

type IssueResponse struct {
	Code     *QRCodeInstance `json:"code"`
	Progress ProgressView    `json:"progress"`
}

type CodeListFilters struct {
	UserID   string      `form:"user_id"`
	Status   *CodeStatus `form:"status"`
	Page     int         `form:"page"`
	PageSize int         `form:"page_size" binding:"omitempty,max=100"`
}

type CodeListResponse struct {
	Codes      []QRCodeInstance `json:"codes"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

type RewardListFilters struct {
	UserID   string `form:"user_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100"`
}

type RewardListResponse struct {
	Rewards    []RewardEvent `json:"rewards"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}
