// internal/domain/qrcampaign/repository.go
package qrcampaign

import (
	"context"
	"time"
)

// ToolCampaign is the part of a tool the campaign engine reads.
type ToolCampaign struct {
	ToolID          int64
	OwnerIdentityID int64
	Config          CampaignConfig
}

// CodeChecker answers whether a code string is already taken anywhere.
type CodeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Tx is the set of writes that must commit together for a scan or an issuance.
type Tx interface {
	CodeChecker

	FindToolCampaign(ctx context.Context, toolID int64) (*ToolCampaign, error)

	// Codes
	FindCodeByCode(ctx context.Context, code string) (*QRCodeInstance, error)
	FindActiveCode(ctx context.Context, toolID int64, userID string) (*QRCodeInstance, error)
	// InsertCode returns ErrDuplicateEntry when the code string is taken and
	// ErrConflict when the user already holds an issued code for the tool.
	InsertCode(ctx context.Context, code *QRCodeInstance) error
	// ConsumeCode flips an issued, unscanned code to scanned. It reports false
	// when another caller got there first.
	ConsumeCode(ctx context.Context, codeID int64, userID string, now time.Time) (bool, error)
	MarkCodeExpired(ctx context.Context, codeID int64) error

	// Progress
	EnsureProgress(ctx context.Context, toolID int64, userID string) (*CampaignProgress, error)
	RecordScan(ctx context.Context, toolID int64, userID string, now time.Time) (*CampaignProgress, error)
	IncrementCodesIssued(ctx context.Context, toolID int64, userID string) (*CampaignProgress, error)
	ApplyReward(ctx context.Context, toolID int64, userID string, resetStreakTo *int) (*CampaignProgress, error)

	CreateRewardEvent(ctx context.Context, event *RewardEvent) error
}

// Store is the persistence contract of the recurring campaign engine.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	FindToolCampaign(ctx context.Context, toolID int64) (*ToolCampaign, error)
	GetProgress(ctx context.Context, toolID int64, userID string) (*CampaignProgress, error)
	ListCodes(ctx context.Context, toolID int64, filters *CodeListFilters) ([]QRCodeInstance, int64, error)
	ListRewardEvents(ctx context.Context, toolID int64, filters *RewardListFilters) ([]RewardEvent, int64, error)
}
