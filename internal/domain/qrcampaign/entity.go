// internal/domain/qrcampaign/entity.go
package qrcampaign

import (
	"time"

	"github.com/lib/pq"
)

type CodeStatus string

const (
	CodeStatusIssued  CodeStatus = "issued"
	CodeStatusScanned CodeStatus = "scanned"
	CodeStatusExpired CodeStatus = "expired"
)

// QRCodeInstance is a single-use code. Issued codes become scanned or expired, never both.
type QRCodeInstance struct {
	ID          int64                  `json:"id" db:"id"`
	Code        string                 `json:"code" db:"code"`
	ToolID      int64                  `json:"tool_id" db:"tool_id"`
	UserID      *string                `json:"user_id,omitempty" db:"user_id"`
	IsRecurring bool                   `json:"is_recurring" db:"is_recurring"`
	Status      CodeStatus             `json:"status" db:"status"`
	ScannedAt   *time.Time             `json:"scanned_at,omitempty" db:"scanned_at"`
	ScanCount   int                    `json:"scan_count" db:"scan_count"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty" db:"expires_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

func (q *QRCodeInstance) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

func (q *QRCodeInstance) IsActive(now time.Time) bool {
	return q.Status == CodeStatusIssued && q.ScannedAt == nil && !q.IsExpired(now)
}

// BelongsTo reports whether userID may scan this code. Unbound codes accept anyone.
func (q *QRCodeInstance) BelongsTo(userID string) bool {
	return q.UserID == nil || *q.UserID == userID
}

// CampaignProgress is the per (tool, user) counter row.
type CampaignProgress struct {
	ToolID        int64      `json:"tool_id" db:"tool_id"`
	UserID        string     `json:"user_id" db:"user_id"`
	CurrentStreak int        `json:"current_streak" db:"current_streak"`
	TotalScans    int        `json:"total_scans" db:"total_scans"`
	RewardsEarned int        `json:"rewards_earned" db:"rewards_earned"`
	CodesIssued   int        `json:"codes_issued" db:"codes_issued"`
	LastScanAt    *time.Time `json:"last_scan_at,omitempty" db:"last_scan_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// RewardEvent is the audit row written whenever a reward fires.
type RewardEvent struct {
	ID             int64          `json:"id" db:"id"`
	ToolID         int64          `json:"tool_id" db:"tool_id"`
	UserID         string         `json:"user_id" db:"user_id"`
	CodeID         int64          `json:"code_id" db:"code_id"`
	Ordinal        int            `json:"ordinal" db:"ordinal"`
	StreakAtReward int            `json:"streak_at_reward" db:"streak_at_reward"`
	TagsToAdd      pq.StringArray `json:"tags_to_add" db:"tags_to_add"`
	MessageToSend  string         `json:"message_to_send" db:"message_to_send"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
