// internal/domain/tool/entity.go
package tool

import (
	"time"

	"qrloop-service/internal/domain/qrcampaign"
)

type ToolType string

const (
	ToolTypeQRCampaign ToolType = "qr_campaign"
)

type ToolStatus string

const (
	ToolStatusActive   ToolStatus = "active"
	ToolStatusInactive ToolStatus = "inactive"
)

type Tool struct {
	ID              int64                     `json:"id" db:"id"`
	OwnerIdentityID int64                     `json:"owner_identity_id" db:"owner_identity_id"`
	Name            string                    `json:"name" db:"name"`
	ToolType        ToolType                  `json:"tool_type" db:"tool_type"`
	Status          ToolStatus                `json:"status" db:"status"`
	QRConfig        qrcampaign.CampaignConfig `json:"qr_config" db:"qr_config"`
	WebhookKeyHash  string                    `json:"-" db:"webhook_key_hash"`
	CreatedAt       time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at" db:"updated_at"`
}

func (t *Tool) OwnedBy(identityID int64) bool {
	return t.OwnerIdentityID == identityID
}
