// internal/domain/tool/repository.go
package tool

import (
	"context"

	"qrloop-service/internal/domain/qrcampaign"
)

type Repository interface {
	Create(ctx context.Context, t *Tool) error
	FindByID(ctx context.Context, id int64) (*Tool, error)
	List(ctx context.Context, ownerID *int64, filters *ToolListFilters) ([]Tool, int64, error)
	UpdateQRConfig(ctx context.Context, id int64, cfg qrcampaign.CampaignConfig) error
	UpdateWebhookKeyHash(ctx context.Context, id int64, hash string) error
	UpdateStatus(ctx context.Context, id int64, status ToolStatus) error
}
