// internal/repository/postgres/campaign_store.go
package postgres

import (
	"context"
	"time"

	"qrloop-service/internal/domain/qrcampaign"

	"github.com/jackc/pgx/v5"
)

// CampaignStore implements qrcampaign.Store on top of the per-table repositories.
type CampaignStore struct {
	db       *DB
	tools    *ToolRepository
	codes    *QRCodeRepository
	progress *CampaignProgressRepository
	rewards  *RewardEventRepository
}

func NewCampaignStore(db *DB) *CampaignStore {
	pool := db.Pool()
	return &CampaignStore{
		db:       db,
		tools:    NewToolRepository(pool),
		codes:    NewQRCodeRepository(pool),
		progress: NewCampaignProgressRepository(pool),
		rewards:  NewRewardEventRepository(pool),
	}
}

func (s *CampaignStore) InTx(ctx context.Context, fn func(tx qrcampaign.Tx) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(newCampaignTx(tx))
	})
}

func (s *CampaignStore) FindToolCampaign(ctx context.Context, toolID int64) (*qrcampaign.ToolCampaign, error) {
	return s.tools.FindToolCampaign(ctx, toolID)
}

func (s *CampaignStore) GetProgress(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	return s.progress.Get(ctx, toolID, userID)
}

func (s *CampaignStore) ListCodes(ctx context.Context, toolID int64, filters *qrcampaign.CodeListFilters) ([]qrcampaign.QRCodeInstance, int64, error) {
	return s.codes.List(ctx, toolID, filters)
}

func (s *CampaignStore) ListRewardEvents(ctx context.Context, toolID int64, filters *qrcampaign.RewardListFilters) ([]qrcampaign.RewardEvent, int64, error) {
	return s.rewards.List(ctx, toolID, filters)
}

type campaignTx struct {
	tools    *ToolRepository
	codes    *QRCodeRepository
	progress *CampaignProgressRepository
	rewards  *RewardEventRepository
}

func newCampaignTx(tx pgx.Tx) *campaignTx {
	return &campaignTx{
		tools:    &ToolRepository{db: tx},
		codes:    NewQRCodeRepository(tx),
		progress: NewCampaignProgressRepository(tx),
		rewards:  NewRewardEventRepository(tx),
	}
}

func (t *campaignTx) CodeExists(ctx context.Context, code string) (bool, error) {
	return t.codes.CodeExists(ctx, code)
}

func (t *campaignTx) FindToolCampaign(ctx context.Context, toolID int64) (*qrcampaign.ToolCampaign, error) {
	return t.tools.FindToolCampaign(ctx, toolID)
}

func (t *campaignTx) FindCodeByCode(ctx context.Context, code string) (*qrcampaign.QRCodeInstance, error) {
	return t.codes.FindByCode(ctx, code)
}

func (t *campaignTx) FindActiveCode(ctx context.Context, toolID int64, userID string) (*qrcampaign.QRCodeInstance, error) {
	return t.codes.FindActive(ctx, toolID, userID)
}

func (t *campaignTx) InsertCode(ctx context.Context, code *qrcampaign.QRCodeInstance) error {
	return t.codes.Insert(ctx, code)
}

func (t *campaignTx) ConsumeCode(ctx context.Context, codeID int64, userID string, now time.Time) (bool, error) {
	return t.codes.Consume(ctx, codeID, userID, now)
}

func (t *campaignTx) MarkCodeExpired(ctx context.Context, codeID int64) error {
	return t.codes.MarkExpired(ctx, codeID)
}

func (t *campaignTx) EnsureProgress(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	return t.progress.Ensure(ctx, toolID, userID)
}

func (t *campaignTx) RecordScan(ctx context.Context, toolID int64, userID string, now time.Time) (*qrcampaign.CampaignProgress, error) {
	return t.progress.RecordScan(ctx, toolID, userID, now)
}

func (t *campaignTx) IncrementCodesIssued(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	return t.progress.IncrementCodesIssued(ctx, toolID, userID)
}

func (t *campaignTx) ApplyReward(ctx context.Context, toolID int64, userID string, resetStreakTo *int) (*qrcampaign.CampaignProgress, error) {
	return t.progress.ApplyReward(ctx, toolID, userID, resetStreakTo)
}

func (t *campaignTx) CreateRewardEvent(ctx context.Context, event *qrcampaign.RewardEvent) error {
	return t.rewards.Create(ctx, event)
}

var (
	_ qrcampaign.Store = (*CampaignStore)(nil)
	_ qrcampaign.Tx    = (*campaignTx)(nil)
)
