// internal/repository/postgres/campaign_progress_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	xerrors "qrloop-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const progressColumns = `tool_id, user_id, current_streak, total_scans, rewards_earned,
		          codes_issued, last_scan_at, updated_at`

// CampaignProgressRepository keeps one counter row per (tool, user). Every
// mutation is a single statement returning the row it left behind.
type CampaignProgressRepository struct {
	db querier
}

func NewCampaignProgressRepository(db querier) *CampaignProgressRepository {
	return &CampaignProgressRepository{db: db}
}

func (r *CampaignProgressRepository) Get(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM campaign_progress WHERE tool_id = $1 AND user_id = $2`

	p, err := scanProgress(r.db.QueryRow(ctx, query, toolID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	return p, nil
}

// Ensure creates the row if needed and holds its lock until the transaction ends.
func (r *CampaignProgressRepository) Ensure(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	query := `
		INSERT INTO campaign_progress (tool_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (tool_id, user_id)
		DO UPDATE SET updated_at = campaign_progress.updated_at
		RETURNING ` + progressColumns

	p, err := scanProgress(r.db.QueryRow(ctx, query, toolID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure progress: %w", err)
	}
	return p, nil
}

// RecordScan bumps the streak and the lifetime scan count by one.
func (r *CampaignProgressRepository) RecordScan(ctx context.Context, toolID int64, userID string, now time.Time) (*qrcampaign.CampaignProgress, error) {
	query := `
		INSERT INTO campaign_progress (tool_id, user_id, current_streak, total_scans, last_scan_at, updated_at)
		VALUES ($1, $2, 1, 1, $3, $3)
		ON CONFLICT (tool_id, user_id)
		DO UPDATE SET current_streak = campaign_progress.current_streak + 1,
		              total_scans = campaign_progress.total_scans + 1,
		              last_scan_at = EXCLUDED.last_scan_at,
		              updated_at = EXCLUDED.updated_at
		RETURNING ` + progressColumns

	p, err := scanProgress(r.db.QueryRow(ctx, query, toolID, userID, now))
	if err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}
	return p, nil
}

func (r *CampaignProgressRepository) IncrementCodesIssued(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	query := `
		INSERT INTO campaign_progress (tool_id, user_id, codes_issued)
		VALUES ($1, $2, 1)
		ON CONFLICT (tool_id, user_id)
		DO UPDATE SET codes_issued = campaign_progress.codes_issued + 1,
		              updated_at = NOW()
		RETURNING ` + progressColumns

	p, err := scanProgress(r.db.QueryRow(ctx, query, toolID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to increment codes issued: %w", err)
	}
	return p, nil
}

// ApplyReward counts a reward and, when resetStreakTo is set, rewinds the streak.
func (r *CampaignProgressRepository) ApplyReward(ctx context.Context, toolID int64, userID string, resetStreakTo *int) (*qrcampaign.CampaignProgress, error) {
	query := `
		UPDATE campaign_progress
		SET rewards_earned = rewards_earned + 1,
		    current_streak = COALESCE($3, current_streak),
		    updated_at = NOW()
		WHERE tool_id = $1 AND user_id = $2
		RETURNING ` + progressColumns

	p, err := scanProgress(r.db.QueryRow(ctx, query, toolID, userID, resetStreakTo))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply reward: %w", err)
	}
	return p, nil
}

func scanProgress(row rowScanner) (*qrcampaign.CampaignProgress, error) {
	var p qrcampaign.CampaignProgress
	err := row.Scan(
		&p.ToolID, &p.UserID, &p.CurrentStreak, &p.TotalScans, &p.RewardsEarned,
		&p.CodesIssued, &p.LastScanAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
