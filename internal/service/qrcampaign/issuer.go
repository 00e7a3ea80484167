// internal/service/qrcampaign/issuer.go
package qrcampaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/metrics"
	xerrors "qrloop-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// MaxStarterBatch caps one IssueStarterCodes call.
const MaxStarterBatch = 100

// IssueNext returns the user's active code for the tool, minting one if none
// is active. Calling it again without a scan in between returns the same code.
func (s *CampaignService) IssueNext(ctx context.Context, toolID int64, userID string) (*domain.IssueResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", xerrors.ErrInvalidInput)
	}

	var resp *domain.IssueResponse
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		tc, err := tx.FindToolCampaign(ctx, toolID)
		if err != nil {
			return err
		}
		if !tc.Config.IsRecurring {
			return ErrNotRecurring
		}

		// Locks the (tool, user) row so scans and issuances for one user queue up.
		progress, err := tx.EnsureProgress(ctx, toolID, userID)
		if err != nil {
			return fmt.Errorf("failed to lock progress: %w", err)
		}

		code, progress, err := s.issueLocked(ctx, tx, tc, userID, progress, s.now())
		if err != nil {
			return err
		}

		resp = &domain.IssueResponse{
			Code:     code,
			Progress: progressView(progress, tc.Config.RewardThreshold),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// issueLocked runs inside a transaction that already holds the progress row.
func (s *CampaignService) issueLocked(
	ctx context.Context,
	tx domain.Tx,
	tc *domain.ToolCampaign,
	userID string,
	progress *domain.CampaignProgress,
	now time.Time,
) (*domain.QRCodeInstance, *domain.CampaignProgress, error) {
	active, err := tx.FindActiveCode(ctx, tc.ToolID, userID)
	switch {
	case err == nil && active.IsActive(now):
		return active, progress, nil
	case err == nil:
		if err := tx.MarkCodeExpired(ctx, active.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to expire stale code: %w", err)
		}
	case !errors.Is(err, xerrors.ErrNotFound):
		return nil, nil, fmt.Errorf("failed to find active code: %w", err)
	}

	if limitReached(tc.Config, progress) {
		return nil, nil, ErrCampaignCompleted
	}

	for i := 0; i < s.generator.MaxAttempts(); i++ {
		codeStr, err := s.generator.Generate(ctx, tx, tc.ToolID)
		if err != nil {
			return nil, nil, err
		}

		uid := userID
		code := newCodeInstance(tc, codeStr, &uid, now, map[string]interface{}{
			"sequence": progress.CodesIssued + 1,
		})

		err = tx.InsertCode(ctx, code)
		switch {
		case err == nil:
			progress, err = tx.IncrementCodesIssued(ctx, tc.ToolID, userID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to count issued code: %w", err)
			}
			metrics.CodesIssued.Inc()
			s.logger.Info("qr code issued",
				zap.Int64("tool_id", tc.ToolID),
				zap.Int64("code_id", code.ID),
				zap.Int("codes_issued", progress.CodesIssued),
			)
			return code, progress, nil

		case errors.Is(err, xerrors.ErrConflict):
			// Another request issued a code for this user first; hand that one back.
			winner, err := tx.FindActiveCode(ctx, tc.ToolID, userID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load concurrently issued code: %w", err)
			}
			return winner, progress, nil

		case errors.Is(err, xerrors.ErrDuplicateEntry):
			continue

		default:
			return nil, nil, fmt.Errorf("failed to insert code: %w", err)
		}
	}

	return nil, nil, s.generator.exhausted(tc.ToolID, s.generator.MaxAttempts(), errors.New("insert collisions"))
}

// IssueStarterCodes mints a batch of unbound codes for print runs. Whoever scans
// one first claims it, and it then counts toward that user's issued codes.
func (s *CampaignService) IssueStarterCodes(ctx context.Context, toolID int64, count int) (*domain.StarterCodesResponse, error) {
	if count < 1 || count > MaxStarterBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", xerrors.ErrInvalidInput, MaxStarterBatch)
	}

	var codes []domain.QRCodeInstance
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		codes = codes[:0]

		tc, err := tx.FindToolCampaign(ctx, toolID)
		if err != nil {
			return err
		}
		if !tc.Config.IsRecurring {
			return ErrNotRecurring
		}

		now := s.now()
		for len(codes) < count {
			code, err := s.insertUnbound(ctx, tx, tc, now)
			if err != nil {
				return err
			}
			codes = append(codes, *code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CodesIssued.Add(float64(len(codes)))
	s.logger.Info("starter codes issued",
		zap.Int64("tool_id", toolID),
		zap.Int("count", len(codes)),
	)

	return &domain.StarterCodesResponse{Codes: codes}, nil
}

func (s *CampaignService) insertUnbound(ctx context.Context, tx domain.Tx, tc *domain.ToolCampaign, now time.Time) (*domain.QRCodeInstance, error) {
	for i := 0; i < s.generator.MaxAttempts(); i++ {
		codeStr, err := s.generator.Generate(ctx, tx, tc.ToolID)
		if err != nil {
			return nil, err
		}

		code := newCodeInstance(tc, codeStr, nil, now, map[string]interface{}{"starter": true})
		err = tx.InsertCode(ctx, code)
		switch {
		case err == nil:
			return code, nil
		case errors.Is(err, xerrors.ErrDuplicateEntry):
			continue
		default:
			return nil, fmt.Errorf("failed to insert starter code: %w", err)
		}
	}

	return nil, s.generator.exhausted(tc.ToolID, s.generator.MaxAttempts(), errors.New("insert collisions"))
}

func newCodeInstance(tc *domain.ToolCampaign, code string, userID *string, now time.Time, metadata map[string]interface{}) *domain.QRCodeInstance {
	c := &domain.QRCodeInstance{
		Code:        code,
		ToolID:      tc.ToolID,
		UserID:      userID,
		IsRecurring: tc.Config.IsRecurring,
		Status:      domain.CodeStatusIssued,
		Metadata:    metadata,
	}
	if tc.Config.CodeTTLSeconds != nil {
		expiresAt := now.Add(time.Duration(*tc.Config.CodeTTLSeconds) * time.Second)
		c.ExpiresAt = &expiresAt
	}
	return c
}

func limitReached(cfg domain.CampaignConfig, p *domain.CampaignProgress) bool {
	return cfg.MaxCodesPerUser != nil && p.CodesIssued >= *cfg.MaxCodesPerUser
}
