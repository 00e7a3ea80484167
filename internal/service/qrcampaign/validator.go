// internal/service/qrcampaign/validator.go
package qrcampaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "qrloop-service/internal/domain/qrcampaign"
	wstypes "qrloop-service/internal/domain/websocket"
	"qrloop-service/internal/metrics"
	xerrors "qrloop-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// ValidateAndAdvance checks a submitted code and, when it is accepted, advances
// the user's progress, issues the successor and evaluates the reward trigger,
// all in one transaction. Business rejections come back as a result with
// Accepted=false; only infrastructure failures are returned as errors.
func (s *CampaignService) ValidateAndAdvance(ctx context.Context, in domain.ValidateInput) (*domain.ValidationResult, error) {
	start := time.Now()
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: code and user_id are required", xerrors.ErrInvalidInput)
	}

	var (
		result   *domain.ValidationResult
		campaign *domain.ToolCampaign
		decision domain.RewardDecision
	)
	now := s.now()

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		result, campaign, decision = nil, nil, domain.RewardDecision{}

		code, err := tx.FindCodeByCode(ctx, in.Code)
		if errors.Is(err, xerrors.ErrNotFound) {
			result = domain.Rejected(domain.FailureNotFound)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find code: %w", err)
		}
		if in.ToolID != 0 && code.ToolID != in.ToolID {
			result = domain.Rejected(domain.FailureNotFound)
			return nil
		}

		tc, err := tx.FindToolCampaign(ctx, code.ToolID)
		if err != nil {
			return fmt.Errorf("failed to load campaign: %w", err)
		}
		campaign = tc
		if !tc.Config.IsRecurring {
			result = domain.Rejected(domain.FailureNotRecurring)
			return nil
		}

		if code.Status == domain.CodeStatusExpired || code.IsExpired(now) {
			if code.Status == domain.CodeStatusIssued && code.ScannedAt == nil {
				if err := tx.MarkCodeExpired(ctx, code.ID); err != nil {
					return fmt.Errorf("failed to expire code: %w", err)
				}
			}
			result = domain.Rejected(domain.FailureExpired)
			return nil
		}

		if code.ScannedAt != nil || code.Status != domain.CodeStatusIssued {
			result = domain.Rejected(domain.FailureAlreadyUsed)
			return nil
		}

		if !code.BelongsTo(in.UserID) {
			result = domain.Rejected(domain.FailureWrongUser)
			return nil
		}

		if _, err := tx.EnsureProgress(ctx, tc.ToolID, in.UserID); err != nil {
			return fmt.Errorf("failed to lock progress: %w", err)
		}

		consumed, err := tx.ConsumeCode(ctx, code.ID, in.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to consume code: %w", err)
		}
		if !consumed {
			result = domain.Rejected(domain.FailureAlreadyUsed)
			return nil
		}

		if code.UserID == nil {
			// Printed starter code claimed by this user counts as one issued to them.
			if _, err := tx.IncrementCodesIssued(ctx, tc.ToolID, in.UserID); err != nil {
				return fmt.Errorf("failed to count claimed code: %w", err)
			}
		}

		progress, err := tx.RecordScan(ctx, tc.ToolID, in.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to record scan: %w", err)
		}

		var nextCode *string
		if !limitReached(tc.Config, progress) {
			next, updated, err := s.issueLocked(ctx, tx, tc, in.UserID, progress, now)
			if err != nil {
				return err
			}
			progress = updated
			nextCode = &next.Code
		}

		decision = EvaluateReward(progress.CurrentStreak, progress.RewardsEarned, tc.Config)
		if decision.IsReward {
			streakAtReward := progress.CurrentStreak
			progress, err = tx.ApplyReward(ctx, tc.ToolID, in.UserID, decision.ResetStreakTo)
			if err != nil {
				return fmt.Errorf("failed to apply reward: %w", err)
			}

			event := &domain.RewardEvent{
				ToolID:         tc.ToolID,
				UserID:         in.UserID,
				CodeID:         code.ID,
				Ordinal:        decision.Ordinal,
				StreakAtReward: streakAtReward,
				TagsToAdd:      decision.Instructions.TagsToAdd,
				MessageToSend:  decision.Instructions.MessageToSend,
			}
			if err := tx.CreateRewardEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to record reward event: %w", err)
			}
		}

		result = &domain.ValidationResult{
			Accepted:           true,
			Message:            "Code accepted",
			NextCode:           nextCode,
			Progress:           progressView(progress, tc.Config.RewardThreshold),
			IsReward:           decision.IsReward,
			RewardInstructions: decision.Instructions,
		}
		return nil
	})

	if errors.Is(err, ErrGenerationExhausted) {
		result = domain.Rejected(domain.FailureGenerationExhausted)
		err = nil
	}
	if err != nil {
		metrics.RecordValidation("error", time.Since(start).Seconds())
		s.logger.Error("code validation failed",
			zap.Int64("tool_id", resolvedToolID(in, campaign)),
			zap.String("user_id", in.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	if !result.Accepted && result.FailureReason != domain.FailureGenerationExhausted {
		// Rejections still report where the user stands.
		if campaign != nil {
			if p, perr := s.store.GetProgress(ctx, campaign.ToolID, in.UserID); perr == nil {
				result.Progress = progressView(p, campaign.Config.RewardThreshold)
			} else {
				result.Progress = progressView(nil, campaign.Config.RewardThreshold)
			}
		}
	}

	outcome := "accepted"
	switch {
	case !result.Accepted:
		outcome = string(result.FailureReason)
	case result.IsReward:
		outcome = "reward"
		metrics.RewardsGranted.Inc()
	}
	metrics.RecordValidation(outcome, time.Since(start).Seconds())

	s.logger.Info("code validated",
		zap.Int64("tool_id", resolvedToolID(in, campaign)),
		zap.String("user_id", in.UserID),
		zap.String("outcome", outcome),
		zap.Int("streak", result.Progress.CurrentStreak),
	)

	if campaign != nil {
		s.publish(campaign.OwnerIdentityID, scanEvent(campaign.ToolID, in, result, decision, now))
	}

	return result, nil
}

func scanEvent(toolID int64, in domain.ValidateInput, result *domain.ValidationResult, decision domain.RewardDecision, now time.Time) *wstypes.ScanEventData {
	event := &wstypes.ScanEventData{
		ToolID:        toolID,
		UserID:        in.UserID,
		Code:          in.Code,
		Accepted:      result.Accepted,
		FailureReason: string(result.FailureReason),
		CurrentStreak: result.Progress.CurrentStreak,
		TotalScans:    result.Progress.TotalScans,
		IsReward:      result.IsReward,
		OccurredAt:    now,
	}
	if result.IsReward && decision.Instructions != nil {
		event.RewardOrdinal = decision.Ordinal
		event.TagsToAdd = decision.Instructions.TagsToAdd
		event.MessageToSend = decision.Instructions.MessageToSend
	}
	return event
}

// resolvedToolID prefers the code's own tool, since callers may leave
// ValidateInput.ToolID unpinned.
func resolvedToolID(in domain.ValidateInput, campaign *domain.ToolCampaign) int64 {
	if campaign != nil {
		return campaign.ToolID
	}
	return in.ToolID
}
