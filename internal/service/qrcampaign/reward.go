// internal/service/qrcampaign/reward.go
package qrcampaign

import (
	"strconv"
	"strings"

	domain "qrloop-service/internal/domain/qrcampaign"
)

// EvaluateReward decides whether the streak just crossed a multiple of the
// threshold and, if so, which payload the caller should deliver. It performs
// no I/O. rewardsEarned is the count before this scan.
func EvaluateReward(streak, rewardsEarned int, cfg domain.CampaignConfig) domain.RewardDecision {
	threshold := cfg.RewardThreshold
	if threshold <= 0 || streak <= 0 || streak%threshold != 0 {
		return domain.RewardDecision{IsReward: false}
	}

	ordinal := rewardsEarned + 1
	payload := cfg.RecurringConfig.PayloadFor(ordinal)

	replacements := map[string]string{
		"{streak}":    strconv.Itoa(streak),
		"{rewards}":   strconv.Itoa(ordinal),
		"{threshold}": strconv.Itoa(threshold),
	}
	message := payload.MessageToSend
	for placeholder, value := range replacements {
		message = strings.ReplaceAll(message, placeholder, value)
	}

	decision := domain.RewardDecision{
		IsReward: true,
		Ordinal:  ordinal,
		Instructions: &domain.RewardPayload{
			TagsToAdd:     append([]string{}, payload.TagsToAdd...),
			MessageToSend: message,
		},
	}
	if cfg.AutoResetOnReward {
		reset := cfg.StreakCarryOver
		decision.ResetStreakTo = &reset
	}
	return decision
}

// NextRewardIn is the number of accepted scans until the next reward.
func NextRewardIn(streak, threshold int) int {
	if threshold <= 0 {
		return 0
	}
	if streak < 0 {
		streak = 0
	}
	return threshold - streak%threshold
}

func progressView(p *domain.CampaignProgress, threshold int) domain.ProgressView {
	if p == nil {
		return domain.ProgressView{NextRewardIn: NextRewardIn(0, threshold)}
	}
	return domain.ProgressView{
		CurrentStreak: p.CurrentStreak,
		TotalScans:    p.TotalScans,
		RewardsEarned: p.RewardsEarned,
		NextRewardIn:  NextRewardIn(p.CurrentStreak, threshold),
	}
}
