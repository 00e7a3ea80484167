// internal/domain/qrcampaign/result.go
package qrcampaign

type FailureReason string

const (
	FailureNotFound            FailureReason = "not_found"
	FailureNotRecurring        FailureReason = "not_recurring"
	FailureExpired             FailureReason = "expired"
	FailureAlreadyUsed         FailureReason = "already_used"
	FailureWrongUser           FailureReason = "wrong_user"
	FailureGenerationExhausted FailureReason = "generation_exhausted"
	FailureCampaignCompleted   FailureReason = "campaign_completed"
)

var failureMessages = map[FailureReason]string{
	FailureNotFound:            "This code is not valid",
	FailureNotRecurring:        "This campaign does not accept recurring scans",
	FailureExpired:             "This code has expired",
	FailureAlreadyUsed:         "This code has already been used",
	FailureWrongUser:           "This code belongs to another user",
	FailureGenerationExhausted: "Could not issue a new code, please try again later",
	FailureCampaignCompleted:   "You have collected all codes for this campaign",
}

// Message returns the human-readable text shown to end users.
func (r FailureReason) Message() string {
	if msg, ok := failureMessages[r]; ok {
		return msg
	}
	return string(r)
}

// RewardDecision is the output of the reward trigger. It carries instructions only.
type RewardDecision struct {
	IsReward      bool           `json:"is_reward"`
	Ordinal       int            `json:"ordinal,omitempty"`
	Instructions  *RewardPayload `json:"instructions,omitempty"`
	ResetStreakTo *int           `json:"-"`
}

// ProgressView is the externally visible progress snapshot.
type ProgressView struct {
	CurrentStreak int `json:"current_streak"`
	TotalScans    int `json:"total_scans"`
	RewardsEarned int `json:"rewards_earned"`
	NextRewardIn  int `json:"next_reward_in"`
}

// ValidationResult is returned for every submitted code, accepted or not.
type ValidationResult struct {
	Accepted           bool           `json:"accepted"`
	FailureReason      FailureReason  `json:"failure_reason,omitempty"`
	Message            string         `json:"message"`
	NextCode           *string        `json:"next_code"`
	Progress           ProgressView   `json:"progress"`
	IsReward           bool           `json:"is_reward"`
	RewardInstructions *RewardPayload `json:"reward_instructions,omitempty"`
}

func Rejected(reason FailureReason) *ValidationResult {
	return &ValidationResult{
		Accepted:      false,
		FailureReason: reason,
		Message:       reason.Message(),
	}
}
