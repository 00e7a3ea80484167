// internal/domain/qrcampaign/config.go
package qrcampaign

import (
	"errors"
	"fmt"
	"strings"
)

type PolicyKind string

const (
	PolicyKindFlat           PolicyKind = "flat"
	PolicyKindMilestoneTiers PolicyKind = "milestone_tiers"
)

// RewardPayload is what the caller applies on the chat platform when a reward fires.
type RewardPayload struct {
	TagsToAdd     []string `json:"tags_to_add,omitempty"`
	MessageToSend string   `json:"message_to_send,omitempty"`
}

// MilestoneTier applies from the Reward-th reward onwards until a higher tier takes over.
type MilestoneTier struct {
	Reward int `json:"reward"`
	RewardPayload
}

// RecurringPolicy is the tagged reward definition attached to a campaign.
// Flat policies use the base payload for every reward; milestone policies
// fall back to it below the first tier.
type RecurringPolicy struct {
	Kind PolicyKind `json:"kind"`
	RewardPayload
	Tiers []MilestoneTier `json:"tiers,omitempty"`
}

// CampaignConfig is the qr_config document stored on a tool.
type CampaignConfig struct {
	IsRecurring       bool            `json:"is_recurring"`
	MaxCodesPerUser   *int            `json:"max_codes_per_user,omitempty"`
	RewardThreshold   int             `json:"reward_threshold"`
	AutoResetOnReward bool            `json:"auto_reset_on_reward"`
	StreakCarryOver   int             `json:"streak_carry_over"`
	CodeTTLSeconds    *int            `json:"code_ttl_seconds,omitempty"`
	RecurringConfig   RecurringPolicy `json:"recurring_config"`
}

var ErrInvalidConfig = errors.New("invalid campaign config")

// Validate is run when a config is written; reads trust the stored document.
func (c *CampaignConfig) Validate() error {
	if c.MaxCodesPerUser != nil && *c.MaxCodesPerUser < 1 {
		return invalid("max_codes_per_user must be at least 1 when set")
	}
	if c.CodeTTLSeconds != nil && *c.CodeTTLSeconds < 1 {
		return invalid("code_ttl_seconds must be at least 1 when set")
	}
	if !c.IsRecurring {
		// Single-shot tools never reach the reward trigger.
		return nil
	}
	if c.RewardThreshold <= 0 {
		return invalid("reward_threshold must be greater than 0")
	}
	if c.StreakCarryOver < 0 || c.StreakCarryOver >= c.RewardThreshold {
		return invalid("streak_carry_over must be between 0 and reward_threshold-1")
	}
	return c.RecurringConfig.Validate()
}

func (p *RecurringPolicy) Validate() error {
	switch p.Kind {
	case PolicyKindFlat:
		if len(p.Tiers) > 0 {
			return invalid("flat policy cannot define tiers")
		}
	case PolicyKindMilestoneTiers:
		if len(p.Tiers) == 0 {
			return invalid("milestone_tiers policy needs at least one tier")
		}
		prev := 0
		for i, t := range p.Tiers {
			if t.Reward < 1 {
				return invalid(fmt.Sprintf("tier %d: reward must be at least 1", i))
			}
			if t.Reward <= prev {
				return invalid(fmt.Sprintf("tier %d: rewards must be strictly ascending", i))
			}
			prev = t.Reward
		}
	case "":
		return invalid("recurring_config.kind is required")
	default:
		return invalid(fmt.Sprintf("unknown recurring_config.kind %q", p.Kind))
	}

	for _, tag := range p.allTags() {
		if strings.TrimSpace(tag) == "" {
			return invalid("tags cannot be blank")
		}
	}
	return nil
}

// PayloadFor resolves the payload for the ordinal-th reward (1-based).
func (p *RecurringPolicy) PayloadFor(ordinal int) RewardPayload {
	if p.Kind != PolicyKindMilestoneTiers {
		return p.RewardPayload
	}

	payload := p.RewardPayload
	for _, t := range p.Tiers {
		if t.Reward > ordinal {
			break
		}
		payload = t.RewardPayload
	}
	return payload
}

func (p *RecurringPolicy) allTags() []string {
	tags := append([]string{}, p.TagsToAdd...)
	for _, t := range p.Tiers {
		tags = append(tags, t.TagsToAdd...)
	}
	return tags
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
