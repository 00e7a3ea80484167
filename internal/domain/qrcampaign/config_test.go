package qrcampaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validRecurring() CampaignConfig {
	return CampaignConfig{
		IsRecurring:     true,
		RewardThreshold: 5,
		RecurringConfig: RecurringPolicy{
			Kind:          PolicyKindFlat,
			RewardPayload: RewardPayload{TagsToAdd: []string{"vip"}, MessageToSend: "Thanks!"},
		},
	}
}

func TestCampaignConfig_Validate(t *testing.T) {
	zero, three := 0, 3

	tests := []struct {
		name    string
		mutate  func(c *CampaignConfig)
		wantErr bool
	}{
		{"valid flat", func(c *CampaignConfig) {}, false},
		{"zero threshold", func(c *CampaignConfig) { c.RewardThreshold = 0 }, true},
		{"carry over equal to threshold", func(c *CampaignConfig) { c.StreakCarryOver = 5 }, true},
		{"negative carry over", func(c *CampaignConfig) { c.StreakCarryOver = -1 }, true},
		{"carry over below threshold", func(c *CampaignConfig) { c.StreakCarryOver = 4 }, false},
		{"zero max codes", func(c *CampaignConfig) { c.MaxCodesPerUser = &zero }, true},
		{"max codes set", func(c *CampaignConfig) { c.MaxCodesPerUser = &three }, false},
		{"zero ttl", func(c *CampaignConfig) { c.CodeTTLSeconds = &zero }, true},
		{"missing kind", func(c *CampaignConfig) { c.RecurringConfig.Kind = "" }, true},
		{"unknown kind", func(c *CampaignConfig) { c.RecurringConfig.Kind = "lottery" }, true},
		{"blank tag", func(c *CampaignConfig) { c.RecurringConfig.TagsToAdd = []string{" "} }, true},
		{"flat with tiers", func(c *CampaignConfig) {
			c.RecurringConfig.Tiers = []MilestoneTier{{Reward: 1}}
		}, true},
		{"tiers without entries", func(c *CampaignConfig) {
			c.RecurringConfig.Kind = PolicyKindMilestoneTiers
		}, true},
		{"tiers ascending", func(c *CampaignConfig) {
			c.RecurringConfig.Kind = PolicyKindMilestoneTiers
			c.RecurringConfig.Tiers = []MilestoneTier{{Reward: 1}, {Reward: 4}}
		}, false},
		{"tiers out of order", func(c *CampaignConfig) {
			c.RecurringConfig.Kind = PolicyKindMilestoneTiers
			c.RecurringConfig.Tiers = []MilestoneTier{{Reward: 4}, {Reward: 4}}
		}, true},
		{"tier below one", func(c *CampaignConfig) {
			c.RecurringConfig.Kind = PolicyKindMilestoneTiers
			c.RecurringConfig.Tiers = []MilestoneTier{{Reward: 0}}
		}, true},
		{"single shot skips reward checks", func(c *CampaignConfig) {
			c.IsRecurring = false
			c.RewardThreshold = 0
			c.RecurringConfig = RecurringPolicy{}
		}, false},
		{"single shot still checks ttl", func(c *CampaignConfig) {
			c.IsRecurring = false
			c.CodeTTLSeconds = &zero
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validRecurring()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecurringPolicy_PayloadFor(t *testing.T) {
	p := RecurringPolicy{
		Kind:          PolicyKindMilestoneTiers,
		RewardPayload: RewardPayload{MessageToSend: "base"},
		Tiers: []MilestoneTier{
			{Reward: 2, RewardPayload: RewardPayload{MessageToSend: "two"}},
			{Reward: 5, RewardPayload: RewardPayload{MessageToSend: "five"}},
		},
	}

	assert.Equal(t, "base", p.PayloadFor(1).MessageToSend)
	assert.Equal(t, "two", p.PayloadFor(2).MessageToSend)
	assert.Equal(t, "two", p.PayloadFor(4).MessageToSend)
	assert.Equal(t, "five", p.PayloadFor(50).MessageToSend)

	p.Kind = PolicyKindFlat
	assert.Equal(t, "base", p.PayloadFor(5).MessageToSend)
}
