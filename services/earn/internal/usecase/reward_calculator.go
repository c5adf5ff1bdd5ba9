package usecase

import (
	"encoding/json"
	"math"

	"perkloop/services/earn/internal/entity"
)

const defaultRewardPoints = 1

// CalculateRewardPoints maps a purchase amount to points under the seller's
// reward configuration. Pure function, never returns a negative value.
//
// Slab edge policy: the first rule with min <= amount <= max wins; an amount
// above every rule's max earns the last rule's points, an amount below every
// rule's min earns 0. An unknown reward type behaves like "default".
func CalculateRewardPoints(amount float64, cfg entity.RewardConfig) int {
	switch cfg.Type {
	case entity.RewardTypeFlat:
		if cfg.Value < 0 {
			return 0
		}
		return cfg.Value

	case entity.RewardTypePercentage:
		points := int(math.Round(cfg.PercentageValue / 100 * amount))
		if points < 0 {
			return 0
		}
		return points

	case entity.RewardTypeSlab:
		return slabPoints(amount, cfg.Slabs)

	default:
		if cfg.Value > 0 {
			return cfg.Value
		}
		return defaultRewardPoints
	}
}

func slabPoints(amount float64, slabs []entity.SlabRule) int {
	if len(slabs) == 0 {
		return 0
	}
	for _, rule := range slabs {
		if amount >= rule.Min && amount <= rule.Max {
			if rule.Points < 0 {
				return 0
			}
			return rule.Points
		}
	}
	// Above the top tier still earns the top tier.
	last := slabs[len(slabs)-1]
	if amount > last.Max {
		if last.Points < 0 {
			return 0
		}
		return last.Points
	}
	return 0
}

// ParseRewardConfig decodes a seller's reward parameter JSON into a
// RewardConfig for the given reward type. A malformed or empty parameter set
// leaves the zero values, which the calculator's fallbacks absorb.
func ParseRewardConfig(rewardType, paramsJSON string) entity.RewardConfig {
	cfg := entity.RewardConfig{Type: rewardType}
	if paramsJSON == "" {
		return cfg
	}
	if err := json.Unmarshal([]byte(paramsJSON), &cfg); err != nil {
		return entity.RewardConfig{Type: rewardType}
	}
	cfg.Type = rewardType
	return cfg
}
