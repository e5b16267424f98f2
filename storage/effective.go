package storage

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/types"
)

// BuildEffectiveConfig resolves the layered trading config for one market.
// Precedence, most specific first: market override, sport config, runtime
// settings, built-in defaults. Nil override fields fall through.
func BuildEffectiveConfig(base types.EffectiveConfig, gs *GlobalSettings, sport *SportConfig, market *MarketConfig) types.EffectiveConfig {
	out := base

	if gs != nil {
		out.AutoTrade = gs.AutoTradeAll
		if gs.EmergencyStop || !gs.BotEnabled {
			out.Enabled = false
		}
	}

	if sport != nil {
		if !sport.Enabled {
			out.Enabled = false
		}
		applyBoolPtr(&out.AutoTrade, sport.AutoTrade)
		applyDecPtr(&out.EntryThresholdDropPct, sport.EntryThresholdDropPct)
		applyDecPtr(&out.AbsoluteEntryPrice, sport.AbsoluteEntryPrice)
		applyIntPtr(&out.MinTimeRemainingSeconds, sport.MinTimeRemainingSeconds)
		if sport.AllowedEntrySegments != "" {
			out.AllowedEntrySegments = splitSegments(sport.AllowedEntrySegments)
		}
		applyDecPtr(&out.TakeProfitPct, sport.TakeProfitPct)
		applyDecPtr(&out.StopLossPct, sport.StopLossPct)
		applyDecPtr(&out.DefaultPositionSize, sport.DefaultPositionSize)
		applyIntPtr(&out.MaxPositionsPerGame, sport.MaxPositionsPerGame)
		applyBoolPtr(&out.UseKellySizing, sport.UseKellySizing)
		applyDecPtr(&out.KellyFraction, sport.KellyFraction)
		applyDecPtr(&out.MinEntryConfidence, sport.MinEntryConfidence)
		applyDecPtr(&out.MinPregameProbability, sport.MinPregameProbability)
	}

	if market != nil {
		applyBoolPtr(&out.Enabled, market.Enabled)
		applyBoolPtr(&out.AutoTrade, market.AutoTrade)
		applyDecPtr(&out.EntryThresholdDropPct, market.EntryThresholdDropPct)
		applyDecPtr(&out.AbsoluteEntryPrice, market.AbsoluteEntryPrice)
		applyIntPtr(&out.MinTimeRemainingSeconds, market.MinTimeRemainingSeconds)
		if market.AllowedEntrySegments != "" {
			out.AllowedEntrySegments = splitSegments(market.AllowedEntrySegments)
		}
		applyDecPtr(&out.TakeProfitPct, market.TakeProfitPct)
		applyDecPtr(&out.StopLossPct, market.StopLossPct)
		applyDecPtr(&out.DefaultPositionSize, market.DefaultPositionSize)
		applyIntPtr(&out.MaxPositionsPerGame, market.MaxPositionsPerGame)
		applyBoolPtr(&out.UseKellySizing, market.UseKellySizing)
		applyDecPtr(&out.KellyFraction, market.KellyFraction)
		applyDecPtr(&out.MinEntryConfidence, market.MinEntryConfidence)
	}

	return out
}

func splitSegments(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyBoolPtr(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func applyIntPtr(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyDecPtr(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}
