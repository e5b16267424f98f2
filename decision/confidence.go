package decision

import (
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIDENCE SCORER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Weighted six-factor score in [0,1]. Each factor is a monotone piecewise
// table; a missing input scores 0.5 (neutral) so absent data never forces a
// decision either way.
//
//   price drop   0.30
//   time left    0.20
//   volume       0.15
//   trend        0.15
//   game state   0.10
//   spread       0.10
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	weightPriceDrop = 0.30
	weightTimeLeft  = 0.20
	weightVolume    = 0.15
	weightTrend     = 0.15
	weightGameState = 0.10
	weightSpread    = 0.10
)

// Recommendation labels by score band.
const (
	RecommendStrong     = "STRONG_ENTRY"
	RecommendGood       = "GOOD_ENTRY"
	RecommendAcceptable = "ACCEPTABLE_ENTRY"
	RecommendWeak       = "WEAK_ENTRY"
	RecommendNo         = "NO_ENTRY"
)

// ConfidenceInputs are the observable features at evaluation time. Pointer
// and slice fields are optional; nil means "unknown".
type ConfidenceInputs struct {
	Baseline      decimal.Decimal
	Current       decimal.Decimal
	TimeRemaining int // seconds
	Period        int
	TotalPeriods  int
	Volume24h     decimal.Decimal   // zero = unknown
	PriceHistory  []decimal.Decimal // newest last; nil/short = unknown
	ScoreDiff     *int              // backed team's lead; nil = unknown
	Spread        decimal.Decimal   // zero = unknown
}

// ConfidenceResult is the overall score with its per-factor breakdown.
type ConfidenceResult struct {
	Score          decimal.Decimal
	Breakdown      types.ConfidenceBreakdown
	Recommendation string
}

// Score computes the weighted confidence for an entry opportunity.
func Score(in ConfidenceInputs, minEntryConfidence decimal.Decimal) ConfidenceResult {
	priceDrop := scorePriceDrop(in.Baseline, in.Current)
	timeLeft := scoreTimeRemaining(in.TimeRemaining)
	volume := scoreVolume(in.Volume24h)
	trend := scoreTrend(in.PriceHistory)
	gameState := scoreGameState(in.ScoreDiff)
	spread := scoreSpread(in.Spread)

	overall := priceDrop*weightPriceDrop +
		timeLeft*weightTimeLeft +
		volume*weightVolume +
		trend*weightTrend +
		gameState*weightGameState +
		spread*weightSpread

	score := decimal.NewFromFloat(overall).Round(4)

	return ConfidenceResult{
		Score: score,
		Breakdown: types.ConfidenceBreakdown{
			PriceDrop: decimal.NewFromFloat(priceDrop),
			TimeLeft:  decimal.NewFromFloat(timeLeft),
			Volume:    decimal.NewFromFloat(volume),
			Trend:     decimal.NewFromFloat(trend),
			GameState: decimal.NewFromFloat(gameState),
			Spread:    decimal.NewFromFloat(spread),
		},
		Recommendation: recommend(score, minEntryConfidence),
	}
}

func recommend(score, minEntry decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.8)):
		return RecommendStrong
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.7)):
		return RecommendGood
	case score.GreaterThanOrEqual(minEntry):
		return RecommendAcceptable
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.4)):
		return RecommendWeak
	default:
		return RecommendNo
	}
}

// scorePriceDrop grades how far below baseline the market has moved.
func scorePriceDrop(baseline, current decimal.Decimal) float64 {
	if baseline.IsZero() || current.IsZero() {
		return 0.5
	}
	drop, _ := baseline.Sub(current).Div(baseline).Float64()

	switch {
	case drop >= 0.20:
		return 1.0
	case drop >= 0.15:
		return 0.9
	case drop >= 0.10:
		return 0.75
	case drop >= 0.07:
		return 0.6
	case drop >= 0.05:
		return 0.5
	case drop >= 0.03:
		return 0.4
	default:
		return 0.2
	}
}

// scoreTimeRemaining favors entries with time left for the price to
// recover. Monotone: less time never scores higher.
func scoreTimeRemaining(seconds int) float64 {
	switch {
	case seconds >= 1800:
		return 1.0
	case seconds >= 900:
		return 0.8
	case seconds >= 600:
		return 0.7
	case seconds >= 300:
		return 0.5
	case seconds >= 120:
		return 0.3
	default:
		return 0.1
	}
}

func scoreVolume(volume decimal.Decimal) float64 {
	if volume.IsZero() {
		return 0.5
	}
	v, _ := volume.Float64()
	switch {
	case v >= 100_000:
		return 1.0
	case v >= 50_000:
		return 0.8
	case v >= 10_000:
		return 0.6
	case v >= 1_000:
		return 0.4
	default:
		return 0.2
	}
}

// scoreTrend distinguishes an overreaction settling down from a price in
// free fall. A completed sharp drop scores high; a still-accelerating
// decline scores low.
func scoreTrend(history []decimal.Decimal) float64 {
	if len(history) < 3 {
		return 0.5
	}

	last := history[len(history)-1]
	prev := history[len(history)-2]
	first := history[0]
	if first.IsZero() || prev.IsZero() {
		return 0.5
	}

	total, _ := last.Sub(first).Div(first).Float64()
	recent, _ := last.Sub(prev).Div(prev).Float64()

	switch {
	case total <= -0.05 && recent >= -0.005:
		return 0.9 // big drop that has stopped falling
	case total <= -0.02 && recent >= -0.005:
		return 0.7
	case recent < -0.02:
		return 0.3 // still falling hard
	default:
		return 0.5
	}
}

// scoreGameState grades the backed team's current lead.
func scoreGameState(diff *int) float64 {
	if diff == nil {
		return 0.5
	}
	switch d := *diff; {
	case d >= 10:
		return 0.9
	case d >= 5:
		return 0.75
	case d >= 0:
		return 0.6
	case d >= -5:
		return 0.4
	default:
		return 0.2
	}
}

func scoreSpread(spread decimal.Decimal) float64 {
	if spread.IsZero() {
		return 0.5
	}
	s, _ := spread.Float64()
	switch {
	case s <= 0.01:
		return 1.0
	case s <= 0.02:
		return 0.8
	case s <= 0.05:
		return 0.6
	case s <= 0.10:
		return 0.4
	default:
		return 0.2
	}
}
