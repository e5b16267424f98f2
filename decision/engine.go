package decision

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Turns tracked-game state into entry and exit signals. The engine never
// executes anything: it walks a fixed precondition chain and either emits a
// signal or a rejection reason. The orchestrator owns execution.
//
// ═══════════════════════════════════════════════════════════════════════════════

// EntryContext carries everything one entry evaluation needs. The
// orchestrator assembles it under its lock so the engine stays pure.
type EntryContext struct {
	Cfg  types.EffectiveConfig
	Game *types.TrackedGame
	Now  time.Time

	KillSwitchActive bool
	MarketLive       bool // ticker-time fallback when the scoreboard is stale

	OpenPositionsForMarket int
	DailyPnL               decimal.Decimal
	MaxDailyLoss           decimal.Decimal
	OpenExposure           decimal.Decimal
	MaxExposure            decimal.Decimal

	// HasOpenTeamPosition reports whether any open position already backs
	// the given team, across all markets.
	HasOpenTeamPosition func(team string) bool

	// Sizing inputs.
	Bankroll      decimal.Decimal
	WinRate       decimal.Decimal
	NumTrades     int
	LosingStreak  int
	MinSize       decimal.Decimal
	MaxSize       decimal.Decimal
	MaxKelly      decimal.Decimal

	// Confidence extras.
	Volume24h    decimal.Decimal
	Spread       decimal.Decimal
	PriceHistory []decimal.Decimal
}

// losingStreakTrigger is how many consecutive losses halve the next entry.
const losingStreakTrigger = 3

var hundred = decimal.NewFromInt(100)

// EvaluateEntry walks the precondition chain in order. The first failure
// wins; the reason string is for the activity log.
func EvaluateEntry(ec EntryContext) (*types.EntrySignal, string) {
	cfg := ec.Cfg
	g := ec.Game

	// 1. Config gate.
	if !cfg.Enabled || !cfg.AutoTrade {
		return nil, "trading disabled"
	}

	// 2. Kill switch.
	if ec.KillSwitchActive {
		return nil, "kill switch active"
	}

	// 3. Live gate: scoreboard, or market time when the scoreboard lags.
	if g.Status != types.StatusIn && !ec.MarketLive {
		return nil, "game not live"
	}

	// 4. Segment restriction.
	if !cfg.SegmentAllowed(g.Segment) {
		return nil, fmt.Sprintf("segment %s not allowed", g.Segment)
	}

	// 5. Time remaining floors.
	timeLeft := timeRemaining(g)
	if timeLeft < cfg.MinTimeRemainingSeconds {
		return nil, fmt.Sprintf("only %ds remaining", timeLeft)
	}
	if timeLeft < cfg.LatestEntryCutoff {
		return nil, "past latest entry cutoff"
	}

	// 6. Per-game position cap.
	if ec.OpenPositionsForMarket >= cfg.MaxPositionsPerGame {
		return nil, "max positions for game"
	}

	// 7. Risk budget.
	if ec.DailyPnL.LessThanOrEqual(ec.MaxDailyLoss.Neg()) {
		return nil, "daily loss limit reached"
	}
	if ec.OpenExposure.GreaterThanOrEqual(ec.MaxExposure) {
		return nil, "portfolio exposure limit reached"
	}

	// 8. Price condition, symmetric across sides.
	side, price, team, reason, ok := priceCondition(ec)
	if !ok {
		return nil, reason
	}

	// 9. Pre-game probability floor.
	if cfg.MinPregameProbability.GreaterThan(decimal.Zero) &&
		g.BaselineYes.LessThan(cfg.MinPregameProbability) {
		return nil, "baseline below pregame floor"
	}

	// 10. Single position per team.
	if ec.HasOpenTeamPosition != nil && ec.HasOpenTeamPosition(team) {
		return nil, "already have open position for team"
	}

	// 11. Confidence floor. Factors are scored from the entered side's view:
	// a NO entry sees the complement prices and the mirrored history.
	confBaseline, confCurrent := g.BaselineYes, g.CurrentYes
	history := ec.PriceHistory
	if side == types.SideNo {
		confBaseline = decimal.NewFromInt(1).Sub(g.BaselineYes)
		confCurrent = decimal.NewFromInt(1).Sub(g.CurrentYes)
		history = complementHistory(ec.PriceHistory)
	}
	conf := Score(ConfidenceInputs{
		Baseline:      confBaseline,
		Current:       confCurrent,
		TimeRemaining: timeLeft,
		Period:        g.Period,
		Volume24h:     ec.Volume24h,
		PriceHistory:  history,
		ScoreDiff:     scoreDiffFor(g, side),
		Spread:        ec.Spread,
	}, cfg.MinEntryConfidence)

	if conf.Score.LessThan(cfg.MinEntryConfidence) {
		return nil, fmt.Sprintf("confidence %s below floor", conf.Score.StringFixed(2))
	}

	size := entrySize(ec, price, conf.Score)
	if size < 1 {
		return nil, "sized to zero"
	}

	tokenID := g.Market.YesTokenID
	if side == types.SideNo {
		tokenID = g.Market.NoTokenID
	}

	sig := &types.EntrySignal{
		Side:       side,
		TokenID:    tokenID,
		Price:      price,
		Size:       size,
		Reason:     reason,
		Confidence: conf.Score,
		Breakdown:  conf.Breakdown,
		Team:       team,
	}

	log.Debug().
		Str("event", g.EventID).
		Str("side", string(side)).
		Str("price", price.StringFixed(2)).
		Int("size", size).
		Str("confidence", conf.Score.StringFixed(2)).
		Str("recommendation", conf.Recommendation).
		Msg("Entry signal")

	return sig, ""
}

// priceCondition checks the drop threshold and absolute-price trigger on
// the YES side, then symmetrically on NO. The user's team selection filters
// which sides are eligible.
func priceCondition(ec EntryContext) (types.Side, decimal.Decimal, string, string, bool) {
	cfg := ec.Cfg
	g := ec.Game

	if g.BaselineYes.IsZero() || g.CurrentYes.IsZero() {
		return "", decimal.Zero, "", "no baseline captured", false
	}

	yesDrop := g.BaselineYes.Sub(g.CurrentYes).Div(g.BaselineYes)
	baselineNo := decimal.NewFromInt(1).Sub(g.BaselineYes)
	currentNo := decimal.NewFromInt(1).Sub(g.CurrentYes)
	var noDrop decimal.Decimal
	if baselineNo.GreaterThan(decimal.Zero) {
		noDrop = baselineNo.Sub(currentNo).Div(baselineNo)
	}

	yesAllowed := g.Selection != types.SelectAway
	noAllowed := g.Selection != types.SelectHome

	yesTriggered := yesDrop.GreaterThanOrEqual(cfg.EntryThresholdDropPct) ||
		(cfg.AbsoluteEntryPrice.GreaterThan(decimal.Zero) && g.CurrentYes.LessThanOrEqual(cfg.AbsoluteEntryPrice))
	noTriggered := noDrop.GreaterThanOrEqual(cfg.EntryThresholdDropPct) ||
		(cfg.AbsoluteEntryPrice.GreaterThan(decimal.Zero) && currentNo.LessThanOrEqual(cfg.AbsoluteEntryPrice))

	if yesAllowed && yesTriggered {
		reason := fmt.Sprintf("YES price drop: %s%%", yesDrop.Mul(hundred).StringFixed(1))
		return types.SideYes, g.CurrentYes, g.Market.HomeTeam, reason, true
	}
	if noAllowed && noTriggered {
		reason := fmt.Sprintf("NO price drop: %s%%", noDrop.Mul(hundred).StringFixed(1))
		return types.SideNo, currentNo, g.Market.AwayTeam, reason, true
	}

	return "", decimal.Zero, "", "price condition not met", false
}

// entrySize picks default or Kelly sizing, then applies the losing-streak
// haircut.
func entrySize(ec EntryContext, price, confidence decimal.Decimal) int {
	var contracts int

	if ec.Cfg.UseKellySizing {
		res := Size(KellyParams{
			Bankroll:      ec.Bankroll,
			Price:         price,
			Confidence:    confidence,
			KellyFraction: ec.Cfg.KellyFraction,
			MaxKelly:      ec.MaxKelly,
			MinSize:       ec.MinSize,
			MaxSize:       ec.MaxSize,
			WinRate:       ec.WinRate,
			NumTrades:     ec.NumTrades,
		})
		contracts = res.Contracts
	} else {
		if price.IsZero() {
			return 0
		}
		contracts = int(ec.Cfg.DefaultPositionSize.Div(price).IntPart())
		if contracts < 1 {
			contracts = 1
		}
	}

	if ec.LosingStreak >= losingStreakTrigger && contracts > 1 {
		contracts /= 2
	}
	return contracts
}

func complementHistory(history []decimal.Decimal) []decimal.Decimal {
	if len(history) == 0 {
		return nil
	}
	out := make([]decimal.Decimal, len(history))
	for i, p := range history {
		out[i] = decimal.NewFromInt(1).Sub(p)
	}
	return out
}

func scoreDiffFor(g *types.TrackedGame, side types.Side) *int {
	if g.HomeScore == 0 && g.AwayScore == 0 && g.Period == 0 {
		return nil
	}
	diff := g.HomeScore - g.AwayScore
	if side == types.SideNo {
		diff = -diff
	}
	return &diff
}

func timeRemaining(g *types.TrackedGame) int {
	// TrackedGame mirrors the last parsed scoreboard state; the tracker
	// stores the estimate directly on the game.
	return g.TimeRemainingSeconds()
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXIT EVALUATION
// ═══════════════════════════════════════════════════════════════════════════════

// ExitContext is one exit evaluation for an open position.
type ExitContext struct {
	Cfg           types.EffectiveConfig
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal // price of the held token
	GameFinished  bool
	Segment       string
	TimeRemaining int
	EmergencyStop bool
}

// EvaluateExit checks exit conditions in priority order and returns the
// first that fires.
func EvaluateExit(xc ExitContext) (*types.ExitSignal, bool) {
	// 1. Emergency stop overrides everything.
	if xc.EmergencyStop {
		return &types.ExitSignal{Reason: types.ExitEmergencyStop, Price: xc.CurrentPrice}, true
	}

	if xc.EntryPrice.GreaterThan(decimal.Zero) && xc.CurrentPrice.GreaterThan(decimal.Zero) {
		change := xc.CurrentPrice.Sub(xc.EntryPrice).Div(xc.EntryPrice)

		// 2. Take profit.
		if change.GreaterThanOrEqual(xc.Cfg.TakeProfitPct) {
			return &types.ExitSignal{Reason: types.ExitTakeProfit, Price: xc.CurrentPrice}, true
		}

		// 3. Stop loss.
		if change.LessThanOrEqual(xc.Cfg.StopLossPct.Neg()) {
			return &types.ExitSignal{Reason: types.ExitStopLoss, Price: xc.CurrentPrice}, true
		}
	}

	// 4. Game over.
	if xc.GameFinished {
		return &types.ExitSignal{Reason: types.ExitGameFinished, Price: xc.CurrentPrice}, true
	}

	// 5. Segment restriction.
	if xc.Segment != "" && !xc.Cfg.SegmentAllowed(xc.Segment) {
		return &types.ExitSignal{Reason: types.ExitSegment, Price: xc.CurrentPrice}, true
	}

	// 6. Time cutoff.
	if xc.TimeRemaining > 0 && xc.TimeRemaining <= xc.Cfg.LatestExitCutoff {
		return &types.ExitSignal{Reason: types.ExitTime, Price: xc.CurrentPrice}, true
	}

	return nil, false
}
