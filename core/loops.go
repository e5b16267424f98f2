package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/decision"
	"github.com/sportsfade/fadebot/discovery"
	"github.com/sportsfade/fadebot/internal/config"
	"github.com/sportsfade/fadebot/matcher"
	"github.com/sportsfade/fadebot/risk"
	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LOOP PASSES
// ═══════════════════════════════════════════════════════════════════════════════

func (o *Orchestrator) settings() (*storage.GlobalSettings, error) {
	return o.db.GetOrCreateSettings(o.userID, storage.GlobalSettings{
		BotEnabled:               true,
		MaxDailyLossUSDC:         o.cfg.MaxDailyLossUSDC,
		MaxPortfolioExposureUSDC: o.cfg.MaxPortfolioExposureUSDC,
		MaxSlippagePct:           o.cfg.MaxSlippagePct,
		OrderFillTimeoutSeconds:  int(o.cfg.OrderFillTimeout.Seconds()),
	})
}

// discoveryPass finds tradable markets, auto-tracks them when enabled, and
// resolves scoreboard event ids for games still keyed by condition id.
func (o *Orchestrator) discoveryPass(ctx context.Context) {
	gs, err := o.settings()
	if err != nil {
		log.Error().Err(err).Msg("Discovery: settings load failed")
		return
	}

	scanner := discovery.NewScanner(o.ex)
	markets, err := scanner.Discover(ctx)
	if err != nil {
		o.ks.RecordAPIError()
		log.Warn().Err(err).Msg("Discovery pass failed")
		return
	}

	if gs.AutoTradeAll {
		for _, m := range markets {
			if _, tracked := o.tracker.GetByCondition(m.ConditionID); tracked {
				continue
			}
			o.TrackGame(m, types.SelectAuto)
		}
	}

	o.resolveScoreboardIDs(ctx)
}

// resolveScoreboardIDs migrates condition-id-keyed games onto their real
// scoreboard event ids once a scoreboard match is found.
func (o *Orchestrator) resolveScoreboardIDs(ctx context.Context) {
	for _, g := range o.tracker.List() {
		if g.EventID != g.Market.ConditionID {
			continue // already resolved
		}
		events, err := o.scores.GetScoreboard(ctx, g.Sport)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if _, ok := matcher.Match(ev, g.Sport, []types.Market{g.Market}, ""); ok {
				oldKey := g.EventID
				if o.tracker.MigrateKey(oldKey, ev.ID) {
					// Persist the survivor, not the stale pointer: on a key
					// clash the migrated-into entry is the one that lives on.
					if ng, live := o.tracker.Get(ev.ID); live {
						o.persistTracked(ng, false)
					}
					log.Info().
						Str("condition", oldKey).
						Str("event", ev.ID).
						Msg("🔗 Market matched to scoreboard game")
				}
				break
			}
		}
	}
}

// scoreboardPass refreshes the live state of every resolved tracked game.
func (o *Orchestrator) scoreboardPass(ctx context.Context) {
	bySport := make(map[string][]*types.TrackedGame)
	for _, g := range o.tracker.List() {
		if g.EventID == g.Market.ConditionID {
			continue // unresolved, nothing to refresh
		}
		bySport[g.Sport] = append(bySport[g.Sport], g)
	}

	for sportID, games := range bySport {
		events, err := o.scores.GetScoreboard(ctx, sportID)
		if err != nil {
			log.Warn().Err(err).Str("sport", sportID).Msg("Scoreboard refresh failed")
			continue
		}
		byID := make(map[string]scoreboard.Event, len(events))
		for _, ev := range events {
			byID[ev.ID] = ev
		}

		for _, g := range games {
			ev, ok := byID[g.EventID]
			if !ok {
				// Off today's board; finished games drop off once scored.
				// The single-game summary still resolves them.
				sev, err := o.scores.GetGameSummary(ctx, sportID, g.EventID)
				if err != nil {
					continue
				}
				ev = sev
			}
			st := scoreboard.ParseGameState(ev, sportID)
			if o.tracker.ApplyState(g.EventID, &st) {
				log.Info().
					Str("event", g.EventID).
					Int("home", st.HomeScore).
					Int("away", st.AwayScore).
					Msg("🏁 Game finished")
				o.publish("game_finished", map[string]interface{}{
					"event_id": g.EventID, "home": st.HomeScore, "away": st.AwayScore,
				})
			}
		}
	}
}

// pricePass refreshes quotes for tracked games and captures baselines.
func (o *Orchestrator) pricePass(ctx context.Context) {
	for _, g := range o.tracker.List() {
		q, err := o.ex.GetQuote(ctx, g.Market.Ticker)
		if err != nil {
			o.ks.RecordAPIError()
			continue
		}

		yes := q.Last
		if yes.IsZero() {
			yes = q.YesAsk
		}
		if yes.IsZero() {
			continue
		}

		o.tracker.RecordPrice(g.EventID, yes)
		o.setLastPrice(g.Market.ConditionID, yes)
		o.publish("price_update", map[string]interface{}{
			"condition_id": g.Market.ConditionID,
			"yes":          yes.StringFixed(2),
		})
	}
}

// tradingPass is the hot loop: exits first, then entries.
func (o *Orchestrator) tradingPass(ctx context.Context) {
	gs, err := o.settings()
	if err != nil {
		return
	}
	sportCfgs, _ := o.db.GetSportConfigs(o.userID)
	marketCfgs, _ := o.db.GetMarketConfigs(o.userID)

	ksActive, _ := o.ks.Active()

	for _, g := range o.tracker.List() {
		cfg := o.effectiveFor(gs, sportCfgs, marketCfgs, g)

		if g.HasPosition {
			o.evaluateExit(g, cfg, gs)
			continue
		}

		if !o.entriesAllowed() || ksActive {
			continue
		}
		o.evaluateEntry(ctx, g, cfg, gs)
	}
}

func (o *Orchestrator) effectiveFor(gs *storage.GlobalSettings, sportCfgs map[string]storage.SportConfig, marketCfgs map[string]storage.MarketConfig, g *types.TrackedGame) types.EffectiveConfig {
	var sc *storage.SportConfig
	if s, ok := sportCfgs[g.Sport]; ok {
		sc = &s
	}
	var mc *storage.MarketConfig
	if m, ok := marketCfgs[g.Market.ConditionID]; ok {
		mc = &m
	}
	return storage.BuildEffectiveConfig(o.defaultTrading(), gs, sc, mc)
}

func (o *Orchestrator) defaultTrading() types.EffectiveConfig {
	return config.DefaultTrading()
}

func (o *Orchestrator) evaluateEntry(ctx context.Context, g *types.TrackedGame, cfg types.EffectiveConfig, gs *storage.GlobalSettings) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	dailyPnL, _ := o.db.DailyRealizedPnL(o.userID, dayStart)
	exposure, _ := o.db.OpenExposure(o.userID)
	openForMarket, _ := o.db.CountOpenForCondition(o.userID, g.Market.ConditionID)
	numTrades, winRate, _ := o.db.WinStats(o.userID)
	streak := gs.ConsecutiveLosses

	bankroll := decimal.Zero
	if bal, err := o.ex.GetBalance(ctx); err == nil {
		bankroll = bal.Available
	}

	ec := decision.EntryContext{
		Cfg:  cfg,
		Game: g,
		Now:  time.Now(),

		KillSwitchActive: false, // checked by the caller
		MarketLive:       discovery.PlausiblyLive(g.Market.GameStart, g.Sport, time.Now().UTC()),

		OpenPositionsForMarket: openForMarket,
		DailyPnL:               dailyPnL,
		MaxDailyLoss:           gs.MaxDailyLossUSDC,
		OpenExposure:           exposure,
		MaxExposure:            gs.MaxPortfolioExposureUSDC,

		HasOpenTeamPosition: func(team string) bool {
			has, _ := o.db.HasOpenTeamPosition(o.userID, team)
			return has
		},

		Bankroll:     bankroll,
		WinRate:      winRate,
		NumTrades:    numTrades,
		LosingStreak: streak,
		MinSize:      o.cfg.MinPositionSize,
		MaxSize:      o.cfg.MaxPositionSize,
		MaxKelly:     o.cfg.MaxKellyFraction,

		Volume24h:    g.Market.Volume24h,
		Spread:       g.Market.Spread,
		PriceHistory: g.PriceHistory,
	}

	sig, reason := decision.EvaluateEntry(ec)
	if sig == nil {
		if reason != "" && reason != "price condition not met" && reason != "trading disabled" {
			log.Debug().Str("event", g.EventID).Str("reason", reason).Msg("Entry rejected")
		}
		return
	}

	// Final account-level gate before the order goes out.
	cost := sig.Price.Mul(decimal.NewFromInt(int64(sig.Size)))
	sportPnL, _ := o.db.SportDailyPnL(o.userID, g.Sport, dayStart)
	sportOpen, _ := o.db.SportOpenCount(o.userID, g.Sport)
	sportCap, sportMaxOpen := o.sportLimits(g.Sport)

	ok, why := risk.Check(risk.GateInputs{
		OrderCost:        cost,
		DailyPnL:         dailyPnL,
		MaxDailyLoss:     gs.MaxDailyLossUSDC,
		OpenExposure:     exposure,
		MaxExposure:      gs.MaxPortfolioExposureUSDC,
		AvailableBalance: bankroll,
		Sport:            g.Sport,
		SportDailyPnL:    sportPnL,
		SportLossCap:     sportCap,
		SportOpenCount:   sportOpen,
		SportMaxOpen:     sportMaxOpen,
	})
	if !ok {
		log.Warn().Str("event", g.EventID).Str("reason", why).Msg("Risk gate rejected entry")
		o.db.LogActivity(o.userID, "warn", "risk", "entry rejected: "+why, nil, "")
		return
	}

	o.executeEntry(g, sig, gs)
}

func (o *Orchestrator) sportLimits(sport string) (decimal.Decimal, int) {
	cfgs, err := o.db.GetSportConfigs(o.userID)
	if err != nil {
		return decimal.Zero, 0
	}
	sc, ok := cfgs[sport]
	if !ok {
		return decimal.Zero, 0
	}
	cap := decimal.Zero
	if sc.DailyLossCapUSDC != nil {
		cap = *sc.DailyLossCapUSDC
	}
	maxOpen := 0
	if sc.MaxOpenPositions != nil {
		maxOpen = *sc.MaxOpenPositions
	}
	return cap, maxOpen
}

func (o *Orchestrator) evaluateExit(g *types.TrackedGame, cfg types.EffectiveConfig, gs *storage.GlobalSettings) {
	pos, err := o.db.GetPosition(g.PositionID)
	if err != nil || pos == nil {
		log.Warn().Str("position", g.PositionID).Msg("Tracked position missing from store")
		o.tracker.SetPosition(g.EventID, "")
		return
	}
	if pos.Status != "open" {
		o.tracker.SetPosition(g.EventID, "")
		return
	}

	// Price of the held token.
	current := g.CurrentYes
	if pos.Side == string(types.SideNo) {
		current = decimal.NewFromInt(1).Sub(g.CurrentYes)
	}

	sig, fire := decision.EvaluateExit(decision.ExitContext{
		Cfg:           cfg,
		EntryPrice:    pos.EntryPrice,
		CurrentPrice:  current,
		GameFinished:  g.Status == types.StatusPost,
		Segment:       g.Segment,
		TimeRemaining: g.TimeRemaining,
		EmergencyStop: gs.EmergencyStop,
	})
	if !fire {
		return
	}

	o.executeExit(g, pos, sig, gs)
}

// healthPass checks account balance, breaker state, and loop liveness, and
// auto-pauses when the daily loss budget is spent.
func (o *Orchestrator) healthPass(ctx context.Context) {
	if bal, err := o.ex.GetBalance(ctx); err != nil {
		if errors.Is(err, types.ErrAuth) {
			// Credentials are bad; retrying only burns the error budget.
			log.Error().Err(err).Msg("Health: exchange authentication failed")
			o.notify("🚨 Exchange authentication failed, trading paused")
			o.Pause("exchange authentication failure")
		} else {
			o.ks.RecordAPIError()
			log.Warn().Err(err).Msg("Health: balance check failed")
		}
	} else {
		log.Debug().
			Str("available", bal.Available.StringFixed(2)).
			Str("breaker", o.ex.BreakerState()).
			Int("tracked", o.tracker.Len()).
			Msg("💓 Health")
	}

	o.beatMu.Lock()
	now := time.Now()
	for name, last := range o.beats {
		if age := now.Sub(last); age > 5*time.Minute {
			log.Error().Str("loop", name).Dur("age", age).Msg("Loop heartbeat stale")
		}
	}
	o.beatMu.Unlock()

	gs, err := o.settings()
	if err != nil {
		return
	}
	if gs.MaxDailyLossUSDC.GreaterThan(decimal.Zero) {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		pnl, err := o.db.DailyRealizedPnL(o.userID, dayStart)
		if err != nil {
			return
		}
		overLimit := pnl.LessThanOrEqual(gs.MaxDailyLossUSDC.Neg())

		switch {
		case o.State() == StateRunning && overLimit:
			o.mu.Lock()
			o.dailyLossPaused = true
			o.mu.Unlock()
			o.Pause(fmt.Sprintf("daily loss limit reached (%s)", pnl.StringFixed(2)))
		case o.State() == StatePaused && !overLimit:
			// Day rolled over; the budget is back.
			o.mu.RLock()
			autoPaused := o.dailyLossPaused
			o.mu.RUnlock()
			if autoPaused {
				log.Info().Str("user", o.userID).Msg("▶ Daily loss budget reset, resuming")
				o.Resume()
			}
		}
	}
}

// cleanupPass drops stale games and finished games with no open position.
func (o *Orchestrator) cleanupPass(_ context.Context) {
	removed := 0
	for _, g := range o.tracker.Stale(o.cfg.StaleGameAfter) {
		o.tracker.Remove(g.EventID)
		removed++
	}
	for _, g := range o.tracker.List() {
		if g.Status == types.StatusPost && !g.HasPosition {
			o.persistTracked(g, false)
			o.tracker.Remove(g.EventID)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("tracked", o.tracker.Len()).Msg("🧹 Cleanup")
	}
}

// killSwitchPass evaluates account-level triggers. A trip closes everything
// and pauses until a manual reset.
func (o *Orchestrator) killSwitchPass(_ context.Context) {
	gs, err := o.settings()
	if err != nil {
		return
	}

	tripped, reason := o.ks.Check(gs.MaxDailyLossUSDC)
	if !tripped {
		return
	}

	o.notify(fmt.Sprintf("🚨 KILL SWITCH: %s. Closing all positions.", reason))
	o.publish("kill_switch", map[string]string{"reason": reason})
	o.closeAll(types.ExitKillSwitch)
	o.Pause("kill switch: " + reason)
}
