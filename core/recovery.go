package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Runs once on start, before any loop. The store is the source of truth:
// every open position is re-adopted into the tracker so exit monitoring
// resumes, and persisted tracked markets are rebuilt. Nothing is traded
// during recovery.
//
// ═══════════════════════════════════════════════════════════════════════════════

func (o *Orchestrator) recover(ctx context.Context) error {
	positions, err := o.db.GetOpenPositions(o.userID)
	if err != nil {
		return err
	}

	for i := range positions {
		pos := &positions[i]

		tm, err := o.db.GetTrackedMarket(o.userID, pos.ConditionID)
		if err != nil {
			return err
		}

		g := gameFromRecord(pos, tm)
		// Add is a no-op on key collision; either way the position relinks.
		o.tracker.Add(g)
		o.tracker.SetPosition(g.EventID, pos.ID)

		log.Info().
			Str("position", pos.ID).
			Str("condition", pos.ConditionID).
			Str("team", pos.TeamName).
			Msg("♻️ Re-adopted open position")
	}

	selected, err := o.db.GetUserSelectedMarkets(o.userID)
	if err != nil {
		return err
	}
	for i := range selected {
		tm := &selected[i]
		o.adoptTracked(tm)
	}

	// Second selection source: condition ids pinned in the bot config
	// survive even when a tracked-market row was cleaned up.
	if gs, err := o.settings(); err == nil {
		for _, conditionID := range gs.SelectedGames() {
			tm, err := o.db.GetTrackedMarket(o.userID, conditionID)
			if err != nil || tm == nil {
				continue
			}
			o.adoptTracked(tm)
		}
	}

	// Refresh quotes for adopted games so exits have a current price.
	for _, g := range o.tracker.List() {
		if g.Market.Ticker == "" {
			continue
		}
		if q, err := o.ex.GetQuote(ctx, g.Market.Ticker); err == nil {
			yes := q.Last
			if yes.IsZero() {
				yes = q.YesAsk
			}
			if !yes.IsZero() {
				o.tracker.RecordPrice(g.EventID, yes)
				o.setLastPrice(g.Market.ConditionID, yes)
			}
		}
	}

	log.Info().
		Int("positions", len(positions)).
		Int("tracked", o.tracker.Len()).
		Msg("♻️ Recovery complete")
	return nil
}

// adoptTracked rebuilds and tracks a persisted market unless it is finished
// or already tracked.
func (o *Orchestrator) adoptTracked(tm *storage.TrackedMarket) {
	if tm.IsFinished {
		return
	}
	if _, tracked := o.tracker.GetByCondition(tm.ConditionID); tracked {
		return
	}
	o.tracker.Add(gameFromTracked(tm))
}

// gameFromRecord rebuilds a tracked game from a position row plus its
// tracked-market record, if one survived.
func gameFromRecord(pos *storage.Position, tm *storage.TrackedMarket) *types.TrackedGame {
	if tm != nil {
		g := gameFromTracked(tm)
		return g
	}
	// Minimal reconstruction: enough for exit monitoring.
	return &types.TrackedGame{
		EventID: pos.ConditionID,
		Sport:   pos.Sport,
		Market: types.Market{
			ConditionID: pos.ConditionID,
			Ticker:      pos.Ticker,
		},
		Selection: types.SelectAuto,
		Status:    types.StatusIn,
	}
}

func gameFromTracked(tm *storage.TrackedMarket) *types.TrackedGame {
	key := tm.ScoreboardEventID
	if key == "" {
		key = tm.ConditionID
	}
	status := types.StatusPre
	if tm.IsLive {
		status = types.StatusIn
	}
	if tm.IsFinished {
		status = types.StatusPost
	}
	return &types.TrackedGame{
		EventID:  key,
		Sport:    tm.Sport,
		HomeTeam: tm.HomeTeam,
		AwayTeam: tm.AwayTeam,
		Market: types.Market{
			ConditionID: tm.ConditionID,
			Ticker:      tm.Ticker,
			YesTokenID:  tm.YesTokenID,
			NoTokenID:   tm.NoTokenID,
			Question:    tm.Question,
			Sport:       tm.Sport,
			HomeTeam:    tm.HomeTeam,
			AwayTeam:    tm.AwayTeam,
			GameStart:   tm.GameStart,
		},
		Selection:   types.SelectAuto,
		BaselineYes: tm.BaselineYes,
		CurrentYes:  tm.CurrentYes,
		Status:      status,
	}
}
