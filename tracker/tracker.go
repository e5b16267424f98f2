package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// GAME TRACKER
// ═══════════════════════════════════════════════════════════════════════════════
//
// In-memory registry of games the orchestrator follows, keyed by scoreboard
// event id. Until discovery resolves the scoreboard event the key is the
// market's condition id; MigrateKey moves the entry without losing position
// state.
//
// ═══════════════════════════════════════════════════════════════════════════════

// priceHistoryCap bounds the trend window.
const priceHistoryCap = 30

type Tracker struct {
	mu    sync.RWMutex
	games map[string]*types.TrackedGame
	max   int
}

func New(maxGames int) *Tracker {
	return &Tracker{
		games: make(map[string]*types.TrackedGame),
		max:   maxGames,
	}
}

// Add registers a game. Returns false when the key exists or the tracker is
// full.
func (t *Tracker) Add(g *types.TrackedGame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.games[g.EventID]; ok {
		return false
	}
	if len(t.games) >= t.max {
		log.Warn().Int("max", t.max).Msg("Tracker full, game not added")
		return false
	}
	if g.AddedAt.IsZero() {
		g.AddedAt = time.Now()
	}
	t.games[g.EventID] = g
	log.Info().
		Str("event", g.EventID).
		Str("matchup", g.AwayTeam+" @ "+g.HomeTeam).
		Str("sport", g.Sport).
		Msg("🎯 Tracking game")
	return true
}

// Get returns a copy-safe pointer; callers mutate only via tracker methods.
func (t *Tracker) Get(eventID string) (*types.TrackedGame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.games[eventID]
	return g, ok
}

// GetByCondition finds the game tracking a market.
func (t *Tracker) GetByCondition(conditionID string) (*types.TrackedGame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.games {
		if g.Market.ConditionID == conditionID {
			return g, true
		}
	}
	return nil, false
}

// Remove drops a game.
func (t *Tracker) Remove(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.games, eventID)
}

// List snapshots the tracked games.
func (t *Tracker) List() []*types.TrackedGame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*types.TrackedGame, 0, len(t.games))
	for _, g := range t.games {
		out = append(out, g)
	}
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.games)
}

// MigrateKey rekeys a game from a synthetic condition-id key to its resolved
// scoreboard event id, preserving position linkage.
func (t *Tracker) MigrateKey(oldKey, newKey string) bool {
	if oldKey == newKey {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[oldKey]
	if !ok {
		return false
	}
	if existing, clash := t.games[newKey]; clash {
		// A scoreboard-keyed entry already exists; keep whichever holds a
		// position so recovery never detaches an open position.
		if g.HasPosition && !existing.HasPosition {
			existing.HasPosition = g.HasPosition
			existing.PositionID = g.PositionID
		}
		delete(t.games, oldKey)
		return true
	}
	g.EventID = newKey
	t.games[newKey] = g
	delete(t.games, oldKey)
	log.Debug().Str("from", oldKey).Str("to", newKey).Msg("Tracker key migrated")
	return true
}

// ApplyState folds a parsed scoreboard state into the tracked game.
// Returns true when the game just transitioned to finished.
func (t *Tracker) ApplyState(eventID string, st *types.GameState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[eventID]
	if !ok {
		return false
	}

	wasFinished := g.Status == types.StatusPost

	switch {
	case st.IsFinished:
		g.Status = types.StatusPost
	case st.IsLive:
		g.Status = types.StatusIn
	default:
		g.Status = types.StatusPre
	}
	g.Period = st.Period
	g.Segment = st.Segment
	g.Clock = st.ClockDisplay
	g.TimeRemaining = st.TimeRemaining
	g.HomeScore = st.HomeScore
	g.AwayScore = st.AwayScore
	g.LastUpdated = time.Now()

	return !wasFinished && g.Status == types.StatusPost
}

// RecordPrice updates the current yes price and appends to the trend
// window. Captures the baseline on the first pre-game observation.
func (t *Tracker) RecordPrice(eventID string, yes decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[eventID]
	if !ok {
		return
	}
	if g.BaselineYes.IsZero() && g.Status == types.StatusPre && yes.GreaterThan(decimal.Zero) {
		g.BaselineYes = yes
		log.Info().
			Str("event", g.EventID).
			Str("baseline", yes.StringFixed(2)).
			Msg("📌 Baseline captured")
	}
	g.CurrentYes = yes
	g.PriceHistory = append(g.PriceHistory, yes)
	if len(g.PriceHistory) > priceHistoryCap {
		g.PriceHistory = g.PriceHistory[len(g.PriceHistory)-priceHistoryCap:]
	}
	g.LastUpdated = time.Now()
}

// SetPosition links or clears the open position on a game.
func (t *Tracker) SetPosition(eventID, positionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[eventID]
	if !ok {
		return
	}
	g.HasPosition = positionID != ""
	g.PositionID = positionID
}

// Stale returns games without updates for longer than maxAge and with no
// open position, candidates for cleanup.
func (t *Tracker) Stale(maxAge time.Duration) []*types.TrackedGame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := time.Now().Add(-maxAge)
	var out []*types.TrackedGame
	for _, g := range t.games {
		ref := g.LastUpdated
		if ref.IsZero() {
			ref = g.AddedAt
		}
		if ref.Before(cutoff) && !g.HasPosition {
			out = append(out, g)
		}
	}
	return out
}
