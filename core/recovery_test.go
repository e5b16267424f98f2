package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/tracker"
	"github.com/sportsfade/fadebot/types"
)

func TestGameFromTrackedUsesScoreboardKey(t *testing.T) {
	tm := &storage.TrackedMarket{
		ConditionID:       "cond-1",
		Ticker:            "KXNBAGAME-26FEB07BOSMIA-BOS",
		Sport:             "nba",
		HomeTeam:          "Boston Celtics",
		AwayTeam:          "Miami Heat",
		BaselineYes:       decimal.NewFromFloat(0.65),
		CurrentYes:        decimal.NewFromFloat(0.52),
		ScoreboardEventID: "401585601",
		GameStart:         time.Now(),
		IsLive:            true,
	}

	g := gameFromTracked(tm)
	assert.Equal(t, "401585601", g.EventID)
	assert.Equal(t, types.StatusIn, g.Status)
	assert.True(t, g.BaselineYes.Equal(decimal.NewFromFloat(0.65)))
	assert.Equal(t, "cond-1", g.Market.ConditionID)
}

func TestGameFromTrackedFallsBackToConditionKey(t *testing.T) {
	tm := &storage.TrackedMarket{ConditionID: "cond-1", Sport: "nba"}
	g := gameFromTracked(tm)
	assert.Equal(t, "cond-1", g.EventID)
	assert.Equal(t, types.StatusPre, g.Status)
}

func TestGameFromRecordWithoutTrackedMarket(t *testing.T) {
	pos := &storage.Position{
		ID:          "pos-1",
		ConditionID: "cond-1",
		Ticker:      "KXNBAGAME-26FEB07BOSMIA-BOS",
		Sport:       "nba",
	}
	g := gameFromRecord(pos, nil)
	require.NotNil(t, g)
	assert.Equal(t, "cond-1", g.EventID)
	// Assume live so exit monitoring starts immediately.
	assert.Equal(t, types.StatusIn, g.Status)
	// The position row carries the ticker, so exits stay placeable.
	assert.Equal(t, "KXNBAGAME-26FEB07BOSMIA-BOS", g.Market.Ticker)
}

func TestAdoptTrackedSkipsFinishedAndDuplicates(t *testing.T) {
	o := &Orchestrator{tracker: tracker.New(4)}

	o.adoptTracked(&storage.TrackedMarket{ConditionID: "cond-done", Sport: "nba", IsFinished: true})
	assert.Zero(t, o.tracker.Len())

	o.adoptTracked(&storage.TrackedMarket{ConditionID: "cond-1", Sport: "nba"})
	o.adoptTracked(&storage.TrackedMarket{ConditionID: "cond-1", Sport: "nba"})
	assert.Equal(t, 1, o.tracker.Len())
}

func TestScoreboardEventIDSyntheticKey(t *testing.T) {
	g := &types.TrackedGame{
		EventID: "cond-1",
		Market:  types.Market{ConditionID: "cond-1"},
	}
	assert.Empty(t, scoreboardEventID(g))

	g.EventID = "401585601"
	assert.Equal(t, "401585601", scoreboardEventID(g))
}
