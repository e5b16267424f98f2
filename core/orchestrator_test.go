package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportsfade/fadebot/exchange"
	"github.com/sportsfade/fadebot/internal/config"
	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/types"
)

func coreTestDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func testExchange(t *testing.T, handler http.Handler) *exchange.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ex, err := exchange.NewClient(exchange.Options{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(ex.Close)
	return ex
}

func testOrchestrator(t *testing.T, ex *exchange.Client, scores *scoreboard.Client) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		MaxTrackedGames:  10,
		OrderFillTimeout: 5 * time.Second,
		ShutdownBudget:   time.Second,
	}
	return NewOrchestrator("u1", cfg, ex, scores, coreTestDB(t), nil, nil)
}

func TestExecutionContextOutlivesPassBudget(t *testing.T) {
	fillTimeout := 60 * time.Second

	ctx, cancel := executionContext(fillTimeout)
	defer cancel()

	dl, ok := ctx.Deadline()
	require.True(t, ok)
	// The trading pass budget is one second; the order lifecycle must get
	// the whole configured fill wait regardless.
	assert.Greater(t, time.Until(dl), fillTimeout)
}

func TestRecordOrphanTripsKillSwitch(t *testing.T) {
	o := testOrchestrator(t, testExchange(t, http.NotFoundHandler()), scoreboard.NewClient("", time.Minute))

	o.recordOrphan("entry", "ord-1", "corr-1")

	tripped, reason := o.ks.Check(decimal.Zero)
	assert.True(t, tripped)
	assert.Contains(t, reason, "orphaned")

	logs, err := o.db.RecentActivity("u1", 10)
	require.NoError(t, err)
	found := false
	for _, l := range logs {
		if l.Category == "execution" && l.Message == "orphaned entry order" {
			found = true
		}
	}
	assert.True(t, found, "orphan must leave an activity row")
}

func TestEmergencyStopShutsLoopsDown(t *testing.T) {
	o := testOrchestrator(t, testExchange(t, http.NotFoundHandler()), scoreboard.NewClient("", time.Minute))
	o.state = StateRunning
	o.stopCh = make(chan struct{})

	o.EmergencyStop()

	assert.Equal(t, StateStopped, o.State())

	gs, err := o.db.GetOrCreateSettings("u1", storage.GlobalSettings{})
	require.NoError(t, err)
	assert.True(t, gs.EmergencyStop)
}

func TestHealthPassPausesOnAuthFailure(t *testing.T) {
	ex := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	o := testOrchestrator(t, ex, scoreboard.NewClient("", time.Minute))
	o.state = StateRunning

	o.healthPass(context.Background())

	assert.Equal(t, StatePaused, o.State(), "bad credentials must pause, not retry forever")
}

func TestCloseAllUsesPersistedTicker(t *testing.T) {
	var placedTicker string
	ex := testExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/portfolio/orders":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			placedTicker, _ = payload["ticker"].(string)
			json.NewEncoder(w).Encode(map[string]string{"order_id": "ord-x"})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"order": map[string]interface{}{"order_id": "ord-x", "status": "filled"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	o := testOrchestrator(t, ex, scoreboard.NewClient("", time.Minute))

	// Open position whose game is no longer tracked; only the stored row
	// knows the ticker.
	pos, err := o.db.CreateIfAbsent(storage.CreatePositionParams{
		UserID:      "u1",
		ConditionID: "cond-1",
		Ticker:      "KXNBAGAME-26FEB07BOSMIA-BOS",
		TokenID:     "tok-yes",
		Side:        types.SideYes,
		TeamName:    "Boston Celtics",
		Sport:       "nba",
		EntryPrice:  decimal.NewFromFloat(0.52),
		EntrySize:   10,
	})
	require.NoError(t, err)

	o.closeAll(types.ExitKillSwitch)

	assert.Equal(t, "KXNBAGAME-26FEB07BOSMIA-BOS", placedTicker)

	closed, err := o.db.GetPosition(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", closed.Status)
	assert.Equal(t, string(types.ExitKillSwitch), closed.ExitReason)
}

func espnScoreboard(eventID, home, away string) string {
	return fmt.Sprintf(`{"events":[{"id":%q,"date":"2026-02-07T00:00Z","name":"%s at %s","competitions":[{"competitors":[{"homeAway":"home","score":"0","team":{"displayName":%q}},{"homeAway":"away","score":"0","team":{"displayName":%q}}],"status":{"period":0,"displayClock":"","type":{"state":"pre","completed":false}}}]}]}`,
		eventID, away, home, home, away)
}

func trackedNBAGame(key, conditionID string) *types.TrackedGame {
	return &types.TrackedGame{
		EventID:  key,
		Sport:    "nba",
		HomeTeam: "Boston Celtics",
		AwayTeam: "Miami Heat",
		Market: types.Market{
			ConditionID: conditionID,
			Ticker:      "KXNBAGAME-26FEB07BOSMIA-BOS",
			Sport:       "nba",
			HomeTeam:    "Boston Celtics",
			AwayTeam:    "Miami Heat",
		},
		Status:  types.StatusPre,
		AddedAt: time.Now(),
	}
}

func TestResolveScoreboardIDsPersistsNewKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, espnScoreboard("401585601", "Boston Celtics", "Miami Heat"))
	}))
	t.Cleanup(srv.Close)

	o := testOrchestrator(t, testExchange(t, http.NotFoundHandler()), scoreboard.NewClient(srv.URL, time.Minute))
	require.True(t, o.tracker.Add(trackedNBAGame("cond-1", "cond-1")))

	o.resolveScoreboardIDs(context.Background())

	_, live := o.tracker.Get("401585601")
	assert.True(t, live, "game must be re-keyed to the scoreboard event")

	tm, err := o.db.GetTrackedMarket("u1", "cond-1")
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "401585601", tm.ScoreboardEventID)
}

func TestResolveScoreboardIDsClashPersistsSurvivor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, espnScoreboard("401585601", "Boston Celtics", "Miami Heat"))
	}))
	t.Cleanup(srv.Close)

	o := testOrchestrator(t, testExchange(t, http.NotFoundHandler()), scoreboard.NewClient(srv.URL, time.Minute))

	// An already-resolved entry and a stale condition-keyed duplicate.
	require.True(t, o.tracker.Add(trackedNBAGame("401585601", "cond-1")))
	require.True(t, o.tracker.Add(trackedNBAGame("cond-1", "cond-1")))

	o.resolveScoreboardIDs(context.Background())

	// The surviving entry, not the stale pointer, is what gets persisted.
	tm, err := o.db.GetTrackedMarket("u1", "cond-1")
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "401585601", tm.ScoreboardEventID)
}
