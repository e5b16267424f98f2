package scoreboard

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScoreboardJSON = `{"events":[{"id":"401585601","date":"2026-02-07T00:30Z","name":"Miami Heat at Boston Celtics","competitions":[{"competitors":[{"homeAway":"home","score":"38","team":{"displayName":"Boston Celtics"}},{"homeAway":"away","score":"45","team":{"displayName":"Miami Heat"}}],"status":{"period":2,"displayClock":"5:30","type":{"state":"in","completed":false}}}]}]}`

func TestGetScoreboardParsesEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Contains(t, r.URL.Path, "basketball/nba/scoreboard")
		fmt.Fprint(w, testScoreboardJSON)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Minute)
	events, err := c.GetScoreboard(context.Background(), "nba")
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "401585601", ev.ID)
	assert.Equal(t, "in", ev.State)
	assert.Equal(t, 2, ev.Period)
	assert.Equal(t, "5:30", ev.DisplayClock)
	assert.Equal(t, "Boston Celtics", ev.HomeTeam)
	assert.Equal(t, 38, ev.HomeScore)
	assert.Equal(t, "Miami Heat", ev.AwayTeam)
	assert.Equal(t, 45, ev.AwayScore)

	// Second call within the TTL is served from cache.
	_, err = c.GetScoreboard(context.Background(), "nba")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetScoreboardCollegeGroupsParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("groups"))
		fmt.Fprint(w, `{"events":[]}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Minute)
	_, err := c.GetScoreboard(context.Background(), "ncaam")
	require.NoError(t, err)
}

func TestGetScoreboardUnknownSport(t *testing.T) {
	c := NewClient("http://localhost:1", time.Minute)
	_, err := c.GetScoreboard(context.Background(), "curling")
	assert.Error(t, err)
}

func TestGetGameSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "401585601", r.URL.Query().Get("event"))
		fmt.Fprint(w, testScoreboardJSON)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, time.Minute)
	ev, err := c.GetGameSummary(context.Background(), "nba", "401585601")
	require.NoError(t, err)
	assert.Equal(t, "401585601", ev.ID)
	assert.Equal(t, "in", ev.State)

	// Requesting a game the feed does not return is a match failure, not a
	// transport error.
	_, err = c.GetGameSummary(context.Background(), "nba", "999")
	assert.Error(t, err)
}
