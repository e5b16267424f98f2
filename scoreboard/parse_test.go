package scoreboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGameStateNBA(t *testing.T) {
	ev := Event{
		ID:           "401585601",
		State:        "in",
		Period:       2,
		DisplayClock: "5:30",
		HomeTeam:     "Boston Celtics",
		AwayTeam:     "Miami Heat",
		HomeScore:    38,
		AwayScore:    45,
	}

	gs := ParseGameState(ev, "nba")
	assert.True(t, gs.IsLive)
	assert.False(t, gs.IsFinished)
	assert.Equal(t, "q2", gs.Segment)
	// 5:30 left in Q2 plus two full 12min quarters.
	assert.Equal(t, 330+2*12*60, gs.TimeRemaining)
	assert.Equal(t, 38, gs.HomeScore)
	assert.Equal(t, 45, gs.AwayScore)
}

func TestParseGameStateFinished(t *testing.T) {
	gs := ParseGameState(Event{ID: "e", State: "post", Period: 4}, "nba")
	assert.True(t, gs.IsFinished)
	assert.False(t, gs.IsLive)

	// Completed flag alone also finishes.
	gs = ParseGameState(Event{ID: "e", State: "in", Completed: true, Period: 4}, "nba")
	assert.True(t, gs.IsFinished)
}

func TestParseGameStateOvertime(t *testing.T) {
	gs := ParseGameState(Event{State: "in", Period: 5, DisplayClock: "3:00"}, "nba")
	assert.Equal(t, "ot", gs.Segment)
	// Overtime: only the current clock counts.
	assert.Equal(t, 180, gs.TimeRemaining)
}

func TestParseGameStateUnknownSport(t *testing.T) {
	gs := ParseGameState(Event{State: "in", Period: 2, DisplayClock: "5:00"}, "curling")
	assert.True(t, gs.IsLive)
	assert.Empty(t, gs.Segment)
	assert.Zero(t, gs.TimeRemaining)
}

func TestSegmentLabels(t *testing.T) {
	nhl, _ := GetSport("nhl")
	assert.Equal(t, "p1", segmentLabel(nhl, 1, ""))
	assert.Equal(t, "ot", segmentLabel(nhl, 4, ""))

	ncaam, _ := GetSport("ncaam")
	assert.Equal(t, "h2", segmentLabel(ncaam, 2, ""))
	assert.Equal(t, "ot", segmentLabel(ncaam, 3, ""))

	epl, _ := GetSport("epl")
	assert.Equal(t, "h1", segmentLabel(epl, 1, ""))
	assert.Equal(t, "et", segmentLabel(epl, 3, ""))

	mlb, _ := GetSport("mlb")
	assert.Equal(t, "i7", segmentLabel(mlb, 7, ""))

	nba, _ := GetSport("nba")
	assert.Empty(t, segmentLabel(nba, 0, ""))
}

func TestParseGameStateHalfInning(t *testing.T) {
	gs := ParseGameState(Event{State: "in", Period: 7, DisplayClock: "Top 7th"}, "mlb")
	assert.Equal(t, "i7", gs.Segment)
	assert.Equal(t, "top", gs.HalfInning)

	gs = ParseGameState(Event{State: "in", Period: 3, DisplayClock: "Bot 3rd"}, "mlb")
	assert.Equal(t, "bottom", gs.HalfInning)

	gs = ParseGameState(Event{State: "in", Period: 5, DisplayClock: "Mid 5th"}, "mlb")
	assert.Equal(t, "break", gs.HalfInning)

	// Clock-sport displays never produce a half inning.
	gs = ParseGameState(Event{State: "in", Period: 2, DisplayClock: "5:30"}, "nba")
	assert.Empty(t, gs.HalfInning)
}

func TestParseCountdownClock(t *testing.T) {
	assert.Equal(t, 330, parseCountdownClock("5:30"))
	assert.Equal(t, 42, parseCountdownClock("42.3"))
	assert.Equal(t, 754, parseCountdownClock("12:34.5"))
	assert.Equal(t, 0, parseCountdownClock(""))
	assert.Equal(t, 0, parseCountdownClock("END"))
}

func TestParseSoccerClock(t *testing.T) {
	// First half.
	assert.Equal(t, 23*60, parseSoccerClock("23'", 1))
	// Stoppage time counts as the base minute.
	assert.Equal(t, 45*60, parseSoccerClock("45+3'", 1))
	// Second half includes the +45 offset already.
	assert.Equal(t, 67*60, parseSoccerClock("67'", 2))
	// Feed that resets per half gets the offset added back.
	assert.Equal(t, 45*60+22*60, parseSoccerClock("22'", 2))
	// Empty clock at halftime.
	assert.Equal(t, 45*60, parseSoccerClock("", 2))
}

func TestEstimateTimeRemainingSoccer(t *testing.T) {
	epl, _ := GetSport("epl")
	// 67 minutes elapsed of 90.
	assert.Equal(t, 23*60, estimateTimeRemaining(epl, 2, "67'"))
	// Deep stoppage never goes negative.
	assert.Equal(t, 0, estimateTimeRemaining(epl, 2, "90+4'"))
}

func TestEstimateTimeRemainingInnings(t *testing.T) {
	mlb, _ := GetSport("mlb")
	ninth := estimateTimeRemaining(mlb, 9, "")
	third := estimateTimeRemaining(mlb, 3, "")
	assert.Greater(t, third, ninth)
	assert.Greater(t, ninth, 0)
}

func TestEstimateTimeRemainingPregame(t *testing.T) {
	nba, _ := GetSport("nba")
	require.Equal(t, 4*12*60, estimateTimeRemaining(nba, 0, ""))
}
