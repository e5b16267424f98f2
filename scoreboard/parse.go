package scoreboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sportsfade/fadebot/types"
)

// ParseGameState normalizes a raw scoreboard event into the shared game
// state: segment label, estimated seconds remaining, live/finished flags.
func ParseGameState(ev Event, sportID string) types.GameState {
	sport, known := GetSport(sportID)

	gs := types.GameState{
		EventID:      ev.ID,
		Sport:        sportID,
		IsLive:       ev.State == "in",
		IsFinished:   ev.State == "post" || ev.Completed,
		Period:       ev.Period,
		ClockDisplay: ev.DisplayClock,
		HomeTeam:     ev.HomeTeam,
		AwayTeam:     ev.AwayTeam,
		HomeScore:    ev.HomeScore,
		AwayScore:    ev.AwayScore,
		StartTime:    ev.Date,
	}

	if !known {
		return gs
	}

	gs.Segment = segmentLabel(sport, ev.Period, ev.DisplayClock)
	gs.TimeRemaining = estimateTimeRemaining(sport, ev.Period, ev.DisplayClock)
	if sport.Scheme == SchemeInnings {
		gs.HalfInning = halfInning(ev.DisplayClock)
	}
	return gs
}

// halfInning reads the inning half out of a baseball clock display like
// "Top 7th" or "Bot 3rd".
func halfInning(clock string) string {
	c := strings.ToLower(strings.TrimSpace(clock))
	switch {
	case strings.HasPrefix(c, "top"):
		return "top"
	case strings.HasPrefix(c, "bot"):
		return "bottom"
	case strings.HasPrefix(c, "mid"), strings.HasPrefix(c, "end"):
		return "break"
	}
	return ""
}

// segmentLabel maps a raw period number to the sport's normalized label.
func segmentLabel(sport Sport, period int, clock string) string {
	if period <= 0 {
		return ""
	}

	switch sport.Scheme {
	case SchemeQuarters:
		if period > 4 {
			return "ot"
		}
		return fmt.Sprintf("q%d", period)
	case SchemeHalves:
		if period > 2 {
			return "ot"
		}
		return fmt.Sprintf("h%d", period)
	case SchemePeriods:
		if period > 3 {
			return "ot"
		}
		return fmt.Sprintf("p%d", period)
	case SchemeSoccer:
		if period > 2 {
			return "et"
		}
		return fmt.Sprintf("h%d", period)
	case SchemeInnings:
		// Top/bottom is carried in the clock display ("Top 3rd"); the
		// segment label is just the inning number.
		return fmt.Sprintf("i%d", period)
	}
	return ""
}

// estimateTimeRemaining is remaining-in-period plus all remaining full
// periods at the sport's period length. Overtime estimates only the current
// period's clock.
func estimateTimeRemaining(sport Sport, period int, clock string) int {
	if period <= 0 {
		return sport.Periods * sport.PeriodLength
	}

	switch sport.Scheme {
	case SchemeSoccer:
		// Soccer clocks count up; elapsed minutes include the +45 offset
		// in the second half.
		elapsed := parseSoccerClock(clock, period)
		total := sport.Periods * sport.PeriodLength
		remaining := total - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return remaining

	case SchemeInnings:
		// No game clock. Estimate remaining innings at the rough
		// per-inning length; a game in the 9th reports one inning left.
		remaining := sport.Periods - period
		if remaining < 0 {
			remaining = 0
		}
		return (remaining + 1) * sport.PeriodLength / 2

	default:
		inPeriod := parseCountdownClock(clock)
		fullRemaining := sport.Periods - period
		if fullRemaining < 0 {
			fullRemaining = 0 // overtime
		}
		return inPeriod + fullRemaining*sport.PeriodLength
	}
}

// parseCountdownClock parses "MM:SS" (or "SS.s" in the final minute) into
// seconds remaining in the period.
func parseCountdownClock(clock string) int {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return 0
	}

	if strings.Contains(clock, ":") {
		parts := strings.SplitN(clock, ":", 2)
		m, err1 := strconv.Atoi(parts[0])
		s, err2 := strconv.Atoi(strings.SplitN(parts[1], ".", 2)[0])
		if err1 != nil || err2 != nil {
			return 0
		}
		return m*60 + s
	}

	// Sub-minute clocks come through as "42.3".
	if f, err := strconv.ParseFloat(clock, 64); err == nil {
		return int(f)
	}
	return 0
}

// parseSoccerClock converts a count-up display like "67'" or "23:14" into
// elapsed seconds of the match. Second-half clocks already include +45.
func parseSoccerClock(clock string, period int) int {
	clock = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(clock), "'"))
	if clock == "" {
		if period >= 2 {
			return 45 * 60
		}
		return 0
	}

	// Stoppage time "45+2" counts as the base minute.
	if i := strings.Index(clock, "+"); i > 0 {
		clock = clock[:i]
	}

	var elapsed int
	if strings.Contains(clock, ":") {
		elapsed = parseCountdownClock(clock) // same MM:SS shape, counting up
	} else if m, err := strconv.Atoi(clock); err == nil {
		elapsed = m * 60
	}

	// Guard against feeds that reset the clock per half.
	if period >= 2 && elapsed < 45*60 {
		elapsed += 45 * 60
	}
	return elapsed
}
