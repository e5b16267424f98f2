package scoreboard

import "time"

// ═══════════════════════════════════════════════════════════════════════════════
// SPORT REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Adding a league is a table entry, not code. Segment labels, period counts
// and lengths, the scoreboard group parameter, and the plausible maximum
// game duration (used by the ticker-time liveness fallback) all live here.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SegmentScheme selects how periods map to normalized segment labels.
type SegmentScheme int

const (
	SchemeQuarters SegmentScheme = iota // q1..q4
	SchemeHalves                        // h1, h2
	SchemePeriods                       // p1..p3
	SchemeSoccer                        // h1, h2 with count-up clock
	SchemeInnings                       // i1..i9 with top/bottom
)

// Sport describes one league's scoreboard shape.
type Sport struct {
	ID           string
	LeaguePath   string // scoreboard API path segment
	Scheme       SegmentScheme
	Periods      int
	PeriodLength int    // seconds of game clock per period
	GroupID      string // college sports: fetch all games, not just ranked
	MaxDuration  time.Duration
}

var registry = map[string]Sport{
	"nba": {
		ID: "nba", LeaguePath: "basketball/nba",
		Scheme: SchemeQuarters, Periods: 4, PeriodLength: 12 * 60,
		MaxDuration: 3 * time.Hour,
	},
	"wnba": {
		ID: "wnba", LeaguePath: "basketball/wnba",
		Scheme: SchemeQuarters, Periods: 4, PeriodLength: 10 * 60,
		MaxDuration: 3 * time.Hour,
	},
	"ncaam": {
		ID: "ncaam", LeaguePath: "basketball/mens-college-basketball",
		Scheme: SchemeHalves, Periods: 2, PeriodLength: 20 * 60,
		GroupID: "50", MaxDuration: 3 * time.Hour,
	},
	"ncaaw": {
		ID: "ncaaw", LeaguePath: "basketball/womens-college-basketball",
		Scheme: SchemeHalves, Periods: 2, PeriodLength: 20 * 60,
		GroupID: "50", MaxDuration: 3 * time.Hour,
	},
	"nfl": {
		ID: "nfl", LeaguePath: "football/nfl",
		Scheme: SchemeQuarters, Periods: 4, PeriodLength: 15 * 60,
		MaxDuration: 4 * time.Hour,
	},
	"cfb": {
		ID: "cfb", LeaguePath: "football/college-football",
		Scheme: SchemeQuarters, Periods: 4, PeriodLength: 15 * 60,
		GroupID: "80", MaxDuration: 4 * time.Hour,
	},
	"nhl": {
		ID: "nhl", LeaguePath: "hockey/nhl",
		Scheme: SchemePeriods, Periods: 3, PeriodLength: 20 * 60,
		MaxDuration: 3 * time.Hour,
	},
	"mlb": {
		ID: "mlb", LeaguePath: "baseball/mlb",
		Scheme: SchemeInnings, Periods: 9, PeriodLength: 20 * 60, // innings have no clock; rough estimate
		MaxDuration: 4 * time.Hour,
	},
	"epl": {
		ID: "epl", LeaguePath: "soccer/eng.1",
		Scheme: SchemeSoccer, Periods: 2, PeriodLength: 45 * 60,
		MaxDuration: 3 * time.Hour,
	},
	"laliga": {
		ID: "laliga", LeaguePath: "soccer/esp.1",
		Scheme: SchemeSoccer, Periods: 2, PeriodLength: 45 * 60,
		MaxDuration: 3 * time.Hour,
	},
	"mls": {
		ID: "mls", LeaguePath: "soccer/usa.1",
		Scheme: SchemeSoccer, Periods: 2, PeriodLength: 45 * 60,
		MaxDuration: 3 * time.Hour,
	},
}

// GetSport looks up a league by id.
func GetSport(id string) (Sport, bool) {
	s, ok := registry[id]
	return s, ok
}

// MaxGameDuration returns the plausible maximum wall-clock duration for a
// sport, defaulting to 4h for unknown leagues.
func MaxGameDuration(id string) time.Duration {
	if s, ok := registry[id]; ok {
		return s.MaxDuration
	}
	return 4 * time.Hour
}

// Sports returns every registered sport id.
func Sports() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	return out
}
