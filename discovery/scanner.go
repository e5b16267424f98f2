package discovery

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/exchange"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET DISCOVERY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Enumerates currently tradable sports event markets: anything starting
// within the lookahead window plus anything already live. Team identities
// come from the exchange's structured fields when present, else from the
// market question text. Parlays are filtered out. Pure read path, no side
// effects.
//
// ═══════════════════════════════════════════════════════════════════════════════

const lookahead = 48 * time.Hour

// MarketLister is satisfied by *exchange.Client.
type MarketLister interface {
	ListEventMarkets(ctx context.Context) ([]exchange.RawMarket, error)
}

type Scanner struct {
	lister MarketLister
}

func NewScanner(lister MarketLister) *Scanner {
	return &Scanner{lister: lister}
}

// Discover returns the tradable single-game markets visible right now.
func (s *Scanner) Discover(ctx context.Context) ([]types.Market, error) {
	raw, err := s.lister.ListEventMarkets(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]types.Market, 0, len(raw))

	for _, rm := range raw {
		if rm.Legs > 1 {
			continue // parlay
		}

		m, ok := normalize(rm, now)
		if !ok {
			continue
		}
		out = append(out, m)
	}

	log.Debug().Int("raw", len(raw)).Int("markets", len(out)).Msg("Discovery pass")
	return out, nil
}

// normalize converts a raw exchange listing into a discovered market,
// dropping anything outside the tradable window or missing team identity.
func normalize(rm exchange.RawMarket, now time.Time) (types.Market, bool) {
	sport, ok := SportFromTicker(rm.Ticker)
	if !ok {
		sport = sportFromCategory(rm.Category)
		if sport == "" {
			return types.Market{}, false
		}
	}

	start := rm.OpenTime
	if start.IsZero() {
		if d, ok := GameDateFromTicker(rm.Ticker); ok {
			start = d
		}
	}

	// Keep markets starting within the lookahead, plus anything plausibly
	// live right now.
	if !start.IsZero() {
		if start.After(now.Add(lookahead)) {
			return types.Market{}, false
		}
		if start.Before(now) && !PlausiblyLive(start, sport, now) {
			return types.Market{}, false
		}
	}

	home, away := rm.HomeTeam, rm.AwayTeam
	if home == "" || away == "" {
		home, away = teamsFromQuestion(rm.Question)
	}
	if home == "" || away == "" {
		return types.Market{}, false
	}

	return types.Market{
		ConditionID: rm.ConditionID,
		Ticker:      rm.Ticker,
		YesTokenID:  rm.YesTokenID,
		NoTokenID:   rm.NoTokenID,
		Question:    rm.Question,
		Sport:       sport,
		HomeTeam:    home,
		AwayTeam:    away,
		GameStart:   start,
		YesPrice:    rm.YesPrice,
		NoPrice:     rm.NoPrice,
		Volume24h:   rm.Volume24h,
		Liquidity:   rm.Liquidity,
		Spread:      rm.Spread,
	}, true
}

func sportFromCategory(category string) string {
	switch strings.ToLower(category) {
	case "nba", "basketball":
		return "nba"
	case "nfl", "football":
		return "nfl"
	case "nhl", "hockey":
		return "nhl"
	case "mlb", "baseball":
		return "mlb"
	case "soccer", "epl":
		return "epl"
	}
	return ""
}

// Question texts come in a handful of shapes:
//   "Will the Boston Celtics beat the Miami Heat?"
//   "Golden State Warriors vs Los Angeles Lakers Winner?"
//   "Lakers at Warriors: who wins?"
var (
	beatRe = regexp.MustCompile(`(?i)^will (?:the )?(.+?) beat (?:the )?(.+?)\??$`)
	vsRe   = regexp.MustCompile(`(?i)^(.+?)\s+(?:vs\.?|at|@)\s+(.+?)(?::|\s+winner|\?|$)`)
)

// teamsFromQuestion extracts (home, away) from market question text. The
// "X beat Y" form puts the subject first; "X vs Y" is taken as away-vs-home
// only when the exchange gives no structured fields, so ordering is
// best-effort and the matcher tolerates either.
func teamsFromQuestion(question string) (string, string) {
	q := strings.TrimSpace(question)

	if m := beatRe.FindStringSubmatch(q); m != nil {
		return cleanTeam(m[1]), cleanTeam(m[2])
	}
	if m := vsRe.FindStringSubmatch(q); m != nil {
		return cleanTeam(m[2]), cleanTeam(m[1])
	}
	return "", ""
}

func cleanTeam(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "?")
	s = strings.TrimSuffix(s, " Winner")
	return strings.TrimSpace(s)
}
