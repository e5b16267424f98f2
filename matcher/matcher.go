package matcher

import (
	"strings"

	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET MATCHER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Joins a scoreboard game to a discovered market by team-name token overlap.
// Deterministic and side-effect free: same inputs, same match.
//
// ═══════════════════════════════════════════════════════════════════════════════

// insignificant tokens that appear in nearly every team name or question.
var stopwords = map[string]bool{
	"the": true, "will": true, "beat": true, "win": true, "winner": true,
	"vs": true, "at": true, "game": true, "match": true, "who": true,
	"wins": true, "of": true, "and": true, "state": true, "university": true,
	"fc": true, "sc": true,
}

// Match finds the best market for a scoreboard game.
//
// A pinned ticker bypasses text matching entirely. Otherwise both teams must
// contribute at least one significant token to the market question (or the
// market's extracted team fields); ties break by total token overlap, then
// by 24h volume.
func Match(game scoreboard.Event, sportID string, markets []types.Market, pinnedTicker string) (types.Market, bool) {
	if pinnedTicker != "" {
		for _, m := range markets {
			if m.Ticker == pinnedTicker {
				return m, true
			}
		}
		return types.Market{}, false
	}

	homeTokens := significantTokens(game.HomeTeam)
	awayTokens := significantTokens(game.AwayTeam)
	if len(homeTokens) == 0 || len(awayTokens) == 0 {
		return types.Market{}, false
	}

	var best types.Market
	bestOverlap := 0
	found := false

	for _, m := range markets {
		if m.Sport != "" && sportID != "" && m.Sport != sportID {
			continue
		}

		marketTokens := tokenSet(m.Question + " " + m.HomeTeam + " " + m.AwayTeam)

		homeHits := overlap(homeTokens, marketTokens)
		awayHits := overlap(awayTokens, marketTokens)
		if homeHits == 0 || awayHits == 0 {
			continue
		}

		total := homeHits + awayHits
		switch {
		case total > bestOverlap:
			best, bestOverlap, found = m, total, true
		case total == bestOverlap && found && m.Volume24h.GreaterThan(best.Volume24h):
			best = m
		}
	}

	return best, found
}

// MarketTeamForSelection resolves which team name a YES purchase backs,
// given the market's question subject and the user's selection.
func MarketTeamForSelection(game scoreboard.Event, m types.Market, sel types.TeamSelection) string {
	switch sel {
	case types.SelectHome:
		return game.HomeTeam
	case types.SelectAway:
		return game.AwayTeam
	default:
		// auto/both: the market's YES side backs the question subject.
		if m.HomeTeam != "" {
			return m.HomeTeam
		}
		return game.HomeTeam
	}
}

func significantTokens(name string) []string {
	var out []string
	for _, t := range strings.Fields(normalize(name)) {
		if len(t) >= 3 && !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(normalize(text)) {
		if len(t) >= 3 && !stopwords[t] {
			set[t] = true
		}
	}
	return set
}

func overlap(tokens []string, set map[string]bool) int {
	n := 0
	for _, t := range tokens {
		if set[t] {
			n++
		}
	}
	return n
}

// normalize lowercases and strips punctuation so "St. Louis" and "st louis"
// tokenize identically.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
