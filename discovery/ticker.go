package discovery

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sportsfade/fadebot/scoreboard"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TICKER PARSING - best-effort game time from the exchange ticker
// ═══════════════════════════════════════════════════════════════════════════════
//
// Tickers look like KXNBAGAME-26FEB07GSWLAL-LAL: a sport prefix, then
// (YY)(MON)(DD) plus team codes. The parsed date defaults to 00:00 UTC on
// game day and is only ever used to answer "is this game plausibly live
// right now?" inside the sport's max-duration window, never for
// clock-precision decisions.
//
// ═══════════════════════════════════════════════════════════════════════════════

var tickerDateRe = regexp.MustCompile(`(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d{2})`)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

var tickerSports = map[string]string{
	"KXNBAGAME":   "nba",
	"KXWNBAGAME":  "wnba",
	"KXNFLGAME":   "nfl",
	"KXNHLGAME":   "nhl",
	"KXMLBGAME":   "mlb",
	"KXNCAABGAME": "ncaam",
	"KXCFBGAME":   "cfb",
	"KXEPLGAME":   "epl",
	"KXMLSGAME":   "mls",
}

// SportFromTicker maps a ticker prefix to a registered sport id.
func SportFromTicker(ticker string) (string, bool) {
	prefix, _, ok := strings.Cut(ticker, "-")
	if !ok {
		return "", false
	}
	sport, ok := tickerSports[strings.ToUpper(prefix)]
	return sport, ok
}

// GameDateFromTicker extracts the (YY)(MON)(DD) game date, at 00:00 UTC.
func GameDateFromTicker(ticker string) (time.Time, bool) {
	m := tickerDateRe.FindStringSubmatch(strings.ToUpper(ticker))
	if m == nil {
		return time.Time{}, false
	}

	yy, _ := strconv.Atoi(m[1])
	dd, _ := strconv.Atoi(m[3])
	mon := months[m[2]]

	return time.Date(2000+yy, mon, dd, 0, 0, 0, 0, time.UTC), true
}

// PlausiblyLive reports whether a game could be in progress right now based
// on its start time and the sport's maximum duration. When only a ticker
// date (00:00 UTC) is known, the window spans that whole UTC day plus the
// sport's max duration.
func PlausiblyLive(start time.Time, sport string, now time.Time) bool {
	if start.IsZero() {
		return false
	}
	maxDur := scoreboard.MaxGameDuration(sport)

	if start.Hour() == 0 && start.Minute() == 0 && start.Second() == 0 {
		// Date-only fallback: any time on game day up to max duration past
		// midnight of the next day.
		end := start.Add(24*time.Hour + maxDur)
		return !now.Before(start) && now.Before(end)
	}

	return !now.Before(start) && now.Before(start.Add(maxDur))
}
