package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// GameStatus is the normalized scoreboard status of a game.
type GameStatus string

const (
	StatusPre  GameStatus = "pre"
	StatusIn   GameStatus = "in"
	StatusPost GameStatus = "post"
)

// Side is the outcome side of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// TeamSelection is which side of a game the user wants to trade.
type TeamSelection string

const (
	SelectHome TeamSelection = "home"
	SelectAway TeamSelection = "away"
	SelectBoth TeamSelection = "both"
	SelectAuto TeamSelection = "auto"
)

// OrderAction is the direction of an exchange order.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// FillStatus is the terminal (or timed-out) state of an order fill wait.
type FillStatus string

const (
	FillFilled    FillStatus = "filled"
	FillCancelled FillStatus = "cancelled"
	FillExpired   FillStatus = "expired"
	FillTimeout   FillStatus = "timeout"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "take_profit"
	ExitStopLoss      ExitReason = "stop_loss"
	ExitGameFinished  ExitReason = "game_finished"
	ExitTime          ExitReason = "time_exit"
	ExitSegment       ExitReason = "segment_exit"
	ExitEmergencyStop ExitReason = "emergency_stop"
	ExitKillSwitch    ExitReason = "kill_switch"
)

// Market is a discovered, tradable event market on the exchange.
type Market struct {
	ConditionID string
	Ticker      string
	YesTokenID  string
	NoTokenID   string
	Question    string
	Sport       string
	HomeTeam    string
	AwayTeam    string
	GameStart   time.Time
	YesPrice    decimal.Decimal
	NoPrice     decimal.Decimal
	Volume24h   decimal.Decimal
	Liquidity   decimal.Decimal
	Spread      decimal.Decimal
}

// Quote is top-of-book for one market, normalized to [0,1].
type Quote struct {
	Ticker string
	YesBid decimal.Decimal
	YesAsk decimal.Decimal
	NoBid  decimal.Decimal
	NoAsk  decimal.Decimal
	Last   decimal.Decimal
}

// GameState is the normalized live state parsed from a scoreboard event.
type GameState struct {
	EventID       string
	Sport         string
	IsLive        bool
	IsFinished    bool
	Period        int
	Segment       string // q1..q4, h1/h2, p1..p3, i1..i9
	HalfInning    string // top, bottom, break; baseball only
	ClockDisplay  string
	TimeRemaining int // seconds, estimated
	HomeTeam      string
	AwayTeam      string
	HomeScore     int
	AwayScore     int
	StartTime     time.Time
}

// TrackedGame is one game the orchestrator is following. All fields are
// mutated only under the orchestrator lock.
type TrackedGame struct {
	EventID   string // scoreboard event id, or condition id until discovery resolves it
	Sport     string
	HomeTeam  string
	AwayTeam  string
	Market    Market
	Selection TeamSelection

	// Baseline yes price captured once before the game goes live.
	BaselineYes decimal.Decimal

	CurrentYes    decimal.Decimal
	Status        GameStatus
	Period        int
	Segment       string
	Clock         string
	TimeRemaining int // seconds, estimated by the scoreboard parser
	HomeScore     int
	AwayScore     int
	LastUpdated   time.Time

	HasPosition bool
	PositionID  string

	// PriceHistory holds recent yes prices for trend scoring, newest last.
	PriceHistory []decimal.Decimal

	AddedAt time.Time
}

// TimeRemainingSeconds returns the last estimated game-clock seconds left.
func (g *TrackedGame) TimeRemainingSeconds() int {
	return g.TimeRemaining
}

// EntrySignal is an approved-for-risk-review request to open a position.
type EntrySignal struct {
	Side       Side
	TokenID    string
	Price      decimal.Decimal
	Size       int // contracts
	Reason     string
	Confidence decimal.Decimal
	Breakdown  ConfidenceBreakdown
	Team       string
}

// ExitSignal requests closing an open position.
type ExitSignal struct {
	Reason ExitReason
	Price  decimal.Decimal
}

// ConfidenceBreakdown is the per-factor view of a confidence score.
type ConfidenceBreakdown struct {
	PriceDrop decimal.Decimal
	TimeLeft  decimal.Decimal
	Volume    decimal.Decimal
	Trend     decimal.Decimal
	GameState decimal.Decimal
	Spread    decimal.Decimal
}

// PendingOrder tracks an in-flight exchange order until it reaches a
// terminal state.
type PendingOrder struct {
	OrderID  string
	MarketID string
	Side     Side
	Action   OrderAction
	Price    decimal.Decimal
	Size     int
	PlacedAt time.Time
}

// SportStats is per-user per-sport risk accounting.
type SportStats struct {
	Sport         string
	Enabled       bool
	Priority      int
	TradesToday   int
	DailyPnL      decimal.Decimal
	OpenPositions int
	DailyLossCap  decimal.Decimal
	ExposureCap   decimal.Decimal
}

// EffectiveConfig is the layered per-evaluation trading config
// (market override > sport config > runtime override > default).
// All thresholds are fractions in [0,1].
type EffectiveConfig struct {
	Enabled                 bool
	AutoTrade               bool
	EntryThresholdDropPct   decimal.Decimal
	AbsoluteEntryPrice      decimal.Decimal
	MinTimeRemainingSeconds int
	AllowedEntrySegments    []string
	TakeProfitPct           decimal.Decimal
	StopLossPct             decimal.Decimal
	DefaultPositionSize     decimal.Decimal
	MaxPositionsPerGame     int
	UseKellySizing          bool
	KellyFraction           decimal.Decimal
	MinEntryConfidence      decimal.Decimal
	MinPregameProbability   decimal.Decimal
	LatestEntryCutoff       int // seconds
	LatestExitCutoff        int // seconds
}

// SegmentAllowed reports whether seg is in the allowed entry segments.
// An empty list allows every segment.
func (c EffectiveConfig) SegmentAllowed(seg string) bool {
	if len(c.AllowedEntrySegments) == 0 {
		return true
	}
	for _, s := range c.AllowedEntrySegments {
		if s == seg {
			return true
		}
	}
	return false
}

// Balance is the exchange account balance.
type Balance struct {
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Event is a push notification for the websocket hub.
type Event struct {
	Event         string      `json:"event"`
	Data          interface{} `json:"data"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id"`
}
