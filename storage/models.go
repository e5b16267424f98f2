package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one trade lifecycle row. At most one open row may exist per
// (user_id, condition_id); the store enforces it under a row lock.
type Position struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_positions_user_cond"`
	ConditionID string `gorm:"index:idx_positions_user_cond"`
	Ticker      string
	TokenID     string
	Side        string // YES or NO
	Status      string `gorm:"index"` // open, closed
	TeamName    string `gorm:"index"`
	Sport       string

	EntryPrice      decimal.Decimal `gorm:"type:decimal(10,6)"`
	EntrySize       int
	EntryCost       decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryReason     string
	EntryOrderID    string
	EntryConfidence decimal.Decimal `gorm:"type:decimal(10,6)"`
	EnteredAt       time.Time

	ExitPrice    decimal.Decimal `gorm:"type:decimal(10,6)"`
	ExitSize     int
	ExitProceeds decimal.Decimal `gorm:"type:decimal(20,6)"`
	ExitReason   string
	ExitOrderID  string
	RealizedPnL  decimal.Decimal `gorm:"type:decimal(20,6)"`
	ClosedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackedMarket persists a discovered market so recovery can rebuild
// tracked games after a restart.
type TrackedMarket struct {
	ConditionID string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	Ticker      string
	YesTokenID  string
	NoTokenID   string
	Question    string
	Sport       string
	HomeTeam    string
	AwayTeam    string

	BaselineYes decimal.Decimal `gorm:"type:decimal(10,6)"`
	BaselineNo  decimal.Decimal `gorm:"type:decimal(10,6)"`
	CurrentYes  decimal.Decimal `gorm:"type:decimal(10,6)"`
	CurrentNo   decimal.Decimal `gorm:"type:decimal(10,6)"`

	ScoreboardEventID string `gorm:"index"`
	GameStart         time.Time
	IsLive            bool
	IsFinished        bool
	IsUserSelected    bool

	LastUpdatedAt time.Time
	CreatedAt     time.Time
}

// GlobalSettings is the per-user runtime configuration and persistent flags.
type GlobalSettings struct {
	UserID     string `gorm:"primaryKey"`
	BotEnabled bool

	MaxDailyLossUSDC         decimal.Decimal `gorm:"type:decimal(20,6)"`
	MaxPortfolioExposureUSDC decimal.Decimal `gorm:"type:decimal(20,6)"`
	MaxSlippagePct           decimal.Decimal `gorm:"type:decimal(10,6)"`
	OrderFillTimeoutSeconds  int

	EmergencyStop bool
	AutoTradeAll  bool

	// BotConfigJSON holds selected games and per-game parameters.
	BotConfigJSON string

	KillSwitchTriggeredAt *time.Time
	KillSwitchReason      string

	ConsecutiveLosses int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SportConfig overrides trading parameters for one sport. Nullable fields
// fall through to the runtime/default layer.
type SportConfig struct {
	UserID   string `gorm:"primaryKey"`
	Sport    string `gorm:"primaryKey"`
	Enabled  bool
	Priority int

	AutoTrade               *bool
	EntryThresholdDropPct   *decimal.Decimal `gorm:"type:decimal(10,6)"`
	AbsoluteEntryPrice      *decimal.Decimal `gorm:"type:decimal(10,6)"`
	MinTimeRemainingSeconds *int
	AllowedEntrySegments    string // comma-separated, empty = all
	TakeProfitPct           *decimal.Decimal `gorm:"type:decimal(10,6)"`
	StopLossPct             *decimal.Decimal `gorm:"type:decimal(10,6)"`
	DefaultPositionSize     *decimal.Decimal `gorm:"type:decimal(20,6)"`
	MaxPositionsPerGame     *int
	UseKellySizing          *bool
	KellyFraction           *decimal.Decimal `gorm:"type:decimal(10,6)"`
	MinEntryConfidence      *decimal.Decimal `gorm:"type:decimal(10,6)"`
	MinPregameProbability   *decimal.Decimal `gorm:"type:decimal(10,6)"`

	DailyLossCapUSDC *decimal.Decimal `gorm:"type:decimal(20,6)"`
	MaxOpenPositions *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarketConfig overrides trading parameters for one market, the most
// specific layer.
type MarketConfig struct {
	UserID      string `gorm:"primaryKey"`
	ConditionID string `gorm:"primaryKey"`

	Enabled                 *bool
	AutoTrade               *bool
	EntryThresholdDropPct   *decimal.Decimal `gorm:"type:decimal(10,6)"`
	AbsoluteEntryPrice      *decimal.Decimal `gorm:"type:decimal(10,6)"`
	MinTimeRemainingSeconds *int
	AllowedEntrySegments    string
	TakeProfitPct           *decimal.Decimal `gorm:"type:decimal(10,6)"`
	StopLossPct             *decimal.Decimal `gorm:"type:decimal(10,6)"`
	DefaultPositionSize     *decimal.Decimal `gorm:"type:decimal(20,6)"`
	MaxPositionsPerGame     *int
	UseKellySizing          *bool
	KellyFraction           *decimal.Decimal `gorm:"type:decimal(10,6)"`
	MinEntryConfidence      *decimal.Decimal `gorm:"type:decimal(10,6)"`
	PinnedTicker            string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivityLog is append-only.
type ActivityLog struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	UserID        string `gorm:"index"`
	Level         string
	Category      string
	Message       string
	DetailsJSON   string
	CorrelationID string
	CreatedAt     time.Time `gorm:"index"`
}
