package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Position store and persisted state
// ═══════════════════════════════════════════════════════════════════════════════
//
// The store is the single source of truth for positions; no in-memory
// mirror is authoritative. Every mutation is one transaction.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB

	// writeMu guards the read-then-write position transactions on sqlite,
	// which has no SELECT FOR UPDATE. Postgres relies on the row lock.
	writeMu sync.Mutex
}

// withRowLock adds FOR UPDATE where the dialect supports it.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// New opens postgres when the path is a postgres DSN, else sqlite.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		// Busy timeout keeps concurrent writers queued instead of erroring.
		db, err = gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(
		&Position{}, &TrackedMarket{}, &GlobalSettings{},
		&SportConfig{}, &MarketConfig{}, &ActivityLog{},
	); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreatePositionParams are the entry-side fields of a new position.
type CreatePositionParams struct {
	UserID      string
	ConditionID string
	Ticker      string
	TokenID     string
	Side        types.Side
	TeamName    string
	Sport       string

	EntryPrice      decimal.Decimal
	EntrySize       int
	EntryReason     string
	EntryOrderID    string
	EntryConfidence decimal.Decimal
}

// CreateIfAbsent inserts an open position unless one already exists for
// (user, condition, status=open). The existing row is read FOR UPDATE inside
// the transaction so two racing entry paths produce exactly one row; the
// loser gets ErrAlreadyOpen.
func (d *Database) CreateIfAbsent(p CreatePositionParams) (*Position, error) {
	pos := &Position{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		ConditionID:     p.ConditionID,
		Ticker:          p.Ticker,
		TokenID:         p.TokenID,
		Side:            string(p.Side),
		Status:          "open",
		TeamName:        p.TeamName,
		Sport:           p.Sport,
		EntryPrice:      p.EntryPrice,
		EntrySize:       p.EntrySize,
		EntryCost:       p.EntryPrice.Mul(decimal.NewFromInt(int64(p.EntrySize))),
		EntryReason:     p.EntryReason,
		EntryOrderID:    p.EntryOrderID,
		EntryConfidence: p.EntryConfidence,
		EnteredAt:       time.Now().UTC(),
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	err := d.db.Transaction(func(tx *gorm.DB) error {
		var existing Position
		err := withRowLock(tx).
			Where("user_id = ? AND condition_id = ? AND status = ?", p.UserID, p.ConditionID, "open").
			First(&existing).Error
		if err == nil {
			return types.ErrAlreadyOpen
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(pos).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("position_id", pos.ID).
		Str("condition_id", pos.ConditionID).
		Str("team", pos.TeamName).
		Str("side", pos.Side).
		Str("entry", pos.EntryPrice.StringFixed(2)).
		Int("size", pos.EntrySize).
		Msg("✅ Position opened")

	return pos, nil
}

// ClosePosition writes exit fields and realized P&L in one transaction.
// Closing an already-closed position is a no-op; closed rows are immutable.
func (d *Database) ClosePosition(id string, exitPrice decimal.Decimal, exitSize int, reason types.ExitReason, exitOrderID string) (*Position, error) {
	var pos Position

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	err := d.db.Transaction(func(tx *gorm.DB) error {
		err := withRowLock(tx).
			First(&pos, "id = ?", id).Error
		if err != nil {
			return err
		}
		if pos.Status == "closed" {
			return nil // idempotent
		}

		now := time.Now().UTC()
		proceeds := exitPrice.Mul(decimal.NewFromInt(int64(exitSize)))

		pos.Status = "closed"
		pos.ExitPrice = exitPrice
		pos.ExitSize = exitSize
		pos.ExitProceeds = proceeds
		pos.ExitReason = string(reason)
		pos.ExitOrderID = exitOrderID
		pos.RealizedPnL = proceeds.Sub(pos.EntryCost)
		pos.ClosedAt = &now

		return tx.Save(&pos).Error
	})
	if err != nil {
		return nil, err
	}

	if pos.ClosedAt != nil {
		log.Info().
			Str("position_id", pos.ID).
			Str("reason", string(reason)).
			Str("exit", exitPrice.StringFixed(2)).
			Str("pnl", pos.RealizedPnL.StringFixed(2)).
			Msg("📊 Position closed")
	}
	return &pos, nil
}

// GetPosition fetches one position by id.
func (d *Database) GetPosition(id string) (*Position, error) {
	var pos Position
	if err := d.db.First(&pos, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pos, nil
}

// GetOpenPositions returns every open position for a user.
func (d *Database) GetOpenPositions(userID string) ([]Position, error) {
	var out []Position
	err := d.db.Where("user_id = ? AND status = ?", userID, "open").
		Order("entered_at").Find(&out).Error
	return out, err
}

// GetOpenPositionByCondition returns the open position on a market, if any.
func (d *Database) GetOpenPositionByCondition(userID, conditionID string) (*Position, error) {
	var pos Position
	err := d.db.Where("user_id = ? AND condition_id = ? AND status = ?", userID, conditionID, "open").
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// CountOpenForCondition counts open positions on one market.
func (d *Database) CountOpenForCondition(userID, conditionID string) (int, error) {
	var n int64
	err := d.db.Model(&Position{}).
		Where("user_id = ? AND condition_id = ? AND status = ?", userID, conditionID, "open").
		Count(&n).Error
	return int(n), err
}

// HasOpenTeamPosition reports whether any open position backs the team.
func (d *Database) HasOpenTeamPosition(userID, team string) (bool, error) {
	if team == "" {
		return false, nil
	}
	var n int64
	err := d.db.Model(&Position{}).
		Where("user_id = ? AND team_name = ? AND status = ?", userID, team, "open").
		Count(&n).Error
	return n > 0, err
}

// DailyRealizedPnL sums realized P&L for positions closed since the given
// UTC day start.
func (d *Database) DailyRealizedPnL(userID string, dayStart time.Time) (decimal.Decimal, error) {
	var result struct{ Total decimal.Decimal }
	err := d.db.Model(&Position{}).
		Select("COALESCE(SUM(realized_pn_l), 0) as total").
		Where("user_id = ? AND status = ? AND closed_at >= ?", userID, "closed", dayStart).
		Scan(&result).Error
	return result.Total, err
}

// OpenExposure sums entry cost across open positions.
func (d *Database) OpenExposure(userID string) (decimal.Decimal, error) {
	var result struct{ Total decimal.Decimal }
	err := d.db.Model(&Position{}).
		Select("COALESCE(SUM(entry_cost), 0) as total").
		Where("user_id = ? AND status = ?", userID, "open").
		Scan(&result).Error
	return result.Total, err
}

// LastClosedResults returns the realized P&L of the most recent n closed
// positions, newest first. Used by the loss-streak kill-switch trigger.
func (d *Database) LastClosedResults(userID string, n int) ([]decimal.Decimal, error) {
	var rows []Position
	err := d.db.Where("user_id = ? AND status = ?", userID, "closed").
		Order("closed_at DESC").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, len(rows))
	for i, p := range rows {
		out[i] = p.RealizedPnL
	}
	return out, nil
}

// WinStats returns closed-trade count and win rate for Kelly blending.
func (d *Database) WinStats(userID string) (numTrades int, winRate decimal.Decimal, err error) {
	var total, wins int64
	if err = d.db.Model(&Position{}).
		Where("user_id = ? AND status = ?", userID, "closed").
		Count(&total).Error; err != nil {
		return 0, decimal.Zero, err
	}
	if total == 0 {
		return 0, decimal.Zero, nil
	}
	if err = d.db.Model(&Position{}).
		Where("user_id = ? AND status = ? AND realized_pn_l > 0", userID, "closed").
		Count(&wins).Error; err != nil {
		return 0, decimal.Zero, err
	}
	return int(total), decimal.NewFromInt(wins).Div(decimal.NewFromInt(total)), nil
}

// SportDailyPnL sums today's realized P&L for one sport.
func (d *Database) SportDailyPnL(userID, sport string, dayStart time.Time) (decimal.Decimal, error) {
	var result struct{ Total decimal.Decimal }
	err := d.db.Model(&Position{}).
		Select("COALESCE(SUM(realized_pn_l), 0) as total").
		Where("user_id = ? AND sport = ? AND status = ? AND closed_at >= ?", userID, sport, "closed", dayStart).
		Scan(&result).Error
	return result.Total, err
}

// SportOpenCount counts open positions in one sport.
func (d *Database) SportOpenCount(userID, sport string) (int, error) {
	var n int64
	err := d.db.Model(&Position{}).
		Where("user_id = ? AND sport = ? AND status = ?", userID, sport, "open").
		Count(&n).Error
	return int(n), err
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRACKED MARKETS
// ═══════════════════════════════════════════════════════════════════════════════

// UpsertTrackedMarket saves or refreshes a tracked market record.
func (d *Database) UpsertTrackedMarket(tm *TrackedMarket) error {
	tm.LastUpdatedAt = time.Now().UTC()
	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "condition_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_yes", "current_no", "scoreboard_event_id",
			"is_live", "is_finished", "last_updated_at",
		}),
	}).Create(tm).Error
}

// GetTrackedMarket loads one tracked market.
func (d *Database) GetTrackedMarket(userID, conditionID string) (*TrackedMarket, error) {
	var tm TrackedMarket
	err := d.db.Where("user_id = ? AND condition_id = ?", userID, conditionID).First(&tm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

// GetUserSelectedMarkets returns markets the user pinned for trading.
func (d *Database) GetUserSelectedMarkets(userID string) ([]TrackedMarket, error) {
	var out []TrackedMarket
	err := d.db.Where("user_id = ? AND is_user_selected = ?", userID, true).Find(&out).Error
	return out, err
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETTINGS & CONFIG LAYERS
// ═══════════════════════════════════════════════════════════════════════════════

// GetOrCreateSettings loads per-user settings, creating defaults on first use.
func (d *Database) GetOrCreateSettings(userID string, defaults GlobalSettings) (*GlobalSettings, error) {
	var gs GlobalSettings
	defaults.UserID = userID
	err := d.db.Where(GlobalSettings{UserID: userID}).
		Attrs(defaults).
		FirstOrCreate(&gs).Error
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

// SaveSettings persists the settings row.
func (d *Database) SaveSettings(gs *GlobalSettings) error {
	return d.db.Save(gs).Error
}

// UpdateConsecutiveLosses writes only the streak counter. A whole-row save
// here could overwrite a kill-switch trip persisted since the caller loaded
// its settings copy.
func (d *Database) UpdateConsecutiveLosses(userID string, n int) error {
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Update("consecutive_losses", n).Error
}

// TriggerKillSwitch persists the kill-switch flag with its reason. The flag
// survives restarts and clears only via ResetKillSwitch.
func (d *Database) TriggerKillSwitch(userID, reason string) error {
	now := time.Now().UTC()
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"kill_switch_triggered_at": now,
			"kill_switch_reason":       reason,
		}).Error
}

// ResetKillSwitch clears the kill switch. Manual action only.
func (d *Database) ResetKillSwitch(userID string) error {
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"kill_switch_triggered_at": nil,
			"kill_switch_reason":       "",
		}).Error
}

// SetEmergencyStop persists the emergency flag.
func (d *Database) SetEmergencyStop(userID string, on bool) error {
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Update("emergency_stop", on).Error
}

// GetSportConfigs returns all per-sport overrides for a user.
func (d *Database) GetSportConfigs(userID string) (map[string]SportConfig, error) {
	var rows []SportConfig
	if err := d.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]SportConfig, len(rows))
	for _, r := range rows {
		out[r.Sport] = r
	}
	return out, nil
}

// GetMarketConfigs returns all per-market overrides for a user.
func (d *Database) GetMarketConfigs(userID string) (map[string]MarketConfig, error) {
	var rows []MarketConfig
	if err := d.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]MarketConfig, len(rows))
	for _, r := range rows {
		out[r.ConditionID] = r
	}
	return out, nil
}

// SaveSportConfig upserts one sport override row.
func (d *Database) SaveSportConfig(sc *SportConfig) error {
	return d.db.Save(sc).Error
}

// SaveMarketConfig upserts one market override row.
func (d *Database) SaveMarketConfig(mc *MarketConfig) error {
	return d.db.Save(mc).Error
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACTIVITY LOG
// ═══════════════════════════════════════════════════════════════════════════════

// LogActivity appends one activity row. Failures are logged, never fatal.
func (d *Database) LogActivity(userID, level, category, message string, details map[string]interface{}, correlationID string) {
	detailsJSON := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}
	row := &ActivityLog{
		UserID:        userID,
		Level:         level,
		Category:      category,
		Message:       message,
		DetailsJSON:   detailsJSON,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.db.Create(row).Error; err != nil {
		log.Error().Err(err).Msg("Failed to write activity log")
	}
}

// RecentActivity returns the latest rows for status surfaces.
func (d *Database) RecentActivity(userID string, limit int) ([]ActivityLog, error) {
	var out []ActivityLog
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// FormatUSDC renders a decimal for log output.
func FormatUSDC(d decimal.Decimal) string {
	return fmt.Sprintf("$%s", d.StringFixed(2))
}
