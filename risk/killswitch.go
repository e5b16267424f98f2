package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KILL SWITCH
// ═══════════════════════════════════════════════════════════════════════════════
//
// Circuit breaker for the whole account. Once any trigger fires the flag is
// persisted; entries stay blocked across restarts until a human resets it.
// The orchestrator owns the close-all that follows a trip.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	apiErrorWindow    = 5 * time.Minute
	apiErrorThreshold = 10
	lossStreakWindow  = 5
	lossStreakTrips   = 4
)

// Monitor evaluates kill-switch triggers for one user.
type Monitor struct {
	db     *storage.Database
	userID string

	mu        sync.Mutex
	apiErrors []time.Time
	orphaned  int
}

func NewMonitor(db *storage.Database, userID string) *Monitor {
	return &Monitor{db: db, userID: userID}
}

// RecordAPIError notes one failed exchange call for the burst trigger.
func (m *Monitor) RecordAPIError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiErrors = append(m.apiErrors, time.Now())
	m.prune()
}

// RecordOrphan notes an order whose outcome could not be confirmed.
func (m *Monitor) RecordOrphan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphaned++
}

func (m *Monitor) prune() {
	cutoff := time.Now().Add(-apiErrorWindow)
	kept := m.apiErrors[:0]
	for _, t := range m.apiErrors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.apiErrors = kept
}

func (m *Monitor) apiErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	return len(m.apiErrors)
}

// Active reports whether the persisted kill switch is set.
func (m *Monitor) Active() (bool, string) {
	gs, err := m.db.GetOrCreateSettings(m.userID, storage.GlobalSettings{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings for kill switch check")
		return false, ""
	}
	if gs.KillSwitchTriggeredAt != nil {
		return true, gs.KillSwitchReason
	}
	return false, ""
}

// Check evaluates every trigger and trips the switch on the first hit.
// Returns (tripped now, reason).
func (m *Monitor) Check(maxDailyLoss decimal.Decimal) (bool, string) {
	if active, _ := m.Active(); active {
		return false, "" // already tripped
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	// 1. Daily realized loss.
	if maxDailyLoss.GreaterThan(decimal.Zero) {
		pnl, err := m.db.DailyRealizedPnL(m.userID, dayStart)
		if err == nil && pnl.LessThanOrEqual(maxDailyLoss.Neg()) {
			return m.trip(fmt.Sprintf("daily loss %s breached limit %s",
				pnl.StringFixed(2), maxDailyLoss.StringFixed(2)))
		}
	}

	// 2. Loss streak: 4 of the last 5 closed trades losing.
	results, err := m.db.LastClosedResults(m.userID, lossStreakWindow)
	if err == nil && len(results) >= lossStreakWindow {
		losses := 0
		for _, r := range results {
			if r.LessThan(decimal.Zero) {
				losses++
			}
		}
		if losses >= lossStreakTrips {
			return m.trip(fmt.Sprintf("%d of last %d trades lost", losses, lossStreakWindow))
		}
	}

	// 3. API error burst.
	if n := m.apiErrorCount(); n >= apiErrorThreshold {
		return m.trip(fmt.Sprintf("%d exchange errors in %s", n, apiErrorWindow))
	}

	// 4. Orphaned orders.
	m.mu.Lock()
	orphans := m.orphaned
	m.mu.Unlock()
	if orphans > 0 {
		return m.trip(fmt.Sprintf("%d orphaned orders need manual review", orphans))
	}

	return false, ""
}

// TripManual trips the switch on operator request.
func (m *Monitor) TripManual(reason string) error {
	_, r := m.trip("manual: " + reason)
	if r == "" {
		return fmt.Errorf("kill switch trip failed")
	}
	return nil
}

func (m *Monitor) trip(reason string) (bool, string) {
	if err := m.db.TriggerKillSwitch(m.userID, reason); err != nil {
		log.Error().Err(err).Msg("Failed to persist kill switch")
		return false, ""
	}
	log.Error().Str("reason", reason).Msg("🚨 KILL SWITCH TRIPPED")
	m.db.LogActivity(m.userID, "error", "kill_switch", reason, nil, "")
	return true, reason
}

// Reset clears the switch and the in-memory counters. Manual action only.
func (m *Monitor) Reset() error {
	if err := m.db.ResetKillSwitch(m.userID); err != nil {
		return err
	}
	m.mu.Lock()
	m.apiErrors = nil
	m.orphaned = 0
	m.mu.Unlock()
	log.Info().Msg("Kill switch reset")
	m.db.LogActivity(m.userID, "info", "kill_switch", "kill switch reset", nil, "")
	return nil
}
