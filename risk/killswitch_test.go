package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/types"
)

func testMonitor(t *testing.T) (*Monitor, *storage.Database) {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewMonitor(db, "u1"), db
}

func openAndClose(t *testing.T, db *storage.Database, condition string, entry, exit float64) {
	t.Helper()
	pos, err := db.CreateIfAbsent(storage.CreatePositionParams{
		UserID:      "u1",
		ConditionID: condition,
		Side:        types.SideYes,
		Sport:       "nba",
		EntryPrice:  decimal.NewFromFloat(entry),
		EntrySize:   10,
	})
	require.NoError(t, err)
	_, err = db.ClosePosition(pos.ID, decimal.NewFromFloat(exit), 10, types.ExitStopLoss, "o")
	require.NoError(t, err)
}

func TestCheckCleanAccountDoesNotTrip(t *testing.T) {
	m, _ := testMonitor(t)
	tripped, _ := m.Check(d(100))
	assert.False(t, tripped)
	active, _ := m.Active()
	assert.False(t, active)
}

func TestCheckDailyLossTrips(t *testing.T) {
	m, db := testMonitor(t)
	// One closed trade down 6.00 against a 5.00 limit.
	openAndClose(t, db, "c1", 0.80, 0.20)

	tripped, reason := m.Check(d(5))
	require.True(t, tripped)
	assert.Contains(t, reason, "daily loss")

	active, persisted := m.Active()
	assert.True(t, active)
	assert.Equal(t, reason, persisted)

	// A tripped switch does not re-trip.
	tripped, _ = m.Check(d(5))
	assert.False(t, tripped)
}

func TestCheckLossStreakTrips(t *testing.T) {
	m, db := testMonitor(t)
	// 4 losses and a win across 5 closed trades; small enough losses to
	// stay inside a generous daily limit.
	openAndClose(t, db, "c1", 0.50, 0.49)
	openAndClose(t, db, "c2", 0.50, 0.49)
	openAndClose(t, db, "c3", 0.50, 0.60)
	openAndClose(t, db, "c4", 0.50, 0.49)
	openAndClose(t, db, "c5", 0.50, 0.49)

	tripped, reason := m.Check(d(1000))
	require.True(t, tripped)
	assert.Contains(t, reason, "trades lost")
}

func TestCheckAPIErrorBurstTrips(t *testing.T) {
	m, _ := testMonitor(t)
	for i := 0; i < apiErrorThreshold; i++ {
		m.RecordAPIError()
	}
	tripped, reason := m.Check(d(1000))
	require.True(t, tripped)
	assert.Contains(t, reason, "exchange errors")
}

func TestCheckOrphanTrips(t *testing.T) {
	m, _ := testMonitor(t)
	m.RecordOrphan()
	tripped, reason := m.Check(d(1000))
	require.True(t, tripped)
	assert.Contains(t, reason, "orphaned")
}

func TestResetClearsSwitchAndCounters(t *testing.T) {
	m, _ := testMonitor(t)
	m.RecordOrphan()
	tripped, _ := m.Check(d(1000))
	require.True(t, tripped)

	require.NoError(t, m.Reset())
	active, _ := m.Active()
	assert.False(t, active)

	// Counters cleared: the same orphan does not re-trip.
	tripped, _ = m.Check(d(1000))
	assert.False(t, tripped)
}
