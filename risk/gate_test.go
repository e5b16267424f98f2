package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func okInputs() GateInputs {
	return GateInputs{
		OrderCost:        d(10),
		DailyPnL:         d(-20),
		MaxDailyLoss:     d(100),
		OpenExposure:     d(50),
		MaxExposure:      d(500),
		AvailableBalance: d(200),
		Sport:            "nba",
	}
}

func TestCheckAllows(t *testing.T) {
	ok, reason := Check(okInputs())
	assert.True(t, ok, reason)
}

func TestCheckDailyLoss(t *testing.T) {
	in := okInputs()
	in.DailyPnL = d(-100)
	ok, reason := Check(in)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss")
}

func TestCheckExposureIncludesOrder(t *testing.T) {
	in := okInputs()
	in.OpenExposure = d(495)
	// 495 + 10 > 500 even though current exposure is under the cap.
	ok, reason := Check(in)
	assert.False(t, ok)
	assert.Contains(t, reason, "exposure")
}

func TestCheckBalance(t *testing.T) {
	in := okInputs()
	in.AvailableBalance = d(5)
	ok, reason := Check(in)
	assert.False(t, ok)
	assert.Contains(t, reason, "balance")
}

func TestCheckSportCaps(t *testing.T) {
	in := okInputs()
	in.SportLossCap = d(30)
	in.SportDailyPnL = d(-30)
	ok, reason := Check(in)
	assert.False(t, ok)
	assert.Contains(t, reason, "nba")

	in = okInputs()
	in.SportMaxOpen = 2
	in.SportOpenCount = 2
	ok, _ = Check(in)
	assert.False(t, ok)

	// Zero caps mean uncapped.
	in = okInputs()
	in.SportDailyPnL = d(-999)
	in.SportOpenCount = 50
	ok, _ = Check(in)
	assert.True(t, ok)
}
