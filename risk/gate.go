package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GATE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Last check before an order goes out. The decision engine already applied
// per-market limits; the gate holds the global and per-sport budgets that
// span markets.
//
// ═══════════════════════════════════════════════════════════════════════════════

// GateInputs is one pre-order risk review.
type GateInputs struct {
	OrderCost decimal.Decimal

	DailyPnL     decimal.Decimal
	MaxDailyLoss decimal.Decimal

	OpenExposure decimal.Decimal
	MaxExposure  decimal.Decimal

	AvailableBalance decimal.Decimal

	Sport          string
	SportDailyPnL  decimal.Decimal
	SportLossCap   decimal.Decimal // zero means uncapped
	SportOpenCount int
	SportMaxOpen   int // zero means uncapped
}

// Check returns whether the order may proceed and, if not, why.
func Check(in GateInputs) (bool, string) {
	if in.DailyPnL.LessThanOrEqual(in.MaxDailyLoss.Neg()) {
		return false, fmt.Sprintf("daily loss limit reached (%s)", in.DailyPnL.StringFixed(2))
	}

	if in.OpenExposure.Add(in.OrderCost).GreaterThan(in.MaxExposure) {
		return false, fmt.Sprintf("order would exceed exposure limit (%s + %s > %s)",
			in.OpenExposure.StringFixed(2), in.OrderCost.StringFixed(2), in.MaxExposure.StringFixed(2))
	}

	if in.AvailableBalance.LessThan(in.OrderCost) {
		return false, fmt.Sprintf("insufficient balance (%s < %s)",
			in.AvailableBalance.StringFixed(2), in.OrderCost.StringFixed(2))
	}

	if in.SportLossCap.GreaterThan(decimal.Zero) &&
		in.SportDailyPnL.LessThanOrEqual(in.SportLossCap.Neg()) {
		return false, fmt.Sprintf("%s daily loss cap reached", in.Sport)
	}

	if in.SportMaxOpen > 0 && in.SportOpenCount >= in.SportMaxOpen {
		return false, fmt.Sprintf("%s open position cap reached", in.Sport)
	}

	return true, ""
}
