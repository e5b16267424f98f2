package core

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER EXECUTION
// ═══════════════════════════════════════════════════════════════════════════════
//
// Entry and exit execution share a shape: re-check the preconditions that
// could have changed since the signal, place the order, wait for the fill,
// then persist. A fill timeout cancels the order; a failed cancel is an
// orphan and feeds the kill switch.
//
// ═══════════════════════════════════════════════════════════════════════════════

// closeAllDiscount is applied to the last known price when force-closing,
// to cross the spread and get out.
var closeAllDiscount = decimal.NewFromFloat(0.98)

// cancelBudget bounds the cancel call after a fill timeout. It always runs
// on a fresh context; the order context has already expired by then.
const cancelBudget = 10 * time.Second

// executionContext bounds one order's lifecycle: slippage check, placement,
// and the full fill wait. Detached from the loop pass budget, which is far
// shorter than a fill timeout.
func executionContext(fillTimeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), fillTimeout+30*time.Second)
}

func (o *Orchestrator) executeEntry(g *types.TrackedGame, sig *types.EntrySignal, gs *storage.GlobalSettings) {
	// One entry at a time per token. A contested lock means another pass is
	// already working this token; skip rather than queue a stale signal.
	muIface, _ := o.entryLocks.LoadOrStore(sig.TokenID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	if !mu.TryLock() {
		return
	}
	defer mu.Unlock()

	ctx, cancel := executionContext(time.Duration(gs.OrderFillTimeoutSeconds) * time.Second)
	defer cancel()

	correlationID := uuid.NewString()

	// Double-check under the lock: another pass may have just opened one.
	if existing, err := o.db.GetOpenPositionByCondition(o.userID, g.Market.ConditionID); err != nil || existing != nil {
		return
	}

	// Live gate re-check: the game may have ended between signal and here.
	if g.Status == types.StatusPost {
		return
	}

	// Slippage: the book may have moved since the price pass.
	ok, observed, err := o.ex.CheckSlippage(ctx, g.Market.Ticker, sig.Price, types.ActionBuy, sig.Side, gs.MaxSlippagePct)
	if err != nil {
		o.ks.RecordAPIError()
		return
	}
	if !ok {
		o.db.LogActivity(o.userID, "warn", "execution",
			"entry skipped: slippage", map[string]interface{}{
				"intended": sig.Price.StringFixed(2),
				"observed": observed.StringFixed(2),
			}, correlationID)
		return
	}

	orderID, err := o.ex.PlaceOrder(ctx, g.Market.Ticker, types.ActionBuy, sig.Side, sig.Price, sig.Size)
	if err != nil {
		o.ks.RecordAPIError()
		log.Error().Err(err).Str("ticker", g.Market.Ticker).Msg("Entry order failed")
		return
	}

	o.trackPending(orderID, g.Market.ConditionID, sig.Side, types.ActionBuy, sig.Price, sig.Size)
	defer o.untrackPending(orderID)

	fill, err := o.ex.WaitForFill(ctx, orderID, time.Duration(gs.OrderFillTimeoutSeconds)*time.Second)
	if err != nil {
		log.Warn().Err(err).Str("order", orderID).Msg("Fill wait interrupted")
	}

	switch fill {
	case types.FillFilled:
	case types.FillTimeout:
		if cerr := o.cancelOrder(orderID); cerr != nil {
			// Unknown terminal state: the order may still fill.
			o.recordOrphan("entry", orderID, correlationID)
		}
		return
	default:
		return // cancelled or expired, nothing opened
	}

	pos, err := o.db.CreateIfAbsent(storage.CreatePositionParams{
		UserID:          o.userID,
		ConditionID:     g.Market.ConditionID,
		Ticker:          g.Market.Ticker,
		TokenID:         sig.TokenID,
		Side:            sig.Side,
		TeamName:        sig.Team,
		Sport:           g.Sport,
		EntryPrice:      sig.Price,
		EntrySize:       sig.Size,
		EntryReason:     sig.Reason,
		EntryOrderID:    orderID,
		EntryConfidence: sig.Confidence,
	})
	if err != nil {
		// Filled on the exchange but not recorded: contracts are held with
		// no row to exit from. This is the orphan case the kill switch
		// exists for.
		log.Error().Err(err).Str("order", orderID).Msg("Filled order has no position row")
		o.ks.RecordOrphan()
		o.notify("🚨 Filled order " + orderID + " could not be recorded, manual review needed")
		o.db.LogActivity(o.userID, "error", "execution",
			"orphaned order: filled without position row",
			map[string]interface{}{"order_id": orderID}, correlationID)
		return
	}

	o.tracker.SetPosition(g.EventID, pos.ID)
	o.persistTracked(g, false)
	o.notify(entryMessage(g, sig))
	o.publish("position_opened", map[string]interface{}{
		"position_id": pos.ID,
		"team":        sig.Team,
		"side":        string(sig.Side),
		"price":       sig.Price.StringFixed(2),
		"size":        sig.Size,
		"reason":      sig.Reason,
	})
	o.db.LogActivity(o.userID, "info", "execution", "position opened: "+sig.Reason,
		map[string]interface{}{"position_id": pos.ID}, correlationID)
}

func (o *Orchestrator) executeExit(g *types.TrackedGame, pos *storage.Position, sig *types.ExitSignal, gs *storage.GlobalSettings) {
	ctx, cancel := executionContext(time.Duration(gs.OrderFillTimeoutSeconds) * time.Second)
	defer cancel()

	correlationID := uuid.NewString()
	side := types.Side(pos.Side)

	ticker := g.Market.Ticker
	if ticker == "" {
		ticker = pos.Ticker
	}
	if ticker == "" {
		log.Error().Str("position", pos.ID).Msg("No ticker for exit, manual close needed")
		return
	}

	price := sig.Price
	if price.IsZero() {
		price = o.lastPrice(pos.ConditionID)
	}
	if price.IsZero() {
		log.Warn().Str("position", pos.ID).Msg("No price for exit, deferring")
		return
	}

	// Slippage guard applies to orderly exits; forced reasons get out at
	// whatever the book offers.
	forced := sig.Reason == types.ExitEmergencyStop || sig.Reason == types.ExitKillSwitch
	if !forced {
		ok, _, err := o.ex.CheckSlippage(ctx, ticker, price, types.ActionSell, side, gs.MaxSlippagePct)
		if err != nil {
			o.ks.RecordAPIError()
			return
		}
		if !ok {
			return // retry next pass
		}
	}

	orderID, err := o.ex.PlaceOrder(ctx, ticker, types.ActionSell, side, price, pos.EntrySize)
	if err != nil {
		o.ks.RecordAPIError()
		log.Error().Err(err).Str("position", pos.ID).Msg("Exit order failed")
		return
	}

	o.trackPending(orderID, pos.ConditionID, side, types.ActionSell, price, pos.EntrySize)
	defer o.untrackPending(orderID)

	fill, err := o.ex.WaitForFill(ctx, orderID, time.Duration(gs.OrderFillTimeoutSeconds)*time.Second)
	if err != nil {
		log.Warn().Err(err).Str("order", orderID).Msg("Fill wait interrupted")
	}

	switch fill {
	case types.FillFilled:
	case types.FillTimeout:
		if cerr := o.cancelOrder(orderID); cerr != nil {
			o.recordOrphan("exit", orderID, correlationID)
		}
		return // position stays open, retried next pass
	default:
		return
	}

	closed, err := o.db.ClosePosition(pos.ID, price, pos.EntrySize, sig.Reason, orderID)
	if err != nil {
		log.Error().Err(err).Str("position", pos.ID).Msg("Filled exit has no close row")
		o.notify("🚨 Exit fill for " + pos.ID + " could not be recorded, manual review needed")
		return
	}

	o.tracker.SetPosition(g.EventID, "")
	o.updateLossStreak(gs, closed.RealizedPnL)
	o.notify(exitMessage(g, closed, sig.Reason))
	o.publish("position_closed", map[string]interface{}{
		"position_id": closed.ID,
		"reason":      string(sig.Reason),
		"pnl":         closed.RealizedPnL.StringFixed(2),
	})
	o.db.LogActivity(o.userID, "info", "execution",
		"position closed: "+string(sig.Reason),
		map[string]interface{}{"position_id": closed.ID, "pnl": closed.RealizedPnL.StringFixed(2)},
		correlationID)
}

// closeAll force-exits every open position at the last known price less the
// crossing discount.
func (o *Orchestrator) closeAll(reason types.ExitReason) {
	positions, err := o.db.GetOpenPositions(o.userID)
	if err != nil {
		log.Error().Err(err).Msg("Close-all: cannot list open positions")
		return
	}

	gs, err := o.settings()
	if err != nil {
		return
	}

	for i := range positions {
		pos := &positions[i]
		price := o.lastPrice(pos.ConditionID)
		if price.IsZero() {
			price = pos.EntryPrice
		}
		price = price.Mul(closeAllDiscount)

		g, ok := o.tracker.GetByCondition(pos.ConditionID)
		if !ok {
			// Not tracked anymore; close directly against the store. The
			// ticker persisted on the position keeps the order placeable.
			g = &types.TrackedGame{
				EventID: pos.ConditionID,
				Market:  types.Market{ConditionID: pos.ConditionID, Ticker: pos.Ticker},
			}
		}
		o.executeExit(g, pos, &types.ExitSignal{Reason: reason, Price: price}, gs)
	}
}

// cancelOrder runs on a fresh context; the order context is typically
// already expired when a cancel is needed.
func (o *Orchestrator) cancelOrder(orderID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cancelBudget)
	defer cancel()
	return o.ex.CancelOrder(ctx, orderID)
}

// recordOrphan feeds the kill switch and leaves an audit trail for an order
// in an unknown terminal state.
func (o *Orchestrator) recordOrphan(kind, orderID, correlationID string) {
	o.ks.RecordOrphan()
	o.notify("⚠️ Orphaned " + kind + " order " + orderID + ", manual review needed")
	o.db.LogActivity(o.userID, "error", "execution",
		"orphaned "+kind+" order",
		map[string]interface{}{"order_id": orderID}, correlationID)
}

func (o *Orchestrator) updateLossStreak(gs *storage.GlobalSettings, pnl decimal.Decimal) {
	if pnl.LessThan(decimal.Zero) {
		gs.ConsecutiveLosses++
	} else {
		gs.ConsecutiveLosses = 0
	}
	// Column-level update: a whole-row save could clobber a kill-switch
	// trip that landed after this pass loaded its settings copy.
	if err := o.db.UpdateConsecutiveLosses(o.userID, gs.ConsecutiveLosses); err != nil {
		log.Error().Err(err).Msg("Failed to save loss streak")
	}
}

func (o *Orchestrator) trackPending(orderID, marketID string, side types.Side, action types.OrderAction, price decimal.Decimal, size int) {
	o.pendingMu.Lock()
	o.pending[orderID] = &types.PendingOrder{
		OrderID:  orderID,
		MarketID: marketID,
		Side:     side,
		Action:   action,
		Price:    price,
		Size:     size,
		PlacedAt: time.Now(),
	}
	o.pendingMu.Unlock()
}

func (o *Orchestrator) untrackPending(orderID string) {
	o.pendingMu.Lock()
	delete(o.pending, orderID)
	o.pendingMu.Unlock()
}

func entryMessage(g *types.TrackedGame, sig *types.EntrySignal) string {
	return "📈 Opened " + string(sig.Side) + " on " + sig.Team +
		" (" + g.AwayTeam + " @ " + g.HomeTeam + ") at " + sig.Price.StringFixed(2) +
		" × " + strconv.Itoa(sig.Size) + "\n" + sig.Reason
}

func exitMessage(g *types.TrackedGame, pos *storage.Position, reason types.ExitReason) string {
	emoji := "📉"
	if pos.RealizedPnL.GreaterThan(decimal.Zero) {
		emoji = "💰"
	}
	return emoji + " Closed " + pos.TeamName +
		" (" + g.AwayTeam + " @ " + g.HomeTeam + "): " + string(reason) +
		", P&L " + pos.RealizedPnL.StringFixed(2)
}
