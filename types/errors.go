package types

import "errors"

// Error kinds shared across packages. Wrap with fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	// ErrTransient covers socket/DNS/timeout/5xx/429 failures; retried via
	// backoff and the circuit breaker.
	ErrTransient = errors.New("transient network error")

	// ErrAuth is a 401/403; never retried, the bot pauses and alerts.
	ErrAuth = errors.New("authentication failed")

	// ErrValidation means an input failed a precondition.
	ErrValidation = errors.New("validation failed")

	// ErrRiskRejected means the risk gate denied an entry.
	ErrRiskRejected = errors.New("risk gate rejected")

	// ErrMatchNotFound means no market matched a game. Normal control flow.
	ErrMatchNotFound = errors.New("no matching market")

	// ErrOrphanedOrder means an order filled but the position row could not
	// be written. Requires reconciliation.
	ErrOrphanedOrder = errors.New("orphaned order")

	// ErrKillSwitch means the kill switch is active; every entry is rejected
	// until manual reset.
	ErrKillSwitch = errors.New("kill switch active")

	// ErrAlreadyOpen means an open position already exists for the key.
	ErrAlreadyOpen = errors.New("position already open")

	// ErrSlippage means the live book moved too far from the intended price.
	ErrSlippage = errors.New("slippage too high")

	// ErrCircuitOpen means the exchange circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrScoreboardStale means the scoreboard lags the market's own game
	// clock; callers fall back to market time.
	ErrScoreboardStale = errors.New("scoreboard stale")
)
