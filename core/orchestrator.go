package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sportsfade/fadebot/exchange"
	"github.com/sportsfade/fadebot/internal/config"
	"github.com/sportsfade/fadebot/risk"
	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/storage"
	"github.com/sportsfade/fadebot/tracker"
	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// One orchestrator per user. Owns the tracked-game set and runs the loops:
//
//   discovery   10s   find markets, match scoreboard games, track
//   scoreboard   5s   refresh live game state
//   price       10s   refresh quotes, capture baselines
//   trading      1s   evaluate entries and exits
//   health      60s   balance, breaker state, loop liveness
//   cleanup    120s   drop stale finished games
//   killswitch  30s   evaluate account-level triggers
//
// Lifecycle: stopped → starting → running → {paused, stopping, error} →
// stopped. Entries require running; exits keep working while paused.
//
// ═══════════════════════════════════════════════════════════════════════════════

// State is the orchestrator lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Notifier sends human-facing alerts. Satisfied by *bot.Telegram.
type Notifier interface {
	Notify(msg string)
}

// Publisher pushes structured events. Satisfied by *push.Hub.
type Publisher interface {
	Publish(ev types.Event)
}

type Orchestrator struct {
	userID string
	cfg    *config.Config

	ex      *exchange.Client
	scores  *scoreboard.Client
	db      *storage.Database
	tracker *tracker.Tracker
	ks      *risk.Monitor

	notifier Notifier
	pub      Publisher

	mu    sync.RWMutex
	state State

	// dailyLossPaused marks a pause caused by the daily loss limit, which
	// the health loop lifts on its own after the UTC day rolls over.
	dailyLossPaused bool

	// entryLocks serializes entry execution per token id. TryLock skips an
	// evaluation instead of queueing a stale one.
	entryLocks sync.Map // tokenID → *sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*types.PendingOrder

	// lastKnownPrice per condition id, for the kill-switch close-all when
	// fresh quotes are unavailable.
	priceMu    sync.RWMutex
	lastPrices map[string]decimal.Decimal

	stopCh chan struct{}
	wg     sync.WaitGroup

	// loop heartbeats for the health loop.
	beatMu sync.Mutex
	beats  map[string]time.Time
}

func NewOrchestrator(userID string, cfg *config.Config, ex *exchange.Client, scores *scoreboard.Client, db *storage.Database, notifier Notifier, pub Publisher) *Orchestrator {
	return &Orchestrator{
		userID:     userID,
		cfg:        cfg,
		ex:         ex,
		scores:     scores,
		db:         db,
		tracker:    tracker.New(cfg.MaxTrackedGames),
		ks:         risk.NewMonitor(db, userID),
		notifier:   notifier,
		pub:        pub,
		state:      StateStopped,
		pending:    make(map[string]*types.PendingOrder),
		lastPrices: make(map[string]decimal.Decimal),
		beats:      make(map[string]time.Time),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		log.Info().Str("user", o.userID).Str("from", string(prev)).Str("to", string(s)).Msg("Orchestrator state")
		o.publish("orchestrator_state", map[string]string{"from": string(prev), "to": string(s)})
	}
}

// Start brings the orchestrator up: recovery first, then the loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateStopped && o.state != StateError {
		o.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", o.state)
	}
	o.state = StateStarting
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	if err := o.recover(ctx); err != nil {
		o.setState(StateError)
		return fmt.Errorf("recovery: %w", err)
	}

	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"discovery", o.cfg.DiscoveryInterval, o.discoveryPass},
		{"scoreboard", o.cfg.ScoreboardInterval, o.scoreboardPass},
		{"price", o.cfg.PriceInterval, o.pricePass},
		{"trading", o.cfg.TradingInterval, o.tradingPass},
		{"health", o.cfg.HealthInterval, o.healthPass},
		{"cleanup", o.cfg.CleanupInterval, o.cleanupPass},
		{"killswitch", o.cfg.KillSwitchInterval, o.killSwitchPass},
	}
	for _, l := range loops {
		o.wg.Add(1)
		go o.runLoop(l.name, l.interval, l.run)
	}

	o.setState(StateRunning)
	log.Info().Str("user", o.userID).Msg("🚀 Orchestrator started")
	return nil
}

// Stop shuts down the loops within the shutdown budget. Open positions stay
// open; they are re-adopted by recovery on the next start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state == StateStopped || o.state == StateStopping {
		o.mu.Unlock()
		return
	}
	o.state = StateStopping
	close(o.stopCh)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(o.cfg.ShutdownBudget):
		log.Warn().Str("user", o.userID).Msg("Shutdown budget exceeded, abandoning loops")
	}

	o.setState(StateStopped)
	log.Info().Str("user", o.userID).Msg("Orchestrator stopped")
}

// Pause blocks new entries. Exits and monitoring continue.
func (o *Orchestrator) Pause(reason string) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.state = StatePaused
	}
	o.mu.Unlock()
	log.Warn().Str("user", o.userID).Str("reason", reason).Msg("⏸ Orchestrator paused")
	o.notify(fmt.Sprintf("⏸ Trading paused: %s", reason))
	o.db.LogActivity(o.userID, "warn", "lifecycle", "paused: "+reason, nil, "")
}

// Resume re-enables entries after a pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	if o.state == StatePaused {
		o.state = StateRunning
	}
	o.dailyLossPaused = false
	o.mu.Unlock()
	log.Info().Str("user", o.userID).Msg("▶ Orchestrator resumed")
	o.db.LogActivity(o.userID, "info", "lifecycle", "resumed", nil, "")
}

// EmergencyStop closes every open position at market, persists the stop
// flag, and shuts the loops down. Restarting requires clearing the flag.
func (o *Orchestrator) EmergencyStop() {
	log.Error().Str("user", o.userID).Msg("🛑 EMERGENCY STOP")
	o.notify("🛑 EMERGENCY STOP: closing all positions")
	if err := o.db.SetEmergencyStop(o.userID, true); err != nil {
		log.Error().Err(err).Msg("Failed to persist emergency stop")
	}
	o.closeAll(types.ExitEmergencyStop)
	o.Stop()
}

// ResetKillSwitch clears the persisted kill switch. Manual action.
func (o *Orchestrator) ResetKillSwitch() error {
	return o.ks.Reset()
}

// TrackGame adds a user-selected market to the tracked set before discovery
// would find it on its own.
func (o *Orchestrator) TrackGame(m types.Market, sel types.TeamSelection) bool {
	g := &types.TrackedGame{
		EventID:     m.ConditionID, // synthetic until the scoreboard match resolves
		Sport:       m.Sport,
		HomeTeam:    m.HomeTeam,
		AwayTeam:    m.AwayTeam,
		Market:      m,
		Selection:   sel,
		BaselineYes: m.YesPrice,
		CurrentYes:  m.YesPrice,
		Status:      types.StatusPre,
		AddedAt:     time.Now(),
	}
	if !o.tracker.Add(g) {
		return false
	}
	o.persistTracked(g, sel != types.SelectAuto)
	if sel != types.SelectAuto {
		if err := o.db.AddSelectedGame(o.userID, m.ConditionID); err != nil {
			log.Error().Err(err).Str("condition", m.ConditionID).Msg("Failed to persist game selection")
		}
	}
	return true
}

// Status is a point-in-time snapshot for the status surfaces.
type Status struct {
	State        State
	TrackedGames int
	OpenOrders   int
	BreakerState string
	KillSwitch   bool
	KillReason   string
}

func (o *Orchestrator) Snapshot() Status {
	active, reason := o.ks.Active()
	o.pendingMu.Lock()
	pending := len(o.pending)
	o.pendingMu.Unlock()
	return Status{
		State:        o.State(),
		TrackedGames: o.tracker.Len(),
		OpenOrders:   pending,
		BreakerState: o.ex.BreakerState(),
		KillSwitch:   active,
		KillReason:   reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTERNALS
// ═══════════════════════════════════════════════════════════════════════════════

// runLoop is the shared ticker skeleton. Each pass gets a context bounded a
// little under the interval so a slow pass cannot stack.
func (o *Orchestrator) runLoop(name string, interval time.Duration, pass func(context.Context)) {
	defer o.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	budget := interval * 9 / 10
	if budget < time.Second {
		budget = time.Second
	}

	// Immediate first pass so startup is not one full interval behind.
	o.runPass(name, budget, pass)

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.runPass(name, budget, pass)
		}
	}
}

func (o *Orchestrator) runPass(name string, budget time.Duration, pass func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("loop", name).Interface("panic", r).Msg("Loop pass panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	pass(ctx)

	o.beatMu.Lock()
	o.beats[name] = time.Now()
	o.beatMu.Unlock()
}

func (o *Orchestrator) entriesAllowed() bool {
	return o.State() == StateRunning
}

func (o *Orchestrator) notify(msg string) {
	if o.notifier != nil {
		o.notifier.Notify(msg)
	}
}

func (o *Orchestrator) publish(event string, data interface{}) {
	if o.pub != nil {
		o.pub.Publish(types.Event{
			Event:     event,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (o *Orchestrator) lastPrice(conditionID string) decimal.Decimal {
	o.priceMu.RLock()
	defer o.priceMu.RUnlock()
	return o.lastPrices[conditionID]
}

func (o *Orchestrator) setLastPrice(conditionID string, p decimal.Decimal) {
	o.priceMu.Lock()
	o.lastPrices[conditionID] = p
	o.priceMu.Unlock()
}

func (o *Orchestrator) persistTracked(g *types.TrackedGame, userSelected bool) {
	tm := &storage.TrackedMarket{
		ConditionID:       g.Market.ConditionID,
		UserID:            o.userID,
		Ticker:            g.Market.Ticker,
		YesTokenID:        g.Market.YesTokenID,
		NoTokenID:         g.Market.NoTokenID,
		Question:          g.Market.Question,
		Sport:             g.Sport,
		HomeTeam:          g.HomeTeam,
		AwayTeam:          g.AwayTeam,
		BaselineYes:       g.BaselineYes,
		BaselineNo:        decimal.NewFromInt(1).Sub(g.BaselineYes),
		CurrentYes:        g.CurrentYes,
		ScoreboardEventID: scoreboardEventID(g),
		GameStart:         g.Market.GameStart,
		IsLive:            g.Status == types.StatusIn,
		IsFinished:        g.Status == types.StatusPost,
		IsUserSelected:    userSelected,
	}
	if err := o.db.UpsertTrackedMarket(tm); err != nil {
		log.Error().Err(err).Str("condition", tm.ConditionID).Msg("Failed to persist tracked market")
	}
}

// scoreboardEventID returns the resolved event id, or empty while the key is
// still the synthetic condition id.
func scoreboardEventID(g *types.TrackedGame) string {
	if g.EventID == g.Market.ConditionID {
		return ""
	}
	return g.EventID
}
