package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/core"
	"github.com/sportsfade/fadebot/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - alerts and operator commands
// ═══════════════════════════════════════════════════════════════════════════════

type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64

	manager *core.Manager
	db      *storage.Database
	userID  string
}

// New connects to Telegram. A missing token disables the bot; Notify becomes
// a no-op so the orchestrator never cares.
func New(token string, chatID int64, db *storage.Database, userID string) (*Telegram, error) {
	if token == "" {
		log.Warn().Msg("Telegram token not set, alerts disabled")
		return &Telegram{chatID: chatID, db: db, userID: userID}, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}

	log.Info().Str("bot", api.Self.UserName).Msg("🤖 Telegram bot connected")
	return &Telegram{api: api, chatID: chatID, db: db, userID: userID}, nil
}

// SetManager wires the manager after construction; the manager needs the
// notifier first.
func (t *Telegram) SetManager(m *core.Manager) {
	t.manager = m
}

// Notify sends an alert to the configured chat.
func (t *Telegram) Notify(msg string) {
	if t.api == nil || t.chatID == 0 {
		return
	}
	m := tgbotapi.NewMessage(t.chatID, msg)
	if _, err := t.api.Send(m); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}

// Run polls for commands until the context ends.
func (t *Telegram) Run(ctx context.Context) {
	if t.api == nil {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if t.chatID != 0 && update.Message.Chat.ID != t.chatID {
				continue // unknown chat
			}
			t.handleCommand(ctx, update.Message)
		}
	}
}

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	reply := func(text string) {
		m := tgbotapi.NewMessage(msg.Chat.ID, text)
		if _, err := t.api.Send(m); err != nil {
			log.Warn().Err(err).Msg("Telegram reply failed")
		}
	}

	switch msg.Command() {
	case "start":
		if t.manager == nil {
			reply("Not ready")
			return
		}
		if _, err := t.manager.StartUser(ctx, t.userID); err != nil {
			reply("Start failed: " + err.Error())
			return
		}
		reply("✅ Trading started")

	case "stop":
		if o, ok := t.orch(); ok {
			o.Stop()
			reply("Stopped")
		} else {
			reply("Not running")
		}

	case "pause":
		if o, ok := t.orch(); ok {
			o.Pause("operator command")
			reply("⏸ Paused")
		} else {
			reply("Not running")
		}

	case "resume":
		if o, ok := t.orch(); ok {
			o.Resume()
			reply("▶ Resumed")
		} else {
			reply("Not running")
		}

	case "status":
		reply(t.statusText())

	case "pnl":
		reply(t.pnlText())

	case "positions":
		reply(t.positionsText())

	case "emergencystop":
		if o, ok := t.orch(); ok {
			o.EmergencyStop()
			reply("🛑 Emergency stop executed")
		} else {
			reply("Not running")
		}

	case "resetkillswitch":
		if o, ok := t.orch(); ok {
			if err := o.ResetKillSwitch(); err != nil {
				reply("Reset failed: " + err.Error())
			} else {
				reply("Kill switch reset")
			}
		} else {
			reply("Not running")
		}

	default:
		reply("Commands: /start /stop /pause /resume /status /pnl /positions /emergencystop /resetkillswitch")
	}
}

func (t *Telegram) orch() (*core.Orchestrator, bool) {
	if t.manager == nil {
		return nil, false
	}
	return t.manager.Get(t.userID)
}

func (t *Telegram) statusText() string {
	o, ok := t.orch()
	if !ok {
		return "Orchestrator not started"
	}
	s := o.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", s.State)
	fmt.Fprintf(&b, "Tracked games: %d\n", s.TrackedGames)
	fmt.Fprintf(&b, "Open orders: %d\n", s.OpenOrders)
	fmt.Fprintf(&b, "Breaker: %s\n", s.BreakerState)
	if s.KillSwitch {
		fmt.Fprintf(&b, "🚨 Kill switch: %s\n", s.KillReason)
	}
	return b.String()
}

func (t *Telegram) pnlText() string {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	pnl, err := t.db.DailyRealizedPnL(t.userID, dayStart)
	if err != nil {
		return "P&L unavailable: " + err.Error()
	}
	exposure, _ := t.db.OpenExposure(t.userID)
	return fmt.Sprintf("Today: %s\nOpen exposure: %s",
		storage.FormatUSDC(pnl), storage.FormatUSDC(exposure))
}

func (t *Telegram) positionsText() string {
	positions, err := t.db.GetOpenPositions(t.userID)
	if err != nil {
		return "Positions unavailable: " + err.Error()
	}
	if len(positions) == 0 {
		return "No open positions"
	}
	var b strings.Builder
	for _, p := range positions {
		fmt.Fprintf(&b, "%s %s @ %s × %d (%s)\n",
			p.Side, p.TeamName, p.EntryPrice.StringFixed(2), p.EntrySize, p.EntryReason)
	}
	return b.String()
}
