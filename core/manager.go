package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/exchange"
	"github.com/sportsfade/fadebot/internal/config"
	"github.com/sportsfade/fadebot/scoreboard"
	"github.com/sportsfade/fadebot/storage"
)

// Manager owns one orchestrator per user and shares the clients between
// them.
type Manager struct {
	cfg      *config.Config
	ex       *exchange.Client
	scores   *scoreboard.Client
	db       *storage.Database
	notifier Notifier
	pub      Publisher

	mu    sync.RWMutex
	users map[string]*Orchestrator
}

func NewManager(cfg *config.Config, ex *exchange.Client, scores *scoreboard.Client, db *storage.Database, notifier Notifier, pub Publisher) *Manager {
	return &Manager{
		cfg:      cfg,
		ex:       ex,
		scores:   scores,
		db:       db,
		notifier: notifier,
		pub:      pub,
		users:    make(map[string]*Orchestrator),
	}
}

// StartUser brings up the orchestrator for a user, creating it on first use.
func (m *Manager) StartUser(ctx context.Context, userID string) (*Orchestrator, error) {
	m.mu.Lock()
	o, ok := m.users[userID]
	if !ok {
		o = NewOrchestrator(userID, m.cfg, m.ex, m.scores, m.db, m.notifier, m.pub)
		m.users[userID] = o
	}
	m.mu.Unlock()

	if o.State() == StateRunning || o.State() == StatePaused {
		return o, fmt.Errorf("already running")
	}
	if err := o.Start(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns the orchestrator for a user, if one exists.
func (m *Manager) Get(userID string) (*Orchestrator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.users[userID]
	return o, ok
}

// StopAll shuts every orchestrator down, in parallel.
func (m *Manager) StopAll() {
	m.mu.RLock()
	orchs := make([]*Orchestrator, 0, len(m.users))
	for _, o := range m.users {
		orchs = append(orchs, o)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, o := range orchs {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			o.Stop()
		}(o)
	}
	wg.Wait()
	log.Info().Int("users", len(orchs)).Msg("All orchestrators stopped")
}
