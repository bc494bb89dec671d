package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"parley/internal/models"
)

type Store interface {
	SetPresence(userID string, presence models.Presence) error
}

// Notifier is told about every presence change after it was written.
type Notifier interface {
	PresenceChanged(userID string, presence models.Presence)
}

type change struct {
	userID   string
	presence models.Presence
}

// Manager turns connection transitions into durable presence writes.
// Online and Offline only enqueue; Run performs the writes in order.
type Manager struct {
	store    Store
	log      *slog.Logger
	now      func() time.Time
	notifier Notifier

	mu      sync.Mutex
	pending []change
	wake    chan struct{}
}

// NewManager returns a manager writing to store. notifier may be nil.
func NewManager(store Store, notifier Notifier, log *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
}

func (m *Manager) Online(userID string) {
	m.enqueue(change{userID: userID, presence: models.Presence{Online: true}})
}

func (m *Manager) Offline(userID string) {
	m.enqueue(change{userID: userID, presence: models.Presence{Online: false, LastSeen: m.now().UnixMilli()}})
}

func (m *Manager) enqueue(c change) {
	m.mu.Lock()
	m.pending = append(m.pending, c)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes queued changes until ctx is done, then flushes what is left.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-m.wake:
			m.flush()
		case <-ctx.Done():
			m.flush()
			m.log.Debug("presence manager stopped")
			return nil
		}
	}
}

func (m *Manager) flush() {
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			m.apply(c)
		}
	}
}

func (m *Manager) apply(c change) {
	if err := m.store.SetPresence(c.userID, c.presence); err != nil {
		m.log.Warn("failed to persist presence", "user_id", c.userID, "online", c.presence.Online, "error", err)
	}
	if m.notifier != nil {
		m.notifier.PresenceChanged(c.userID, c.presence)
	}
}
