package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("capture: session not found")

// ManagerConfig holds the collaborators of a Manager.
type ManagerConfig struct {
	Processor Processor
	Opener    Opener
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns the capture sessions.
type Manager struct {
	processor Processor
	opener    Opener
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		processor: cfg.Processor,
		opener:    cfg.Opener,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       cfg.Now,
		sessions:  make(map[string]*Session),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Start opens device and runs a capture loop on it in the background.
func (m *Manager) Start(device string) (*Session, error) {
	if m.opener == nil {
		return nil, errors.New("capture: no frame source configured")
	}
	if m.processor == nil {
		return nil, errors.New("capture: no frame processor configured")
	}

	source, err := m.opener(device)
	if err != nil {
		return nil, fmt.Errorf("opening device %q: %w", device, err)
	}

	s := newSession(uuid.New().String(), device, source, m.processor, m.observer, m.logger, m.now)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.updateActive()

	go func() {
		s.run(ctx)
		m.updateActive()
	}()
	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Stop stops a session and forgets it.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.Stop()
	m.updateActive()
	return nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status() == StatusRunning {
			n++
		}
	}
	return n
}

// StopAll stops every session, e.g. on shutdown.
func (m *Manager) StopAll() {
	for _, s := range m.List() {
		if err := m.Stop(s.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("failed to stop capture session", "session", s.ID, "error", err)
		}
	}
}

func (m *Manager) updateActive() {
	if m.observer != nil {
		m.observer.SetActiveSessions(m.Active())
	}
}
