package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy is returned by TryAcquire while another message is being processed.
	ErrBusy = errors.New("session is busy processing another message")
	// ErrSessionNotFound is returned for operations on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
)

type entry struct {
	state        *State
	lock         chan struct{}
	lastActivity time.Time
}

// Manager hands out sessions so that only one message per conversation is processed
// at a time.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	onStart  func(*State)

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

type ManagerOption func(*Manager)

// WithOnStart registers a callback invoked once for each newly created session.
func WithOnStart(f func(*State)) ManagerOption {
	return func(m *Manager) { m.onStart = f }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{sessions: map[string]*entry{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) getOrCreate(id string) *entry {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		e.lastActivity = time.Now()
	} else {
		e = &entry{state: NewState(id), lock: make(chan struct{}, 1), lastActivity: time.Now()}
		m.sessions[id] = e
	}
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("component", "session").Str("conv_id", id).Msg("session created")
		if m.onStart != nil {
			m.onStart(e.state)
		}
	}
	return e
}

// Acquire waits until the session is free and hands it out together with its
// release function. The session is created on first use.
func (m *Manager) Acquire(ctx context.Context, id string) (*State, func(), error) {
	if id == "" {
		return nil, nil, errors.New("session id is empty")
	}
	for {
		e := m.getOrCreate(id)
		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, errors.Wrapf(ctx.Err(), "waiting for session %s", id)
		}
		if m.live(id, e) {
			return e.state, m.releaseFunc(e), nil
		}
		<-e.lock
	}
}

// TryAcquire is Acquire without waiting.
func (m *Manager) TryAcquire(id string) (*State, func(), error) {
	if id == "" {
		return nil, nil, errors.New("session id is empty")
	}
	for {
		e := m.getOrCreate(id)
		select {
		case e.lock <- struct{}{}:
		default:
			return nil, nil, ErrBusy
		}
		if m.live(id, e) {
			return e.state, m.releaseFunc(e), nil
		}
		<-e.lock
	}
}

// live reports whether e is still the registered entry for id. An entry can be
// evicted between lookup and locking.
func (m *Manager) live(id string, e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id] == e
}

func (m *Manager) releaseFunc(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			e.lastActivity = time.Now()
			m.mu.Unlock()
			<-e.lock
		})
	}
}

// Reset runs the session start hook on an existing session.
func (m *Manager) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrSessionNotFound, id)
	}
	st, release, err := m.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	st.OnSessionStart()
	log.Info().Str("component", "session").Str("conv_id", id).Msg("session reset")
	return nil
}

// Exists reports whether a session with id is live.
func (m *Manager) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) SetEvictionConfig(idle, interval time.Duration) {
	m.mu.Lock()
	m.evictIdle = idle
	m.evictInterval = interval
	m.mu.Unlock()
}

func (m *Manager) StartEvictionLoop(ctx context.Context) {
	if ctx == nil {
		panic("session: StartEvictionLoop requires non-nil ctx")
	}
	m.mu.Lock()
	if m.evictRunning {
		m.mu.Unlock()
		return
	}
	idle := m.evictIdle
	interval := m.evictInterval
	if idle <= 0 || interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	go m.runEvictionLoop(ctx, interval)
}

func (m *Manager) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.evictRunning = false
			m.mu.Unlock()
			return
		case now := <-ticker.C:
			m.evictIdleOnce(now)
		}
	}
}

func (m *Manager) evictIdleOnce(now time.Time) int {
	if now.IsZero() {
		now = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evictIdle <= 0 {
		return 0
	}

	evicted := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastActivity) < m.evictIdle {
			continue
		}
		// skip sessions that are being processed
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		delete(m.sessions, id)
		<-e.lock
		evicted++
		log.Debug().Str("component", "session").Str("conv_id", id).Msg("evicted idle session")
	}
	return evicted
}
