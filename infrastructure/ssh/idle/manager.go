// Package idle detects listeners that stayed inactive for too long.
package idle

import (
	"context"
	"sshcore/application/logging"
	"sshcore/infrastructure/settings"
	"sync"
	"time"
)

// Listener is told when it has been inactive for the manager's threshold.
type Listener interface {
	// Idle runs on the sweeping goroutine. Returning true unregisters the
	// listener; false keeps it with its activity timestamp unchanged.
	Idle(inactive time.Duration) (done bool)
}

type change struct {
	listener Listener
	remove   bool
	at       time.Time
}

// Manager tracks the last activity of registered listeners and reports the
// idle ones on each sweep. Register, Remove and Reset may be called while a
// sweep runs; registrations and removals made meanwhile are applied once it
// finishes.
type Manager struct {
	period    time.Duration
	threshold time.Duration
	clock     func() time.Time
	logger    logging.Logger

	mu        sync.Mutex
	entries   map[Listener]time.Time
	sweeping  bool
	pending   []change
	lastSweep time.Time
}

func NewManager(cfg settings.Idle, clock func() time.Time, logger logging.Logger) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		period:    cfg.ServicePeriod.Duration(),
		threshold: cfg.Threshold(),
		clock:     clock,
		logger:    logger,
		entries:   make(map[Listener]time.Time),
	}
}

func (m *Manager) Period() time.Duration    { return m.period }
func (m *Manager) Threshold() time.Duration { return m.threshold }

func (m *Manager) Register(l Listener) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeping {
		m.pending = append(m.pending, change{listener: l, at: now})
		return
	}
	m.entries[l] = now
}

func (m *Manager) Remove(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeping {
		m.pending = append(m.pending, change{listener: l, remove: true})
		return
	}
	delete(m.entries, l)
}

// Reset marks new activity. Unknown listeners are ignored.
func (m *Manager) Reset(l Listener) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[l]; ok {
		m.entries[l] = now
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type candidate struct {
	listener Listener
	inactive time.Duration
}

// Sweep reports every listener inactive for at least the threshold and
// returns how many were reported. Calls closer together than the service
// period do nothing.
func (m *Manager) Sweep() int {
	now := m.clock()
	m.mu.Lock()
	if m.sweeping || (!m.lastSweep.IsZero() && now.Sub(m.lastSweep) < m.period) {
		m.mu.Unlock()
		return 0
	}
	m.sweeping = true
	m.lastSweep = now
	var due []candidate
	for l, at := range m.entries {
		if inactive := now.Sub(at); inactive >= m.threshold {
			due = append(due, candidate{listener: l, inactive: inactive})
		}
	}
	m.mu.Unlock()

	var finished []Listener
	reported := 0
	for _, c := range due {
		if m.removedMeanwhile(c.listener) {
			continue
		}
		reported++
		if c.listener.Idle(c.inactive) {
			finished = append(finished, c.listener)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range finished {
		delete(m.entries, l)
	}
	for _, c := range m.pending {
		if c.remove {
			delete(m.entries, c.listener)
		} else {
			m.entries[c.listener] = c.at
		}
	}
	m.pending = nil
	m.sweeping = false
	return reported
}

func (m *Manager) removedMeanwhile(l Listener) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.pending {
		if c.remove && c.listener == l {
			return true
		}
	}
	return false
}

// Run sweeps once per service period until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && m.logger != nil {
				m.logger.Printf("idle sweep reported %d connection(s)", n)
			}
		}
	}
}
