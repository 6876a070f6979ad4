package budget

import (
	"sync"

	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/session"
)

// Monitor holds one Tracker per instrumented session. It is the diagnostics
// sink the session manager attaches to every session it creates.
type Monitor struct {
	log *logx.LabelLogger

	mu       sync.Mutex
	trackers map[string]*Tracker
}

var _ session.Diagnostics = (*Monitor)(nil)

// NewMonitor creates an empty Monitor.
func NewMonitor(log *logx.LabelLogger) *Monitor {
	return &Monitor{log: log, trackers: make(map[string]*Tracker)}
}

// Attach registers a tracker for sessionID. Attaching an already-tracked
// session keeps the existing tracker and its accumulated counts.
func (m *Monitor) Attach(sessionID, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trackers[sessionID]; ok {
		return
	}
	m.trackers[sessionID] = NewTracker(model)
	m.log.Debugf("tracking session %s (model %q)", sessionID, model)
}

// Tracker returns the tracker for sessionID, or nil when the session was
// never attached.
func (m *Monitor) Tracker(sessionID string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[sessionID]
}

// Record routes one turn's usage to the session's tracker. Unattached
// sessions are dropped with a warning rather than failing the turn.
func (m *Monitor) Record(sessionID string, u *session.Usage) {
	t := m.Tracker(sessionID)
	if t == nil {
		m.log.Warnf("usage for untracked session %s dropped", sessionID)
		return
	}
	t.Record(u)
}

// Release forgets the tracker for a finished session.
func (m *Monitor) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trackers, sessionID)
}
