package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/conflux/internal/logx"
)

// Manager centralizes session creation so every orchestration path gets
// identical bookkeeping. Diagnostics attachment happens exactly once per
// session identity; re-attachment is a no-op.
type Manager struct {
	runtime Runtime
	diag    Diagnostics
	log     *logx.LabelLogger

	mu       sync.Mutex
	attached map[string]bool
}

// NewManager creates a Manager. diag may be nil; sessions then start without
// instrumentation and a warning is the only observable effect.
func NewManager(runtime Runtime, diag Diagnostics, log *logx.LabelLogger) *Manager {
	return &Manager{
		runtime:  runtime,
		diag:     diag,
		log:      log,
		attached: make(map[string]bool),
	}
}

// Start creates a new session and attaches diagnostics to it.
func (m *Manager) Start(ctx context.Context, opts Options) (Session, error) {
	s, err := m.runtime.NewSession(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("session: start %s: %w", opts.Label, err)
	}
	m.attach(s, opts.Model)
	return s, nil
}

// Fork branches parent into a fresh session and attaches diagnostics to the
// new branch.
func (m *Manager) Fork(ctx context.Context, parent Session, opts Options) (Session, error) {
	s, err := m.runtime.ForkSession(ctx, parent, opts)
	if err != nil {
		return nil, fmt.Errorf("session: fork %s: %w", opts.Label, err)
	}
	m.attach(s, opts.Model)
	return s, nil
}

func (m *Manager) attach(s Session, model string) {
	if m.diag == nil {
		m.log.Warnf("no diagnostics sink; session %s starts uninstrumented", s.ID())
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached[s.ID()] {
		return
	}
	m.attached[s.ID()] = true
	m.diag.Attach(s.ID(), model)
}

// Attached reports whether diagnostics have been attached for sessionID.
func (m *Manager) Attached(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached[sessionID]
}
