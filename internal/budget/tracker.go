// Package budget tracks token usage per reasoning session and signals when
// a session should fork to a fresh context window before it overflows.
package budget

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dusk-indust/conflux/internal/session"
)

// Thresholds as fractions of the model's context limit. Fork fires inclusive
// at its boundary; handoff strictly above its own, higher boundary. Fork is
// tuned below backend auto-compaction so forking stays proactive.
const (
	DefaultForkThreshold    = 0.65
	DefaultHandoffThreshold = 0.85
)

// DefaultContextLimit is the conservative fallback for unknown models.
const DefaultContextLimit = 128000

// contextLimits maps exact model names to context sizes.
var contextLimits = map[string]int{
	"claude-sonnet-4-5": 200000,
	"claude-opus-4-1":   200000,
	"claude-haiku-4-5":  200000,
	"gpt-5":             272000,
	"gpt-5-codex":       272000,
	"gemini-2.5-pro":    1048576,
	"gemini-2.5-flash":  1048576,
}

// familyLimits maps model-name prefixes to context sizes. Longest matching
// prefix wins.
var familyLimits = map[string]int{
	"claude-": 200000,
	"gpt-4o":  128000,
	"gpt-5":   272000,
	"gemini-": 1048576,
	"o3":      200000,
}

// Tracker accumulates usage for one session. Query methods never mutate.
type Tracker struct {
	mu        sync.Mutex
	model     string
	forkAt    float64
	handoffAt float64

	input  int
	cached int
	output int
}

// NewTracker creates a Tracker for model with the default thresholds.
func NewTracker(model string) *Tracker {
	t, _ := NewTrackerWithThresholds(model, DefaultForkThreshold, DefaultHandoffThreshold)
	return t
}

// NewTrackerWithThresholds creates a Tracker with explicit thresholds.
// Thresholds must be strictly increasing and below 1.0.
func NewTrackerWithThresholds(model string, fork, handoff float64) (*Tracker, error) {
	if fork <= 0 || fork >= handoff || handoff >= 1.0 {
		return nil, fmt.Errorf("budget: thresholds must satisfy 0 < fork < handoff < 1.0, got %v and %v", fork, handoff)
	}
	return &Tracker{model: model, forkAt: fork, handoffAt: handoff}, nil
}

// Record accumulates one turn's usage. A nil usage is a no-op; backends may
// omit usage on some turns.
func (t *Tracker) Record(u *session.Usage) {
	if u == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += u.Input
	t.cached += u.Cached
	t.output += u.Output
}

// CurrentUsage returns input+output tokens. Cached tokens are tracked but
// excluded: they are re-used context, not new budget pressure.
func (t *Tracker) CurrentUsage() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input + t.output
}

// CachedTokens returns the accumulated cached-input count.
func (t *Tracker) CachedTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cached
}

// ContextLimit resolves the model's maximum context size: exact name match,
// then longest matching family prefix, then the conservative default.
func (t *Tracker) ContextLimit() int {
	if limit, ok := contextLimits[t.model]; ok {
		return limit
	}
	best := ""
	for prefix := range familyLimits {
		if strings.HasPrefix(t.model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return familyLimits[best]
	}
	return DefaultContextLimit
}

// UsagePercentage returns usage as a fraction of the context limit.
func (t *Tracker) UsagePercentage() float64 {
	return float64(t.CurrentUsage()) / float64(t.ContextLimit())
}

// RemainingTokens returns the unconsumed share of the context window, never
// negative.
func (t *Tracker) RemainingTokens() int {
	remaining := t.ContextLimit() - t.CurrentUsage()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ShouldFork reports whether the session has reached the fork threshold.
// The boundary is inclusive.
func (t *Tracker) ShouldFork() bool {
	return t.UsagePercentage() >= t.forkAt
}

// ShouldHandoff reports whether forking is now urgent. The boundary is
// strictly above the handoff threshold.
func (t *Tracker) ShouldHandoff() bool {
	return t.UsagePercentage() > t.handoffAt
}

// KnownModels lists the exact-match model table, sorted, for status output.
func KnownModels() []string {
	names := make([]string, 0, len(contextLimits))
	for name := range contextLimits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
