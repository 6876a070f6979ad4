// Package approval implements the supervisor: a dedicated reasoning session
// that judges whether a proposed risky action may proceed. The gate is
// fail-closed; every ambiguity, failure, or unparsable judgment resolves to
// a deny.
package approval

import "encoding/json"

// ActionType enumerates the kinds of risky operations workers request.
type ActionType string

const (
	ActionShell     ActionType = "shell"
	ActionFileWrite ActionType = "file_write"
	ActionNetwork   ActionType = "network"
	ActionOther     ActionType = "other"
)

// Request is one approval question. Context, when set, rides along with the
// request so concurrent workers do not race on the gate's shared slot.
type Request struct {
	ID      string          `json:"id"`
	Action  ActionType      `json:"action"`
	Details json.RawMessage `json:"details,omitempty"`
	Context *Context        `json:"context,omitempty"`
}

// Response is the gate's decision for one Request.
type Response struct {
	Approved          bool     `json:"approved"`
	Reason            string   `json:"reason"`
	CorrectiveActions []string `json:"correctiveActions,omitempty"`
}

// Context describes what the current worker is working on. Held in the
// gate's single mutable slot and overwritten as workers begin; not persisted
// across runs.
type Context struct {
	ConflictPath string `json:"conflictPath"`
	PlanExcerpt  string `json:"planExcerpt,omitempty"`
	Divergence   string `json:"divergence,omitempty"`
	Notes        string `json:"notes,omitempty"`
}
