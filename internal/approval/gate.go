package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/session"
)

// State is the gate's lifecycle position.
type State int

const (
	// StateUninitialized means Start has not been called.
	StateUninitialized State = iota
	// StateAvailable means the supervisor session is live and judging.
	StateAvailable
	// StateUnavailable is permanent: the supervisor session failed to start
	// and every request from now on is denied.
	StateUnavailable
)

const supervisorInstructions = `You supervise an automated merge-conflict resolution run. Workers propose risky operations (shell commands, file writes, network access). Judge each one against the active conflict context and approve only operations that plausibly serve resolving the conflict at hand. Deny anything destructive, out of scope, or unexplained.`

// decisionSchema is the strict output contract for supervisor judgments.
var decisionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"decision": {"type": "string", "enum": ["approve", "deny"]},
		"reason": {"type": "string", "minLength": 1},
		"corrective_actions": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["decision", "reason"]
}`)

// decision is the wire shape of a supervisor judgment.
type decision struct {
	Decision          string   `json:"decision"`
	Reason            string   `json:"reason"`
	CorrectiveActions []string `json:"corrective_actions,omitempty"`
}

// Gate routes approval requests through a supervisor reasoning session.
// Access is serialized by an internal mutex; the context slot and the
// session are shared state.
type Gate struct {
	manager     *session.Manager
	coordinator session.Session
	log         *logx.LabelLogger
	model       string

	mu      sync.Mutex
	state   State
	sess    session.Session
	current *Context
}

// NewGate creates an uninitialized Gate. coordinator may be nil; denial
// notifications are then skipped.
func NewGate(manager *session.Manager, coordinator session.Session, model string, log *logx.LabelLogger) *Gate {
	return &Gate{
		manager:     manager,
		coordinator: coordinator,
		log:         log,
		model:       model,
	}
}

// Start brings up the supervisor session. Failure is swallowed: the gate
// transitions to StateUnavailable and denies everything from then on.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateUninitialized {
		return
	}
	s, err := g.manager.Start(ctx, session.Options{
		Label:        "supervisor",
		Model:        g.model,
		Instructions: supervisorInstructions,
	})
	if err != nil {
		g.state = StateUnavailable
		g.log.Errorf("supervisor session failed to start, gate is now fail-closed: %v", err)
		return
	}
	g.sess = s
	g.state = StateAvailable
	g.log.Infof("supervisor session %s available", s.ID())
}

// State returns the gate's current lifecycle position.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SetContext replaces the single context slot, last-write-wins.
func (g *Gate) SetContext(c *Context) {
	g.mu.Lock()
	g.current = c
	g.mu.Unlock()
	if c != nil {
		g.log.Infof("now monitoring conflict %s", c.ConflictPath)
	}
}

// HandleApproval judges one request. Any failure along the way resolves to
// a deny; the caller always gets a response.
func (g *Gate) HandleApproval(ctx context.Context, req Request) Response {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateAvailable {
		resp := Response{Reason: "approval gate unavailable: supervisor session is not running"}
		g.log.Warnf("[%s] denied: %s", req.Action, resp.Reason)
		return resp
	}

	// A request-borne context takes precedence over the shared slot.
	active := g.current
	if req.Context != nil {
		active = req.Context
	}

	completion, err := g.sess.Complete(ctx, session.Request{
		Prompt: judgmentPrompt(active, req),
		Schema: decisionSchema,
	})
	if err != nil {
		resp := Response{Reason: fmt.Sprintf("judgment failed: %v", err)}
		g.log.Errorf("[%s] denied: %s", req.Action, resp.Reason)
		return resp
	}

	d, err := parseDecision(completion)
	if err != nil {
		resp := Response{Reason: fmt.Sprintf("unparsable judgment: %v", err)}
		g.log.Errorf("[%s] denied: %s", req.Action, resp.Reason)
		return resp
	}

	resp := Response{
		Approved:          d.Decision == "approve",
		Reason:            d.Reason,
		CorrectiveActions: d.CorrectiveActions,
	}
	if resp.Approved {
		g.log.Infof("[%s] approved: %s", req.Action, resp.Reason)
	} else {
		g.log.Warnf("[%s] denied: %s", req.Action, resp.Reason)
		g.notifyCoordinator(ctx, req, resp)
	}
	return resp
}

// notifyCoordinator tells the coordinator session about a denial so the
// global plan can adapt. Best-effort; its own failure never alters the
// decision.
func (g *Gate) notifyCoordinator(ctx context.Context, req Request, resp Response) {
	if g.coordinator == nil {
		return
	}
	msg := fmt.Sprintf("A worker's %s action was denied: %s", req.Action, resp.Reason)
	if len(resp.CorrectiveActions) > 0 {
		msg += "\nSuggested corrections:\n- " + strings.Join(resp.CorrectiveActions, "\n- ")
	}
	if err := g.coordinator.Notify(ctx, msg); err != nil {
		g.log.Warnf("coordinator notification failed: %v", err)
	}
}

// judgmentPrompt assembles the supervisor's question. Missing context and
// missing details are stated explicitly rather than omitted.
func judgmentPrompt(c *Context, req Request) string {
	var b strings.Builder
	b.WriteString("## Active context\n")
	if c == nil {
		b.WriteString("no active context\n")
	} else {
		fmt.Fprintf(&b, "conflict: %s\n", c.ConflictPath)
		if c.PlanExcerpt != "" {
			fmt.Fprintf(&b, "plan: %s\n", c.PlanExcerpt)
		}
		if c.Divergence != "" {
			fmt.Fprintf(&b, "divergence: %s\n", c.Divergence)
		}
		if c.Notes != "" {
			fmt.Fprintf(&b, "notes: %s\n", c.Notes)
		}
	}
	fmt.Fprintf(&b, "\n## Proposed action\ntype: %s\n", req.Action)
	if len(req.Details) == 0 {
		b.WriteString("no details\n")
	} else {
		fmt.Fprintf(&b, "details: %s\n", req.Details)
	}
	b.WriteString("\nDecide whether this action may proceed.")
	return b.String()
}

// parseDecision accepts the two shapes supervisors have been observed to
// emit, as a tagged union with defined precedence: a bare decision object
// first, then one nested under an "output" key. Anything else is
// unparsable.
func parseDecision(c *session.Completion) (*decision, error) {
	raw := c.Output
	if len(raw) == 0 {
		raw = json.RawMessage(c.Text)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("approval: empty judgment")
	}

	var bare decision
	if err := json.Unmarshal(raw, &bare); err == nil && validDecision(&bare) {
		return &bare, nil
	}

	var nested struct {
		Output decision `json:"output"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && validDecision(&nested.Output) {
		return &nested.Output, nil
	}

	return nil, fmt.Errorf("approval: judgment matches neither bare nor output-nested decision shape")
}

func validDecision(d *decision) bool {
	return (d.Decision == "approve" || d.Decision == "deny") && d.Reason != ""
}
