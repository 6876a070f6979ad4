package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/conflux/internal/budget"
	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/plan"
	"github.com/dusk-indust/conflux/internal/session"
)

// Compile-time interface check.
var _ Resolver = (*SessionResolver)(nil)

const workerInstructions = `You resolve one merge-conflicted file. Edit the file in the workspace until every conflict marker is gone and both sides' intent is preserved. Risky operations must go through the approve tool. Report done when the file is fully resolved, continue when you need another turn, failed when the conflict cannot be resolved.`

// workerSchema is the strict per-turn status contract for workers.
var workerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["done", "continue", "failed"]},
		"summary": {"type": "string"}
	},
	"required": ["status"]
}`)

type workerTurn struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

// maxResolveTurns bounds how many turns one file may consume.
const maxResolveTurns = 8

// SessionResolver resolves conflicts by driving one reasoning session per
// file. Sessions are budget-tracked; crossing the fork threshold branches
// the session to a fresh context window before continuing.
type SessionResolver struct {
	manager *session.Manager
	monitor *budget.Monitor
	model   string
	log     *logx.LabelLogger
}

// NewSessionResolver creates a SessionResolver. monitor may be nil, which
// disables fork signaling.
func NewSessionResolver(manager *session.Manager, monitor *budget.Monitor, model string, log *logx.LabelLogger) *SessionResolver {
	return &SessionResolver{manager: manager, monitor: monitor, model: model, log: log}
}

// Resolve runs the worker loop for one file until it reports done, fails,
// or exhausts its turn budget.
func (r *SessionResolver) Resolve(ctx context.Context, cc *gitx.ConflictContext, fp *plan.FilePlan) error {
	opts := session.Options{
		Label:        "worker:" + cc.Path,
		Model:        r.model,
		Instructions: workerInstructions,
	}
	sess, err := r.manager.Start(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { sess.Close() }()

	prompt := workerPrompt(cc, fp)
	for turn := 0; turn < maxResolveTurns; turn++ {
		completion, err := sess.Complete(ctx, session.Request{
			Prompt: prompt,
			Schema: workerSchema,
		})
		if err != nil {
			return fmt.Errorf("orchestrator: %s turn %d: %w", cc.Path, turn+1, err)
		}
		if r.monitor != nil {
			r.monitor.Record(sess.ID(), completion.Usage)
		}

		status, err := parseTurn(completion)
		if err != nil {
			return fmt.Errorf("orchestrator: %s turn %d: %w", cc.Path, turn+1, err)
		}
		switch status.Status {
		case "done":
			r.log.Infof("%s resolved: %s", cc.Path, status.Summary)
			return nil
		case "failed":
			return fmt.Errorf("orchestrator: %s: worker gave up: %s", cc.Path, status.Summary)
		}

		sess, err = r.maybeFork(ctx, sess, opts)
		if err != nil {
			return err
		}
		prompt = "Continue resolving the file."
	}
	return fmt.Errorf("orchestrator: %s: turn budget exhausted", cc.Path)
}

// maybeFork branches the session when its budget crosses the fork
// threshold. The old session is closed once the branch is live. On fork
// failure the original session comes back with the error so the caller's
// deferred Close still has a live session to act on.
func (r *SessionResolver) maybeFork(ctx context.Context, sess session.Session, opts session.Options) (session.Session, error) {
	if r.monitor == nil {
		return sess, nil
	}
	tracker := r.monitor.Tracker(sess.ID())
	if tracker == nil || !tracker.ShouldFork() {
		return sess, nil
	}
	if tracker.ShouldHandoff() {
		r.log.Warnf("%s: past the handoff threshold (%.0f%% used), forking now is urgent",
			opts.Label, tracker.UsagePercentage()*100)
	}

	forked, err := r.manager.Fork(ctx, sess, opts)
	if err != nil {
		return sess, fmt.Errorf("orchestrator: fork %s: %w", opts.Label, err)
	}
	r.log.Infof("%s: forked session %s into %s at %.0f%% context usage",
		opts.Label, sess.ID(), forked.ID(), tracker.UsagePercentage()*100)
	sess.Close()
	r.monitor.Release(sess.ID())
	return forked, nil
}

// parseTurn reads a worker's structured status, falling back to the text
// channel when the backend put JSON there instead.
func parseTurn(c *session.Completion) (*workerTurn, error) {
	raw := c.Output
	if len(raw) == 0 && c.Text != "" {
		raw = json.RawMessage(c.Text)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty worker turn")
	}
	var t workerTurn
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unparsable worker turn: %w", err)
	}
	switch t.Status {
	case "done", "continue", "failed":
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown worker status %q", t.Status)
	}
}

// workerPrompt renders the evidence bundle for one file.
func workerPrompt(cc *gitx.ConflictContext, fp *plan.FilePlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conflict: %s\n", cc.Path)
	fmt.Fprintf(&b, "kind: %s, %d lines, %d conflict markers\n", cc.Kind, cc.LineCount, cc.MarkerCount)
	if fp != nil {
		fmt.Fprintf(&b, "\n## Plan\nstrategy: %s\ncomplexity: %s\n", fp.Strategy, fp.Complexity)
	}
	fmt.Fprintf(&b, "\n## Working copy\n%s\n", cc.WorkingCopy)
	section := func(name, body string) {
		if body != "" {
			fmt.Fprintf(&b, "\n## %s\n%s\n", name, body)
		}
	}
	section("Diff", cc.Diff)
	section("Base stage", cc.Base)
	section("Our stage", cc.Ours)
	section("Their stage", cc.Theirs)
	section("Base vs ours", cc.BaseOursDiff)
	section("Base vs theirs", cc.BaseTheirsDiff)
	section("Ours vs theirs", cc.OursTheirsDiff)
	section("Origin content", cc.OriginContent)
	section("Upstream content", cc.UpstreamContent)
	section("History", cc.History)
	section("Local commits since divergence", cc.LocalCommits)
	b.WriteString("\nResolve the file and report your status.")
	return b.String()
}
