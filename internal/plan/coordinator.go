package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/conflux/internal/budget"
	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/session"
)

// CoordinatorInstructions is the system role for the planning session.
const CoordinatorInstructions = `You coordinate an automated merge-conflict resolution run. Given a repository snapshot you produce a resolution plan: an executive summary, a per-file strategy with a complexity rating, groups of files whose resolutions are coupled, a resolution sequence, and post-resolution verification steps. Workers will follow your plan file by file.`

// planSchema is the strict output contract for plan synthesis.
var planSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"strategy": {"type": "string"},
					"complexity": {"type": "string", "enum": ["trivial", "moderate", "complex"]}
				},
				"required": ["path", "strategy", "complexity"]
			}
		},
		"couplings": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}},
		"sequence": {"type": "array", "items": {"type": "string"}},
		"verification": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary", "files", "sequence"]
}`)

// Coordinator invokes the planning session and falls back deterministically
// when synthesis fails.
type Coordinator struct {
	sess    session.Session
	monitor *budget.Monitor
	log     *logx.LabelLogger
}

// NewCoordinator creates a Coordinator. monitor may be nil.
func NewCoordinator(sess session.Session, monitor *budget.Monitor, log *logx.LabelLogger) *Coordinator {
	return &Coordinator{sess: sess, monitor: monitor, log: log}
}

// Synthesize produces a plan for the snapshot. It never fails: any error or
// malformed output degrades to the fallback plan.
func (c *Coordinator) Synthesize(ctx context.Context, snap *gitx.RepoSnapshot) *Plan {
	completion, err := c.sess.Complete(ctx, session.Request{
		Prompt: snapshotPrompt(snap),
		Schema: planSchema,
	})
	if err != nil {
		c.log.Warnf("plan synthesis failed, using fallback: %v", err)
		return Fallback(snap)
	}
	if c.monitor != nil {
		c.monitor.Record(c.sess.ID(), completion.Usage)
	}

	p, err := parsePlan(completion.Output, snap)
	if err != nil {
		c.log.Warnf("plan output rejected, using fallback: %v", err)
		return Fallback(snap)
	}
	c.log.Infof("plan ready: %d files, %d coupling groups", len(p.Files), len(p.Couplings))
	return p
}

// parsePlan validates the coordinator's output against the snapshot: every
// conflicting file needs a strategy, and the plan must not reference paths
// outside the conflict set.
func parsePlan(raw json.RawMessage, snap *gitx.RepoSnapshot) (*Plan, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("plan: empty output")
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if p.Summary == "" {
		return nil, fmt.Errorf("plan: missing summary")
	}

	known := make(map[string]bool)
	for _, path := range snap.ConflictPaths() {
		known[path] = true
	}
	planned := make(map[string]bool)
	for _, f := range p.Files {
		if !known[f.Path] {
			return nil, fmt.Errorf("plan: strategy for unknown path %s", f.Path)
		}
		planned[f.Path] = true
	}
	for path := range known {
		if !planned[path] {
			return nil, fmt.Errorf("plan: no strategy for conflicting path %s", path)
		}
	}
	for _, path := range p.Sequence {
		if !known[path] {
			return nil, fmt.Errorf("plan: sequence references unknown path %s", path)
		}
	}
	for _, group := range p.Couplings {
		for _, path := range group {
			if !known[path] {
				return nil, fmt.Errorf("plan: coupling references unknown path %s", path)
			}
		}
	}
	return &p, nil
}

// snapshotPrompt renders the snapshot for the planning session. Conflict
// excerpts are already bounded; this only assembles them.
func snapshotPrompt(snap *gitx.RepoSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repository\nbranch: %s\n", snap.Branch)
	if snap.MergeBase != "" {
		fmt.Fprintf(&b, "merge base: %s\n", snap.MergeBase)
	}
	if snap.Status != "" {
		fmt.Fprintf(&b, "\n## Status\n%s\n", snap.Status)
	}
	if snap.RecentLog != "" {
		fmt.Fprintf(&b, "\n## Recent commits\n%s\n", snap.RecentLog)
	}
	if snap.Remotes != nil {
		fmt.Fprintf(&b, "\n## Remote divergence (%s vs %s)\n", snap.Remotes.Origin, snap.Remotes.Upstream)
		if len(snap.Remotes.MissingFromOrigin) > 0 {
			fmt.Fprintf(&b, "only on %s:\n%s\n", snap.Remotes.Upstream, strings.Join(snap.Remotes.MissingFromOrigin, "\n"))
		}
		if len(snap.Remotes.MissingFromUpstream) > 0 {
			fmt.Fprintf(&b, "only on %s:\n%s\n", snap.Remotes.Origin, strings.Join(snap.Remotes.MissingFromUpstream, "\n"))
		}
	}
	fmt.Fprintf(&b, "\n# Conflicts (%d)\n", len(snap.Conflicts))
	for _, cc := range snap.Conflicts {
		fmt.Fprintf(&b, "\n## %s (%s, %d markers, %d lines)\n", cc.Path, cc.Kind, cc.MarkerCount, cc.LineCount)
		if cc.Diff != "" {
			fmt.Fprintf(&b, "### Diff\n%s\n", cc.Diff)
		}
		if cc.History != "" {
			fmt.Fprintf(&b, "### History\n%s\n", cc.History)
		}
	}
	b.WriteString("\nProduce the resolution plan.")
	return b.String()
}
