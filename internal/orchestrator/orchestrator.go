// Package orchestrator drives the end-to-end merge resolution run: snapshot,
// plan, per-conflict dispatch, verification, and cleanup.
package orchestrator

import (
	"context"

	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/plan"
)

// State identifies the solver's position in the run.
type State string

const (
	StateCollecting State = "collecting"
	StatePlanning   State = "planning"
	StateResolving  State = "resolving"
	StateVerifying  State = "verifying"
	StateFinalizing State = "finalizing"
	StateClean      State = "clean"
	StateAborted    State = "aborted"
)

// Inspector is the repository surface the solver drives.
type Inspector interface {
	Snapshot(ctx context.Context) (*gitx.RepoSnapshot, error)
	UnmergedPaths(ctx context.Context) ([]string, error)
	MergeInProgress(ctx context.Context) bool
	StageFile(ctx context.Context, path string) error
	AbortMerge(ctx context.Context) error
}

// Planner produces the global resolution plan. Synthesis never fails; it
// degrades to a fallback plan internally.
type Planner interface {
	Synthesize(ctx context.Context, snap *gitx.RepoSnapshot) *plan.Plan
}

// Resolver resolves one conflicting file according to its plan entry.
type Resolver interface {
	Resolve(ctx context.Context, cc *gitx.ConflictContext, fp *plan.FilePlan) error
}

// Report summarizes a finished run.
type Report struct {
	State       State             `json:"state"`
	Conflicts   int               `json:"conflicts"`
	Resolved    []string          `json:"resolved,omitempty"`
	Failures    map[string]string `json:"failures,omitempty"`
	PlanSummary string            `json:"planSummary,omitempty"`
	Fallback    bool              `json:"fallback,omitempty"`
}

// ProgressEvent is emitted to the user during a run.
type ProgressEvent struct {
	State   State
	Path    string
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the position of one unit of work.
type ProgressStatus string

const (
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)
