package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/conflux/internal/approval"
	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/lang"
	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/plan"
)

// Compile-time interface check.
var _ Planner = (*planAdapter)(nil)

// Solver is the merge-solver state machine. One Solver per run.
type Solver struct {
	inspector Inspector
	planner   Planner
	resolver  Resolver
	checker   *lang.Checker
	gate      *approval.Gate
	progress  *Reporter
	log       *logx.LabelLogger

	workdir        string
	maxConcurrency int
	verifyCommand  string

	mu       sync.Mutex
	state    State
	cleaning atomic.Bool
}

// Options configure a Solver.
type Options struct {
	Inspector Inspector
	Planner   Planner
	Resolver  Resolver
	// Checker verifies resolved files parse. Nil skips the parse check.
	Checker *lang.Checker
	// Gate receives per-worker context updates. Nil skips them.
	Gate           *approval.Gate
	Progress       *Reporter
	Log            *logx.LabelLogger
	Workdir        string
	MaxConcurrency int
	// VerifyCommand, when set, runs via sh -c in the workdir after the
	// per-file checks pass. A non-zero exit aborts the merge.
	VerifyCommand string
}

// NewSolver creates a Solver in the collecting state.
func NewSolver(opts Options) *Solver {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.Progress == nil {
		opts.Progress = NewReporter()
	}
	return &Solver{
		inspector:      opts.Inspector,
		planner:        opts.Planner,
		resolver:       opts.Resolver,
		checker:        opts.Checker,
		gate:           opts.Gate,
		progress:       opts.Progress,
		log:            opts.Log,
		workdir:        opts.Workdir,
		maxConcurrency: opts.MaxConcurrency,
		verifyCommand:  opts.VerifyCommand,
		state:          StateCollecting,
	}
}

// State returns the solver's current state.
func (s *Solver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the run's progress event stream.
func (s *Solver) Progress() <-chan ProgressEvent {
	return s.progress.Subscribe()
}

func (s *Solver) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.log.Infof("state: %s", state)
	s.progress.Emit(ProgressEvent{State: state, Status: ProgressWorking})
}

// Run executes the full workflow. Fatal errors (no snapshot at all) are
// returned after attempting cleanup; everything else lands in the report's
// terminal state.
func (s *Solver) Run(ctx context.Context) (*Report, error) {
	s.setState(StateCollecting)
	snap, err := s.inspector.Snapshot(ctx)
	if err != nil {
		s.Cleanup(ctx)
		return nil, fmt.Errorf("orchestrator: snapshot: %w", err)
	}

	report := &Report{Conflicts: len(snap.Conflicts), Failures: make(map[string]string)}
	if len(snap.Conflicts) == 0 {
		s.log.Infof("no conflicts to resolve")
		report.State = StateClean
		s.setState(StateClean)
		return report, nil
	}

	s.setState(StatePlanning)
	p := s.planner.Synthesize(ctx, snap)
	report.PlanSummary = p.Summary
	report.Fallback = p.Fallback

	s.setState(StateResolving)
	s.dispatch(ctx, snap, p, report)

	s.setState(StateVerifying)
	verified := s.verify(snap, report)
	if verified {
		verified = s.runVerifyCommand(ctx, report)
	}

	if verified {
		s.setState(StateFinalizing)
		verified = s.finalize(ctx, snap, report)
	}

	if !verified {
		report.State = StateAborted
		s.setState(StateAborted)
		s.Cleanup(ctx)
		return report, nil
	}

	report.State = StateClean
	s.setState(StateClean)
	return report, nil
}

// dispatch runs one resolution unit per plan group. Groups run concurrently
// up to the limit; members of a coupled group run sequentially in plan
// order. A failed file is recorded and does not cancel the other groups.
func (s *Solver) dispatch(ctx context.Context, snap *gitx.RepoSnapshot, p *plan.Plan, report *Report) {
	byPath := make(map[string]*gitx.ConflictContext, len(snap.Conflicts))
	for _, cc := range snap.Conflicts {
		byPath[cc.Path] = cc
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for _, group := range p.Groups() {
		g.Go(func() error {
			for _, path := range group {
				cc, ok := byPath[path]
				if !ok {
					continue
				}
				err := s.resolveOne(gctx, cc, p)
				mu.Lock()
				if err != nil {
					report.Failures[path] = err.Error()
				} else {
					report.Resolved = append(report.Resolved, path)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
}

func (s *Solver) resolveOne(ctx context.Context, cc *gitx.ConflictContext, p *plan.Plan) error {
	fp := p.File(cc.Path)
	s.progress.Emit(ProgressEvent{State: StateResolving, Path: cc.Path, Status: ProgressWorking})

	if s.gate != nil {
		var excerpt string
		if fp != nil {
			excerpt = fp.Strategy
		}
		s.gate.SetContext(&approval.Context{
			ConflictPath: cc.Path,
			PlanExcerpt:  excerpt,
		})
	}

	if err := s.resolver.Resolve(ctx, cc, fp); err != nil {
		s.log.Errorf("%s: resolution failed: %v", cc.Path, err)
		s.progress.Emit(ProgressEvent{State: StateResolving, Path: cc.Path, Status: ProgressFailed, Message: err.Error()})
		return err
	}
	s.progress.Emit(ProgressEvent{State: StateResolving, Path: cc.Path, Status: ProgressComplete})
	return nil
}

// verify checks every conflicting file: no markers may remain, and files in
// a parseable language must parse without syntax errors.
func (s *Solver) verify(snap *gitx.RepoSnapshot, report *Report) bool {
	ok := true
	for _, cc := range snap.Conflicts {
		data, err := os.ReadFile(filepath.Join(s.workdir, cc.Path))
		if err != nil {
			s.log.Errorf("%s: unreadable after resolution: %v", cc.Path, err)
			report.Failures[cc.Path] = err.Error()
			ok = false
			continue
		}
		if n := countMarkers(string(data)); n > 0 {
			s.log.Warnf("%s: %d conflict markers remain", cc.Path, n)
			report.Failures[cc.Path] = fmt.Sprintf("%d conflict markers remain", n)
			ok = false
			continue
		}
		if s.checker != nil && lang.Parseable(cc.Kind) {
			errs, err := s.checker.Check(cc.Kind, data)
			if err != nil {
				s.log.Warnf("%s: parse check skipped: %v", cc.Path, err)
				continue
			}
			if errs > 0 {
				s.log.Warnf("%s: %d syntax errors after resolution", cc.Path, errs)
				report.Failures[cc.Path] = fmt.Sprintf("%d syntax errors after resolution", errs)
				ok = false
			}
		}
	}
	return ok
}

// runVerifyCommand runs the project-configured verification command, if
// any, in the workdir. A non-zero exit fails verification.
func (s *Solver) runVerifyCommand(ctx context.Context, report *Report) bool {
	if s.verifyCommand == "" {
		return true
	}
	s.log.Infof("running verify command: %s", s.verifyCommand)
	cmd := exec.CommandContext(ctx, "sh", "-c", s.verifyCommand)
	cmd.Dir = s.workdir
	out, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Errorf("verify command failed: %v\n%s", err, out)
		report.Failures["verify"] = fmt.Sprintf("%s: %v", s.verifyCommand, err)
		return false
	}
	return true
}

// finalize stages every resolved file and confirms nothing is left unmerged.
func (s *Solver) finalize(ctx context.Context, snap *gitx.RepoSnapshot, report *Report) bool {
	for _, cc := range snap.Conflicts {
		if err := s.inspector.StageFile(ctx, cc.Path); err != nil {
			s.log.Errorf("%s: staging failed: %v", cc.Path, err)
			report.Failures[cc.Path] = err.Error()
			return false
		}
	}
	remaining, err := s.inspector.UnmergedPaths(ctx)
	if err != nil {
		s.log.Errorf("unmerged check failed: %v", err)
		return false
	}
	if len(remaining) > 0 {
		s.log.Warnf("still unmerged after staging: %s", strings.Join(remaining, ", "))
		return false
	}
	return true
}

// Cleanup aborts an in-progress merge, restoring a clean working tree. It
// is safe to call at any time: concurrent entry is a no-op while a cleanup
// is already running, and a tree with no merge in progress is left alone.
// A run that finished clean keeps its staged resolution; the merge stays
// open for the user to commit, so there is nothing to roll back.
func (s *Solver) Cleanup(ctx context.Context) {
	if !s.cleaning.CompareAndSwap(false, true) {
		return
	}
	defer s.cleaning.Store(false)

	if s.State() == StateClean {
		return
	}
	if !s.inspector.MergeInProgress(ctx) {
		return
	}
	s.log.Warnf("aborting in-progress merge")
	if err := s.inspector.AbortMerge(ctx); err != nil {
		s.log.Errorf("merge abort failed: %v", err)
	}
}

// countMarkers counts conflict marker lines.
func countMarkers(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "<<<<<<<") ||
			strings.HasPrefix(line, "=======") ||
			strings.HasPrefix(line, ">>>>>>>") {
			n++
		}
	}
	return n
}

// planAdapter lets a bare function serve as a Planner in tests and wiring.
type planAdapter struct {
	fn func(ctx context.Context, snap *gitx.RepoSnapshot) *plan.Plan
}

// PlannerFunc wraps fn as a Planner.
func PlannerFunc(fn func(ctx context.Context, snap *gitx.RepoSnapshot) *plan.Plan) Planner {
	return &planAdapter{fn: fn}
}

func (a *planAdapter) Synthesize(ctx context.Context, snap *gitx.RepoSnapshot) *plan.Plan {
	return a.fn(ctx, snap)
}
