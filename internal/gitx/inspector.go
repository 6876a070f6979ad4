package gitx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/conflux/internal/lang"
	"github.com/dusk-indust/conflux/internal/logx"
)

const historyDepth = 15

// Inspector reads conflict state out of a working tree.
type Inspector struct {
	run *Runner
	log *logx.LabelLogger
}

// NewInspector creates an Inspector for the repository at dir.
func NewInspector(dir string, log *logx.LabelLogger) *Inspector {
	return &Inspector{run: NewRunner(dir), log: log}
}

// UnmergedPaths lists files with unresolved merge status. A clean tree or a
// directory that is not a repository yields an empty set, not an error.
func (in *Inspector) UnmergedPaths(ctx context.Context) ([]string, error) {
	out, err := in.run.Run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		in.log.Debugf("unmerged listing unavailable: %v", err)
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CollectContext builds the ConflictContext for one unmerged path. Individual
// plumbing failures degrade the affected excerpt instead of failing the file.
func (in *Inspector) CollectContext(ctx context.Context, path string) (*ConflictContext, error) {
	// The path can be absent from the working tree (delete or rename
	// conflicts). The excerpt degrades; the stages still tell the story.
	working := ""
	workingReadable := false
	if raw, err := os.ReadFile(filepath.Join(in.run.Dir(), path)); err == nil {
		working = string(raw)
		workingReadable = true
	} else {
		in.log.Debugf("%s: working copy unreadable: %v", path, err)
	}

	cc := &ConflictContext{
		Path: path,
		Kind: lang.Detect(path),
	}
	if workingReadable {
		cc.LineCount = countLines(working)
		cc.MarkerCount = countMarkers(working)
	}

	branch := in.run.RunInformational(ctx, "rev-parse", "--abbrev-ref", "HEAD")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cc.Diff = in.run.RunInformational(gctx, "diff", "--", path)
		return nil
	})
	g.Go(func() error {
		cc.Base = in.stageBlob(gctx, 1, path)
		return nil
	})
	g.Go(func() error {
		cc.Ours = in.stageBlob(gctx, 2, path)
		return nil
	})
	g.Go(func() error {
		cc.Theirs = in.stageBlob(gctx, 3, path)
		return nil
	})
	g.Go(func() error {
		cc.BaseOursDiff = in.run.RunInformational(gctx, "diff", ":1:"+path, ":2:"+path)
		return nil
	})
	g.Go(func() error {
		cc.BaseTheirsDiff = in.run.RunInformational(gctx, "diff", ":1:"+path, ":3:"+path)
		return nil
	})
	g.Go(func() error {
		cc.OursTheirsDiff = in.run.RunInformational(gctx, "diff", ":2:"+path, ":3:"+path)
		return nil
	})
	g.Go(func() error {
		cc.History = in.run.RunInformational(gctx, "log", "-n", fmt.Sprint(historyDepth), "--oneline", "--", path)
		return nil
	})
	g.Go(func() error {
		cc.LocalCommits = in.run.RunInformational(gctx, "log", "--format=%s", "@{upstream}..HEAD")
		return nil
	})
	if branch != "" {
		g.Go(func() error {
			cc.OriginContent = in.run.RunInformational(gctx, "show", "origin/"+branch+":"+path)
			return nil
		})
		g.Go(func() error {
			cc.UpstreamContent = in.run.RunInformational(gctx, "show", "upstream/"+branch+":"+path)
			return nil
		})
		g.Go(func() error {
			cc.OriginUpstreamDiff = in.run.RunInformational(gctx, "diff", "origin/"+branch, "upstream/"+branch, "--", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cc.WorkingCopy = working
	in.bound(cc)
	if !workingReadable {
		cc.WorkingCopy = Unavailable
	}
	return cc, nil
}

// bound applies the per-class character budgets to every text field.
func (in *Inspector) bound(cc *ConflictContext) {
	cut := false
	trunc := func(s *string, budget int) {
		out, t := Truncate(*s, budget)
		*s = out
		cut = cut || t
	}
	trunc(&cc.WorkingCopy, ExcerptBudget)
	trunc(&cc.Diff, DiffBudget)
	trunc(&cc.Base, StageBudget)
	trunc(&cc.Ours, StageBudget)
	trunc(&cc.Theirs, StageBudget)
	trunc(&cc.BaseOursDiff, DiffBudget)
	trunc(&cc.BaseTheirsDiff, DiffBudget)
	trunc(&cc.OursTheirsDiff, DiffBudget)
	trunc(&cc.OriginContent, StageBudget)
	trunc(&cc.UpstreamContent, StageBudget)
	trunc(&cc.OriginUpstreamDiff, DiffBudget)
	trunc(&cc.History, HistoryBudget)
	trunc(&cc.LocalCommits, HistoryBudget)
	if cut {
		cc.Truncated = true
		in.log.Debugf("%s: context bounded to budget", cc.Path)
	}
}

// stageBlob reads one side of the three-way merge, degrading to Unavailable
// when the blob does not exist at that stage.
func (in *Inspector) stageBlob(ctx context.Context, stage int, path string) string {
	out, err := in.run.Run(ctx, "show", fmt.Sprintf(":%d:%s", stage, path))
	if err != nil {
		return Unavailable
	}
	return out
}

// CollectAll gathers contexts for every unmerged path, files in parallel.
// Order of the result matches the unmerged listing.
func (in *Inspector) CollectAll(ctx context.Context) ([]*ConflictContext, error) {
	paths, err := in.UnmergedPaths(ctx)
	if err != nil {
		return nil, err
	}
	contexts := make([]*ConflictContext, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			cc, err := in.CollectContext(gctx, p)
			if err != nil {
				return err
			}
			contexts[i] = cc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contexts, nil
}

// CompareRemotes summarizes divergence between two refs. Either ref missing
// yields nil without error; the comparison is optional by contract.
func (in *Inspector) CompareRemotes(ctx context.Context, origin, upstream string) (*RemoteComparison, error) {
	for _, ref := range []string{origin, upstream} {
		if _, err := in.run.Run(ctx, "rev-parse", "-q", "--verify", ref); err != nil {
			in.log.Debugf("ref %s not configured, skipping remote comparison", ref)
			return nil, nil
		}
	}
	rc := &RemoteComparison{Origin: origin, Upstream: upstream}
	rc.MissingFromOrigin = splitLines(in.run.RunInformational(ctx, "log", "--oneline", origin+".."+upstream))
	rc.MissingFromUpstream = splitLines(in.run.RunInformational(ctx, "log", "--oneline", upstream+".."+origin))
	rc.OriginToUpstreamStat = in.run.RunInformational(ctx, "diff", "--stat", origin, upstream)
	rc.UpstreamToOriginStat = in.run.RunInformational(ctx, "diff", "--stat", upstream, origin)
	return rc, nil
}

// Snapshot assembles the full RepoSnapshot for the coordinator.
func (in *Inspector) Snapshot(ctx context.Context) (*RepoSnapshot, error) {
	branch, err := in.run.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	conflicts, err := in.CollectAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := &RepoSnapshot{
		Branch:    branch,
		Status:    in.run.RunInformational(ctx, "status", "--short"),
		DiffStat:  in.run.RunInformational(ctx, "diff", "--stat"),
		RecentLog: in.run.RunInformational(ctx, "log", "-n", "10", "--oneline"),
		MergeBase: in.run.RunInformational(ctx, "merge-base", "HEAD", "MERGE_HEAD"),
		Conflicts: conflicts,
	}
	snap.Status, _ = Truncate(snap.Status, HistoryBudget)
	snap.DiffStat, _ = Truncate(snap.DiffStat, HistoryBudget)
	snap.RecentLog, _ = Truncate(snap.RecentLog, HistoryBudget)

	rc, err := in.CompareRemotes(ctx, "origin/"+branch, "upstream/"+branch)
	if err != nil {
		return nil, err
	}
	snap.Remotes = rc
	return snap, nil
}

// MergeInProgress reports whether MERGE_HEAD exists.
func (in *Inspector) MergeInProgress(ctx context.Context) bool {
	_, err := in.run.Run(ctx, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	return err == nil
}

// StageFile marks a resolved path as staged.
func (in *Inspector) StageFile(ctx context.Context, path string) error {
	_, err := in.run.Run(ctx, "add", "--", path)
	return err
}

// AbortMerge restores a clean working tree from an in-progress merge.
func (in *Inspector) AbortMerge(ctx context.Context) error {
	_, err := in.run.Run(ctx, "merge", "--abort")
	return err
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// countMarkers counts conflict marker lines in the working copy.
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

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
