package mcptools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/orchestrator"
)

type memoryInspector struct {
	snap    *gitx.RepoSnapshot
	snapErr error
	merging bool
}

func (m *memoryInspector) Snapshot(context.Context) (*gitx.RepoSnapshot, error) {
	return m.snap, m.snapErr
}
func (m *memoryInspector) UnmergedPaths(context.Context) ([]string, error) { return nil, nil }
func (m *memoryInspector) MergeInProgress(context.Context) bool            { return m.merging }
func (m *memoryInspector) StageFile(context.Context, string) error         { return nil }
func (m *memoryInspector) AbortMerge(context.Context) error                { return nil }

func serviceWith(in *memoryInspector, solve SolveFunc) *MergeService {
	return NewMergeService("/work", func(string) orchestrator.Inspector { return in }, solve)
}

func TestCollectSnapshot(t *testing.T) {
	snap := &gitx.RepoSnapshot{
		Branch:    "main",
		Conflicts: []*gitx.ConflictContext{{Path: "a.go"}},
	}
	svc := serviceWith(&memoryInspector{snap: snap}, nil)

	_, out, err := svc.CollectSnapshot(context.Background(), nil, CollectSnapshotInput{})
	require.NoError(t, err)
	assert.Equal(t, snap, out.Snapshot)
}

func TestCollectSnapshotBadPath(t *testing.T) {
	svc := serviceWith(&memoryInspector{}, nil)

	_, _, err := svc.CollectSnapshot(context.Background(), nil, CollectSnapshotInput{
		RepoPath: "/does/not/exist",
	})
	assert.ErrorContains(t, err, "cannot access repoPath")
}

func TestMergeStatus(t *testing.T) {
	snap := &gitx.RepoSnapshot{
		Branch: "feature/rename",
		Conflicts: []*gitx.ConflictContext{
			{Path: "a.go"}, {Path: "b.go"},
		},
	}
	svc := serviceWith(&memoryInspector{snap: snap, merging: true}, nil)

	_, out, err := svc.MergeStatus(context.Background(), nil, MergeStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "feature/rename", out.Branch)
	assert.True(t, out.MergeInProgress)
	assert.Equal(t, 2, out.ConflictCount)
	assert.Equal(t, []string{"a.go", "b.go"}, out.ConflictPaths)
}

func TestSolveConflicts(t *testing.T) {
	report := &orchestrator.Report{State: orchestrator.StateClean, Conflicts: 1}
	var gotDir, gotModel string
	svc := serviceWith(&memoryInspector{}, func(_ context.Context, dir, model string) (*orchestrator.Report, error) {
		gotDir, gotModel = dir, model
		return report, nil
	})

	_, out, err := svc.SolveConflicts(context.Background(), nil, SolveConflictsInput{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, report, out.Report)
	assert.Equal(t, "/work", gotDir)
	assert.Equal(t, "claude-sonnet-4-5", gotModel)
}

func TestSolveConflictsPropagatesError(t *testing.T) {
	svc := serviceWith(&memoryInspector{}, func(context.Context, string, string) (*orchestrator.Report, error) {
		return nil, errors.New("snapshot failed")
	})

	_, _, err := svc.SolveConflicts(context.Background(), nil, SolveConflictsInput{})
	assert.ErrorContains(t, err, "snapshot failed")
}

func TestServerRegistersTools(t *testing.T) {
	svc := serviceWith(&memoryInspector{snap: &gitx.RepoSnapshot{Branch: "main"}}, nil)
	server := NewMergeMCPServer(svc)
	assert.NotNil(t, server)
}
