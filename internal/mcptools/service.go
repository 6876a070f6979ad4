// Package mcptools exposes the merge engine over MCP so editor and agent
// frontends can inspect and resolve conflicts through tool calls.
package mcptools

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/conflux/internal/orchestrator"
)

// InspectorFactory builds the repository surface for one directory.
type InspectorFactory func(dir string) orchestrator.Inspector

// SolveFunc runs a full resolution for one directory and model.
type SolveFunc func(ctx context.Context, dir, model string) (*orchestrator.Report, error)

// MergeService backs the MCP tool handlers.
type MergeService struct {
	workdir    string
	inspectors InspectorFactory
	solve      SolveFunc
}

// NewMergeService creates a MergeService rooted at workdir.
func NewMergeService(workdir string, inspectors InspectorFactory, solve SolveFunc) *MergeService {
	return &MergeService{workdir: workdir, inspectors: inspectors, solve: solve}
}

func (s *MergeService) resolveDir(path string) (string, error) {
	if path == "" {
		return s.workdir, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access repoPath: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repoPath is not a directory: %s", path)
	}
	return path, nil
}

// CollectSnapshot runs the repository inspector and returns the snapshot.
func (s *MergeService) CollectSnapshot(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CollectSnapshotInput,
) (*mcp.CallToolResult, CollectSnapshotOutput, error) {
	dir, err := s.resolveDir(input.RepoPath)
	if err != nil {
		return nil, CollectSnapshotOutput{}, err
	}
	snap, err := s.inspectors(dir).Snapshot(ctx)
	if err != nil {
		return nil, CollectSnapshotOutput{}, err
	}
	return nil, CollectSnapshotOutput{Snapshot: snap}, nil
}

// MergeStatus reports the branch, conflict count, and whether a merge is in
// progress.
func (s *MergeService) MergeStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input MergeStatusInput,
) (*mcp.CallToolResult, MergeStatusOutput, error) {
	dir, err := s.resolveDir(input.RepoPath)
	if err != nil {
		return nil, MergeStatusOutput{}, err
	}
	in := s.inspectors(dir)
	snap, err := in.Snapshot(ctx)
	if err != nil {
		return nil, MergeStatusOutput{}, err
	}
	return nil, MergeStatusOutput{
		Branch:          snap.Branch,
		MergeInProgress: in.MergeInProgress(ctx),
		ConflictCount:   len(snap.Conflicts),
		ConflictPaths:   snap.ConflictPaths(),
	}, nil
}

// SolveConflicts runs the solver end to end and returns the final report.
func (s *MergeService) SolveConflicts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SolveConflictsInput,
) (*mcp.CallToolResult, SolveConflictsOutput, error) {
	dir, err := s.resolveDir(input.RepoPath)
	if err != nil {
		return nil, SolveConflictsOutput{}, err
	}
	report, err := s.solve(ctx, dir, input.Model)
	if err != nil {
		return nil, SolveConflictsOutput{}, err
	}
	return nil, SolveConflictsOutput{Report: report}, nil
}
