package mcptools

import (
	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/orchestrator"
)

// CollectSnapshotInput asks for the repository snapshot.
type CollectSnapshotInput struct {
	RepoPath string `json:"repoPath,omitempty" jsonschema:"repository to inspect (default: the server's working directory)"`
}

// CollectSnapshotOutput carries the snapshot.
type CollectSnapshotOutput struct {
	Snapshot *gitx.RepoSnapshot `json:"snapshot"`
}

// MergeStatusInput asks for the merge status of a repository.
type MergeStatusInput struct {
	RepoPath string `json:"repoPath,omitempty" jsonschema:"repository to inspect (default: the server's working directory)"`
}

// MergeStatusOutput summarizes the merge state.
type MergeStatusOutput struct {
	Branch          string   `json:"branch"`
	MergeInProgress bool     `json:"mergeInProgress"`
	ConflictCount   int      `json:"conflictCount"`
	ConflictPaths   []string `json:"conflictPaths,omitempty"`
}

// SolveConflictsInput starts an end-to-end resolution run.
type SolveConflictsInput struct {
	RepoPath string `json:"repoPath,omitempty" jsonschema:"repository to resolve (default: the server's working directory)"`
	Model    string `json:"model,omitempty" jsonschema:"model identifier for the reasoning sessions"`
}

// SolveConflictsOutput is the run's final report.
type SolveConflictsOutput struct {
	Report *orchestrator.Report `json:"report"`
}
