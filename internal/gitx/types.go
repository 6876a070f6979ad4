package gitx

import "github.com/dusk-indust/conflux/internal/lang"

// Unavailable marks an excerpt whose underlying blob could not be read, for
// example a file that did not exist on one side of the merge.
const Unavailable = "(unavailable)"

// ConflictContext bundles the size-bounded textual evidence for one
// unresolved file. Constructed fresh per run from live repository state,
// immutable once built, and discarded after the run.
type ConflictContext struct {
	Path        string        `json:"path"`
	Kind        lang.Language `json:"kind"`
	LineCount   int           `json:"lineCount"`
	MarkerCount int           `json:"markerCount"`

	WorkingCopy string `json:"workingCopy"`
	Diff        string `json:"diff"`

	// The three merge stages: base (:1), ours (:2), theirs (:3).
	Base   string `json:"base"`
	Ours   string `json:"ours"`
	Theirs string `json:"theirs"`

	BaseOursDiff   string `json:"baseOursDiff"`
	BaseTheirsDiff string `json:"baseTheirsDiff"`
	OursTheirsDiff string `json:"oursTheirsDiff"`

	OriginContent      string `json:"originContent,omitempty"`
	UpstreamContent    string `json:"upstreamContent,omitempty"`
	OriginUpstreamDiff string `json:"originUpstreamDiff,omitempty"`

	History      string `json:"history"`
	LocalCommits string `json:"localCommits,omitempty"`

	// Truncated is set when any bounded field above was cut to its budget.
	Truncated bool `json:"truncated"`
}

// RemoteComparison summarizes divergence between two named refs. Absent from
// the snapshot when either ref is not configured.
type RemoteComparison struct {
	Origin   string `json:"origin"`
	Upstream string `json:"upstream"`

	// Commits reachable from one ref but not the other, oneline format.
	MissingFromOrigin   []string `json:"missingFromOrigin"`
	MissingFromUpstream []string `json:"missingFromUpstream"`

	OriginToUpstreamStat string `json:"originToUpstreamStat"`
	UpstreamToOriginStat string `json:"upstreamToOriginStat"`
}

// RepoSnapshot is the single unit of ground truth handed to the coordinator.
type RepoSnapshot struct {
	Branch    string             `json:"branch"`
	Status    string             `json:"status"`
	DiffStat  string             `json:"diffStat"`
	RecentLog string             `json:"recentLog"`
	MergeBase string             `json:"mergeBase,omitempty"`
	Conflicts []*ConflictContext `json:"conflicts"`
	Remotes   *RemoteComparison  `json:"remotes,omitempty"`
}

// ConflictPaths returns the paths of all conflicts in snapshot order.
func (s *RepoSnapshot) ConflictPaths() []string {
	paths := make([]string, len(s.Conflicts))
	for i, c := range s.Conflicts {
		paths[i] = c.Path
	}
	return paths
}
