package plan

import (
	"fmt"
	"path/filepath"

	"github.com/dusk-indust/conflux/internal/gitx"
)

// Fallback builds the deterministic plan used when coordinator synthesis
// fails: files in snapshot order, with files sharing a directory treated as
// one coupled group. Directory locality is a cheap stand-in for the
// coupling signal the coordinator would otherwise provide.
func Fallback(snap *gitx.RepoSnapshot) *Plan {
	paths := snap.ConflictPaths()

	p := &Plan{
		Summary:  fmt.Sprintf("fallback plan: resolve %d conflicts in file order", len(paths)),
		Sequence: paths,
		Verification: []string{
			"no conflict markers remain in any resolved file",
			"no merge is still in progress",
			"resolved files parse in their source language",
		},
		Fallback: true,
	}

	for _, cc := range snap.Conflicts {
		p.Files = append(p.Files, FilePlan{
			Path:       cc.Path,
			Strategy:   "reconcile both sides against the base stage",
			Complexity: rateComplexity(cc),
		})
	}

	byDir := make(map[string][]string)
	var dirOrder []string
	for _, path := range paths {
		dir := filepath.Dir(path)
		if _, ok := byDir[dir]; !ok {
			dirOrder = append(dirOrder, dir)
		}
		byDir[dir] = append(byDir[dir], path)
	}
	for _, dir := range dirOrder {
		if group := byDir[dir]; len(group) > 1 {
			p.Couplings = append(p.Couplings, group)
		}
	}
	return p
}

// rateComplexity buckets a conflict by marker volume.
func rateComplexity(cc *gitx.ConflictContext) Complexity {
	switch {
	case cc.MarkerCount <= 3:
		return Trivial
	case cc.MarkerCount <= 12:
		return Moderate
	default:
		return Complex
	}
}
