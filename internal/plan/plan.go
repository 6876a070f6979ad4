// Package plan turns a repository snapshot into a global resolution plan:
// per-file strategy, cross-file couplings, and sequencing. The coordinator
// session produces the plan; when synthesis fails the engine degrades to a
// deterministic fallback instead of aborting.
package plan

// Complexity rates how hard one file's resolution is expected to be.
type Complexity string

const (
	Trivial  Complexity = "trivial"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// FilePlan is the strategy for one conflicting file.
type FilePlan struct {
	Path       string     `json:"path"`
	Strategy   string     `json:"strategy"`
	Complexity Complexity `json:"complexity"`
}

// Plan is the coordinator's global resolution plan.
type Plan struct {
	Summary string     `json:"summary"`
	Files   []FilePlan `json:"files"`
	// Couplings lists groups of files whose resolutions touch shared state
	// and must therefore be sequenced within the group.
	Couplings [][]string `json:"couplings,omitempty"`
	// Sequence is the resolution order across all files.
	Sequence     []string `json:"sequence"`
	Verification []string `json:"verification,omitempty"`
	// Fallback marks a plan the engine synthesized itself after the
	// coordinator failed.
	Fallback bool `json:"fallback,omitempty"`
}

// File returns the FilePlan for path, or nil.
func (p *Plan) File(path string) *FilePlan {
	for i := range p.Files {
		if p.Files[i].Path == path {
			return &p.Files[i]
		}
	}
	return nil
}

// Groups partitions the sequence into resolution units. Each unit is one
// coupled group (internally ordered by the sequence) or a single uncoupled
// file; units are ordered by their first member's sequence position and may
// run concurrently with each other. Files missing from the sequence are
// appended in Files order so nothing is silently dropped.
func (p *Plan) Groups() [][]string {
	order := append([]string{}, p.Sequence...)
	inOrder := make(map[string]bool, len(order))
	for _, path := range order {
		inOrder[path] = true
	}
	for _, f := range p.Files {
		if !inOrder[f.Path] {
			order = append(order, f.Path)
			inOrder[f.Path] = true
		}
	}

	groupOf := make(map[string]int)
	for i, group := range p.Couplings {
		for _, path := range group {
			groupOf[path] = i
		}
	}

	var units [][]string
	unitOf := make(map[int]int)
	seen := make(map[string]bool)
	for _, path := range order {
		if seen[path] {
			continue
		}
		seen[path] = true
		gi, coupled := groupOf[path]
		if !coupled {
			units = append(units, []string{path})
			continue
		}
		if ui, ok := unitOf[gi]; ok {
			units[ui] = append(units[ui], path)
			continue
		}
		unitOf[gi] = len(units)
		units = append(units, []string{path})
	}
	return units
}
