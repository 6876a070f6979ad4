package plan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/session"
)

type plannerSession struct {
	output string
	err    error
}

func (s *plannerSession) ID() string { return "coord" }

func (s *plannerSession) Complete(context.Context, session.Request) (*session.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &session.Completion{Output: json.RawMessage(s.output)}, nil
}

func (s *plannerSession) Notify(context.Context, string) error { return nil }
func (s *plannerSession) Close() error                         { return nil }

func snapshotFor(paths ...string) *gitx.RepoSnapshot {
	snap := &gitx.RepoSnapshot{Branch: "main"}
	for _, p := range paths {
		snap.Conflicts = append(snap.Conflicts, &gitx.ConflictContext{Path: p, MarkerCount: 3})
	}
	return snap
}

func planLog() *logx.LabelLogger {
	return logx.New(io.Discard, logx.LevelError).With("coordinator")
}

func TestSynthesizeAcceptsValidPlan(t *testing.T) {
	sess := &plannerSession{output: `{
		"summary": "resolve the api rename first",
		"files": [
			{"path": "a/x.go", "strategy": "keep ours", "complexity": "trivial"},
			{"path": "a/y.go", "strategy": "merge both", "complexity": "moderate"}
		],
		"couplings": [["a/x.go", "a/y.go"]],
		"sequence": ["a/y.go", "a/x.go"]
	}`}
	c := NewCoordinator(sess, nil, planLog())

	p := c.Synthesize(context.Background(), snapshotFor("a/x.go", "a/y.go"))

	assert.False(t, p.Fallback)
	assert.Equal(t, "resolve the api rename first", p.Summary)
	assert.Equal(t, []string{"a/y.go", "a/x.go"}, p.Sequence)
	require.NotNil(t, p.File("a/x.go"))
	assert.Equal(t, Trivial, p.File("a/x.go").Complexity)
}

func TestSynthesizeFallsBackOnError(t *testing.T) {
	c := NewCoordinator(&plannerSession{err: errors.New("backend gone")}, nil, planLog())

	p := c.Synthesize(context.Background(), snapshotFor("a/x.go"))
	assert.True(t, p.Fallback)
	assert.Equal(t, []string{"a/x.go"}, p.Sequence)
}

func TestSynthesizeFallsBackOnBadOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"not json", "working on it"},
		{"missing summary", `{"summary":"","files":[],"sequence":[]}`},
		{"unknown path", `{"summary":"s","files":[{"path":"ghost.go","strategy":"x","complexity":"trivial"}],"sequence":[]}`},
		{"uncovered conflict", `{"summary":"s","files":[],"sequence":[]}`},
		{"sequence outside conflict set", `{"summary":"s","files":[{"path":"a/x.go","strategy":"x","complexity":"trivial"}],"sequence":["other.go"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(&plannerSession{output: tt.output}, nil, planLog())
			p := c.Synthesize(context.Background(), snapshotFor("a/x.go"))
			assert.True(t, p.Fallback)
		})
	}
}

func TestFallbackCouplesSameDirectory(t *testing.T) {
	snap := snapshotFor("pkg/api/a.go", "pkg/api/b.go", "docs/readme.md")

	p := Fallback(snap)

	assert.True(t, p.Fallback)
	assert.Equal(t, []string{"pkg/api/a.go", "pkg/api/b.go", "docs/readme.md"}, p.Sequence)
	require.Len(t, p.Couplings, 1)
	assert.Equal(t, []string{"pkg/api/a.go", "pkg/api/b.go"}, p.Couplings[0])
	assert.Len(t, p.Files, 3)
}

func TestFallbackComplexityBuckets(t *testing.T) {
	snap := &gitx.RepoSnapshot{Conflicts: []*gitx.ConflictContext{
		{Path: "a.go", MarkerCount: 3},
		{Path: "b.go", MarkerCount: 9},
		{Path: "c.go", MarkerCount: 30},
	}}

	p := Fallback(snap)
	assert.Equal(t, Trivial, p.File("a.go").Complexity)
	assert.Equal(t, Moderate, p.File("b.go").Complexity)
	assert.Equal(t, Complex, p.File("c.go").Complexity)
}

func TestGroupsHonorCouplingsAndSequence(t *testing.T) {
	p := &Plan{
		Files: []FilePlan{
			{Path: "a.go"}, {Path: "b.go"}, {Path: "c.go"},
		},
		Couplings: [][]string{{"a.go", "c.go"}},
		Sequence:  []string{"c.go", "b.go", "a.go"},
	}

	groups := p.Groups()
	require.Len(t, groups, 2)
	// The coupled pair forms one unit, ordered by the sequence.
	assert.Equal(t, []string{"c.go", "a.go"}, groups[0])
	assert.Equal(t, []string{"b.go"}, groups[1])
}

func TestGroupsAppendsUnsequencedFiles(t *testing.T) {
	p := &Plan{
		Files:    []FilePlan{{Path: "a.go"}, {Path: "forgotten.go"}},
		Sequence: []string{"a.go"},
	}

	groups := p.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"forgotten.go"}, groups[1])
}
