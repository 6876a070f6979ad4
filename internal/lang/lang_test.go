package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"internal/gitx/runner.go", LangGo},
		{"src/App.tsx", LangTypeScript},
		{"scripts/deploy.TS", LangTypeScript},
		{"tools/gen.py", LangPython},
		{"src/lib.rs", LangRust},
		{"README.md", LangUnknown},
		{"Makefile", LangUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.path))
		})
	}
}

func TestCheckerCleanSource(t *testing.T) {
	c := NewChecker()

	n, err := c.Check(LangGo, []byte("package main\n\nfunc main() {}\n"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Check(LangPython, []byte("def f(x):\n    return x + 1\n"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckerLeftoverMarkersAreErrors(t *testing.T) {
	c := NewChecker()

	src := []byte("package main\n\n<<<<<<< HEAD\nfunc a() {}\n=======\nfunc b() {}\n>>>>>>> theirs\n")
	n, err := c.Check(LangGo, src)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestCheckerUnknownLanguage(t *testing.T) {
	c := NewChecker()

	n, err := c.Check(LangUnknown, []byte("<<<<<<< anything goes"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
