// Package gitx is the repository inspector: it extracts structured,
// size-bounded conflict context from a working tree using git plumbing
// invoked as subprocesses. Everything here is read-only except StageFile and
// AbortMerge, which exist for the finalize and cleanup paths.
package gitx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git commands in a fixed working directory.
type Runner struct {
	dir string
}

// NewRunner creates a Runner rooted at dir.
func NewRunner(dir string) *Runner {
	return &Runner{dir: dir}
}

// Dir returns the working directory commands run in.
func (r *Runner) Dir() string { return r.dir }

// Run executes git with args and returns stdout with trailing newlines
// stripped. Failures propagate with stderr folded into the error.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("gitx: git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// RunInformational executes git with args and returns "" on any failure.
// Used for fields whose absence is expected, such as a blob that did not
// exist on one side of the merge.
func (r *Runner) RunInformational(ctx context.Context, args ...string) string {
	out, err := r.Run(ctx, args...)
	if err != nil {
		return ""
	}
	return out
}
