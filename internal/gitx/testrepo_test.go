package gitx

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dusk-indust/conflux/internal/logx"
)

// tempRepo is a throwaway git repository with helpers for staging merge
// conflicts.
type tempRepo struct {
	root string
}

func newTempRepo(t *testing.T) *tempRepo {
	t.Helper()
	r := &tempRepo{root: t.TempDir()}
	r.git(t, "init", "--initial-branch=main")
	r.git(t, "config", "user.name", "Conflux Test")
	r.git(t, "config", "user.email", "test@example.com")
	r.write(t, "README.md", "# fixture\n")
	r.git(t, "add", "README.md")
	r.git(t, "commit", "-m", "initial commit")
	return r
}

func (r *tempRepo) git(t *testing.T, args ...string) string {
	t.Helper()
	out, err := r.tryGit(args...)
	if err != nil {
		t.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func (r *tempRepo) tryGit(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.root
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (r *tempRepo) write(t *testing.T, path, content string) {
	t.Helper()
	full := filepath.Join(r.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (r *tempRepo) commit(t *testing.T, msg string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		r.write(t, path, content)
		r.git(t, "add", path)
	}
	r.git(t, "commit", "-m", msg)
}

// conflict commits base content on main, diverges a branch, and merges it
// back so that every listed path ends up with unmerged stages. The merge is
// expected to fail; the repository is left mid-merge.
func (r *tempRepo) conflict(t *testing.T, files map[string][3]string) {
	t.Helper()
	base := map[string]string{}
	ours := map[string]string{}
	theirs := map[string]string{}
	for path, versions := range files {
		base[path] = versions[0]
		ours[path] = versions[1]
		theirs[path] = versions[2]
	}
	r.commit(t, "base content", base)
	r.git(t, "checkout", "-b", "feature")
	r.commit(t, "feature change", theirs)
	r.git(t, "checkout", "main")
	r.commit(t, "main change", ours)
	if out, err := r.tryGit("merge", "feature"); err == nil {
		t.Fatalf("expected merge conflict, merge succeeded: %s", out)
	}
}

func (r *tempRepo) inspector() *Inspector {
	return NewInspector(r.root, logx.New(io.Discard, logx.LevelError).With("inspector"))
}

func goConflictVersions() [3]string {
	return [3]string{
		"package demo\n\nfunc Value() int { return 0 }\n",
		"package demo\n\nfunc Value() int { return 1 }\n",
		"package demo\n\nfunc Value() int { return 2 }\n",
	}
}
