package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitDestination commits exports into a local clone and pushes them, so the
// remote keeps one file per run below each process directory.
type GitDestination struct {
	repo   string
	branch string
}

// NewGitDestination uses the existing clone at repo, which must have an
// origin remote, and commits to branch.
func NewGitDestination(repo, branch string) *GitDestination {
	return &GitDestination{repo: repo, branch: branch}
}

func (d *GitDestination) Name() string {
	return "git://" + d.repo + "#" + d.branch
}

// Write syncs the branch with origin, writes the object and pushes a commit
// naming the run. An object already committed with the same content is not
// committed again.
func (d *GitDestination) Write(ctx context.Context, obj Object) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// A branch that does not exist on origin yet has nothing to pull.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, filepath.FromSlash(obj.Key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, obj.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", obj.Key, err)
	}

	status, err := d.git(ctx, "status", "--porcelain", "--", obj.Key)
	if err != nil {
		return err
	}
	if status == "" {
		return nil
	}

	msg := fmt.Sprintf("odrlfrag: %s %s", obj.ProcessID, obj.RunID)
	steps := [][]string{
		{"add", "--", obj.Key},
		{"commit", "-m", msg, "--", obj.Key},
		{"push", "origin", d.branch},
	}
	for _, args := range steps {
		if _, err := d.git(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// git runs a git subcommand in the clone and returns its trimmed stdout.
// Failures carry git's own output.
func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", d.repo}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		detail := ""
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			detail = strings.TrimSpace(string(ee.Stderr))
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, detail)
	}
	return strings.TrimSpace(string(out)), nil
}
