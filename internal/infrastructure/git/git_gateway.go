package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

const fetchMaxElapsed = 30 * time.Second

// CLIGateway implements output.GitGateway by running the git binary
type CLIGateway struct {
	Bin string
	// FetchBackOff returns a fresh backoff policy for Fetch; nil uses the default
	FetchBackOff func() backoff.BackOff
}

// NewCLIGateway creates a git gateway using "git" from PATH
func NewCLIGateway() *CLIGateway {
	return &CLIGateway{Bin: "git"}
}

var _ output.GitGateway = (*CLIGateway)(nil)

// commandError carries git's exit code and stderr
type commandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("git %s: exit %d: %s", strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

func (g *CLIGateway) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Bin
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &commandError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// exitCode returns git's exit status, or -1 when err is not a git failure
func exitCode(err error) int {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// RevParse resolves ref to a commit hash
func (g *CLIGateway) RevParse(ctx context.Context, repoPath, ref string) (string, error) {
	return g.run(ctx, repoPath, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
}

// RefExists reports whether ref resolves to a commit
func (g *CLIGateway) RefExists(ctx context.Context, repoPath, ref string) (bool, error) {
	_, err := g.RevParse(ctx, repoPath, ref)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// IsAncestor reports whether ancestor is reachable from descendant
func (g *CLIGateway) IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error) {
	_, err := g.run(ctx, repoPath, "merge-base", "--is-ancestor", ancestor, descendant)
	switch {
	case err == nil:
		return true, nil
	case exitCode(err) == 1:
		return false, nil
	default:
		return false, err
	}
}

// MergeBase returns the best common ancestor of a and b
func (g *CLIGateway) MergeBase(ctx context.Context, repoPath, a, b string) (string, error) {
	return g.run(ctx, repoPath, "merge-base", a, b)
}

// ChangedFiles lists paths that differ between from and to
func (g *CLIGateway) ChangedFiles(ctx context.Context, repoPath, from, to string) ([]string, error) {
	out, err := g.run(ctx, repoPath, "diff", "--name-only", "--no-renames", from, to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// SameContent reports whether paths are identical in refs a and b
func (g *CLIGateway) SameContent(ctx context.Context, repoPath, a, b string, paths []string) (bool, error) {
	if len(paths) == 0 {
		return true, nil
	}
	args := append([]string{"diff", "--quiet", a, b, "--"}, paths...)
	_, err := g.run(ctx, repoPath, args...)
	switch {
	case err == nil:
		return true, nil
	case exitCode(err) == 1:
		return false, nil
	default:
		return false, err
	}
}

// HasRemote reports whether the named remote is configured
func (g *CLIGateway) HasRemote(ctx context.Context, repoPath, remote string) (bool, error) {
	out, err := g.run(ctx, repoPath, "remote")
	if err != nil {
		return false, err
	}
	for _, name := range strings.Split(out, "\n") {
		if strings.TrimSpace(name) == remote {
			return true, nil
		}
	}
	return false, nil
}

// Fetch updates remote-tracking refs. Network failures are retried with
// exponential backoff; a missing remote fails immediately.
func (g *CLIGateway) Fetch(ctx context.Context, repoPath, remote string) error {
	bo := g.newFetchBackOff()
	return backoff.Retry(func() error {
		_, err := g.run(ctx, repoPath, "fetch", "--prune", remote)
		if err != nil && isPermanentFetchError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func (g *CLIGateway) newFetchBackOff() backoff.BackOff {
	if g.FetchBackOff != nil {
		return g.FetchBackOff()
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = fetchMaxElapsed
	return bo
}

func isPermanentFetchError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not appear to be a git repository") ||
		strings.Contains(msg, "not a git repository") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "permission denied")
}

// DefaultBranch returns the remote HEAD branch, falling back to main or master
func (g *CLIGateway) DefaultBranch(ctx context.Context, repoPath, remote string) (string, error) {
	if remote != "" {
		out, err := g.run(ctx, repoPath, "symbolic-ref", "--quiet", "--short", "refs/remotes/"+remote+"/HEAD")
		if err == nil && out != "" {
			return strings.TrimPrefix(out, remote+"/"), nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		ok, err := g.RefExists(ctx, repoPath, "refs/heads/"+candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}

	return g.run(ctx, repoPath, "symbolic-ref", "--short", "HEAD")
}

// AddWorktree checks out branch at path, creating it from base if missing
func (g *CLIGateway) AddWorktree(ctx context.Context, repoPath, path, branch, base string) error {
	exists, err := g.RefExists(ctx, repoPath, "refs/heads/"+branch)
	if err != nil {
		return err
	}

	args := []string{"worktree", "add", path, branch}
	if !exists {
		args = []string{"worktree", "add", "-b", branch, path}
		if base != "" {
			args = append(args, base)
		}
	}
	if _, err := g.run(ctx, repoPath, args...); err != nil {
		return fmt.Errorf("failed to create worktree: %w", err)
	}
	return nil
}

// RemoveWorktree deletes the worktree at path
func (g *CLIGateway) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	if _, err := g.run(ctx, repoPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	return nil
}
