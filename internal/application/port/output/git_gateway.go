package output

import "context"

// GitGateway is the subset of git the workflow needs. All paths are
// evaluated in repoPath.
type GitGateway interface {
	// RevParse resolves ref to a commit hash
	RevParse(ctx context.Context, repoPath, ref string) (string, error)

	// RefExists reports whether ref resolves to a commit
	RefExists(ctx context.Context, repoPath, ref string) (bool, error)

	// IsAncestor reports whether ancestor is reachable from descendant
	IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error)

	// MergeBase returns the best common ancestor of a and b
	MergeBase(ctx context.Context, repoPath, a, b string) (string, error)

	// ChangedFiles lists paths that differ between from and to
	ChangedFiles(ctx context.Context, repoPath, from, to string) ([]string, error)

	// SameContent reports whether paths are identical in refs a and b
	SameContent(ctx context.Context, repoPath, a, b string, paths []string) (bool, error)

	// HasRemote reports whether the named remote is configured
	HasRemote(ctx context.Context, repoPath, remote string) (bool, error)

	// Fetch updates remote-tracking refs, retrying transient failures
	Fetch(ctx context.Context, repoPath, remote string) error

	// DefaultBranch returns the branch the repository merges into
	DefaultBranch(ctx context.Context, repoPath, remote string) (string, error)

	// AddWorktree checks out branch at path, creating it from base if missing
	AddWorktree(ctx context.Context, repoPath, path, branch, base string) error

	// RemoveWorktree deletes the worktree at path
	RemoveWorktree(ctx context.Context, repoPath, path string) error
}
