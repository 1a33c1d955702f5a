package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo runs git commands in a throwaway repository
type testRepo struct {
	t   *testing.T
	dir string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	r := &testRepo{t: t, dir: t.TempDir()}
	r.git("init", "-q", "-b", "main")
	r.git("config", "user.email", "test@example.com")
	r.git("config", "user.name", "Test")
	r.git("config", "commit.gpgsign", "false")
	r.commit("README.md", "hello\n", "initial")
	return r
}

func (r *testRepo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %v: %s", args, out)
	return string(out)
}

func (r *testRepo) commit(file, content, msg string) {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.dir, file), []byte(content), 0o644))
	r.git("add", file)
	r.git("commit", "-q", "-m", msg)
}

func TestCLIGateway_AncestryAfterMerge(t *testing.T) {
	repo := newTestRepo(t)
	g := NewCLIGateway()
	ctx := context.Background()

	repo.git("checkout", "-q", "-b", "feat/login")
	repo.commit("login.go", "package login\n", "add login")

	ok, err := g.IsAncestor(ctx, repo.dir, "feat/login", "main")
	require.NoError(t, err)
	assert.False(t, ok)

	repo.git("checkout", "-q", "main")
	repo.git("merge", "-q", "--no-ff", "-m", "merge login", "feat/login")

	ok, err = g.IsAncestor(ctx, repo.dir, "feat/login", "main")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = g.IsAncestor(ctx, repo.dir, "does-not-exist", "main")
	assert.Error(t, err)
}

func TestCLIGateway_SquashMergeContent(t *testing.T) {
	repo := newTestRepo(t)
	g := NewCLIGateway()
	ctx := context.Background()

	repo.git("checkout", "-q", "-b", "feat/squash")
	repo.commit("a.txt", "one\n", "a")
	repo.commit("b.txt", "two\n", "b")
	repo.git("checkout", "-q", "main")

	base, err := g.MergeBase(ctx, repo.dir, "main", "feat/squash")
	require.NoError(t, err)

	files, err := g.ChangedFiles(ctx, repo.dir, base, "feat/squash")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, files)

	same, err := g.SameContent(ctx, repo.dir, "main", "feat/squash", files)
	require.NoError(t, err)
	assert.False(t, same)

	repo.git("merge", "-q", "--squash", "feat/squash")
	repo.git("commit", "-q", "-m", "squashed")

	same, err = g.SameContent(ctx, repo.dir, "main", "feat/squash", files)
	require.NoError(t, err)
	assert.True(t, same)

	ok, err := g.IsAncestor(ctx, repo.dir, "feat/squash", "main")
	require.NoError(t, err)
	assert.False(t, ok, "squash merges are not ancestry merges")
}

func TestCLIGateway_RefsAndDefaultBranch(t *testing.T) {
	repo := newTestRepo(t)
	g := NewCLIGateway()
	ctx := context.Background()

	head, err := g.RevParse(ctx, repo.dir, "HEAD")
	require.NoError(t, err)
	assert.Len(t, head, 40)

	ok, err := g.RefExists(ctx, repo.dir, "refs/heads/main")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.RefExists(ctx, repo.dir, "refs/heads/nope")
	require.NoError(t, err)
	assert.False(t, ok)

	branch, err := g.DefaultBranch(ctx, repo.dir, "origin")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	hasRemote, err := g.HasRemote(ctx, repo.dir, "origin")
	require.NoError(t, err)
	assert.False(t, hasRemote)
}

func TestCLIGateway_FetchFromLocalRemote(t *testing.T) {
	upstream := newTestRepo(t)
	clone := t.TempDir()
	cmd := exec.Command("git", "clone", "-q", upstream.dir, clone)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	g := NewCLIGateway()
	ctx := context.Background()

	upstream.commit("new.txt", "fresh\n", "upstream change")
	require.NoError(t, g.Fetch(ctx, clone, "origin"))

	upstreamHead, err := g.RevParse(ctx, upstream.dir, "main")
	require.NoError(t, err)
	fetched, err := g.RevParse(ctx, clone, "origin/main")
	require.NoError(t, err)
	assert.Equal(t, upstreamHead, fetched)

	branch, err := g.DefaultBranch(ctx, clone, "origin")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCLIGateway_FetchUnknownRemoteStops(t *testing.T) {
	repo := newTestRepo(t)
	attempts := 0
	g := &CLIGateway{
		Bin: "git",
		FetchBackOff: func() backoff.BackOff {
			attempts++
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		},
	}

	err := g.Fetch(context.Background(), repo.dir, "nowhere")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCLIGateway_Worktrees(t *testing.T) {
	repo := newTestRepo(t)
	g := NewCLIGateway()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, g.AddWorktree(ctx, repo.dir, path, "feat/wt", "main"))
	assert.FileExists(t, filepath.Join(path, "README.md"))

	ok, err := g.RefExists(ctx, repo.dir, "refs/heads/feat/wt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, g.RemoveWorktree(ctx, repo.dir, path))
	assert.NoDirExists(t, path)

	// Existing branches are checked out rather than recreated
	require.NoError(t, g.AddWorktree(ctx, repo.dir, path, "feat/wt", "main"))
}
