package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGit answers GitGateway calls from fixed tables
type fakeGit struct {
	refs        map[string]bool
	ancestors   map[string]bool // "ancestor..descendant"
	changed     []string
	sameContent map[string]bool // baseRef
	hasRemote   bool
	fetchErr    error
	fetched     int
	defaultBr   string
}

func (f *fakeGit) RevParse(_ context.Context, _, ref string) (string, error) {
	if !f.refs[ref] {
		return "", errors.New("unknown ref")
	}
	return "sha-" + ref, nil
}

func (f *fakeGit) RefExists(_ context.Context, _, ref string) (bool, error) {
	return f.refs[ref], nil
}

func (f *fakeGit) IsAncestor(_ context.Context, _, ancestor, descendant string) (bool, error) {
	return f.ancestors[ancestor+".."+descendant], nil
}

func (f *fakeGit) MergeBase(_ context.Context, _, a, b string) (string, error) {
	return "base", nil
}

func (f *fakeGit) ChangedFiles(_ context.Context, _, from, to string) ([]string, error) {
	return f.changed, nil
}

func (f *fakeGit) SameContent(_ context.Context, _, a, b string, paths []string) (bool, error) {
	return f.sameContent[a], nil
}

func (f *fakeGit) HasRemote(_ context.Context, _, _ string) (bool, error) {
	return f.hasRemote, nil
}

func (f *fakeGit) Fetch(_ context.Context, _, _ string) error {
	f.fetched++
	return f.fetchErr
}

func (f *fakeGit) DefaultBranch(_ context.Context, _, _ string) (string, error) {
	return f.defaultBr, nil
}

func (f *fakeGit) AddWorktree(_ context.Context, _, _, _, _ string) error { return nil }
func (f *fakeGit) RemoveWorktree(_ context.Context, _, _ string) error    { return nil }

func TestMergeVerifier_Verify(t *testing.T) {
	tests := []struct {
		name       string
		git        *fakeGit
		wantOK     bool
		wantMethod string
		wantBase   string
		wantFetch  int
	}{
		{
			name: "ancestor of local base",
			git: &fakeGit{
				refs:      map[string]bool{"main": true, "feat/x": true},
				ancestors: map[string]bool{"feat/x..main": true},
				defaultBr: "main",
			},
			wantOK:     true,
			wantMethod: VerifiedByAncestry,
			wantBase:   "main",
		},
		{
			name: "squash merged locally",
			git: &fakeGit{
				refs:        map[string]bool{"main": true, "feat/x": true},
				changed:     []string{"a.go"},
				sameContent: map[string]bool{"main": true},
				defaultBr:   "main",
			},
			wantOK:     true,
			wantMethod: VerifiedBySquash,
			wantBase:   "main",
		},
		{
			name: "not merged without remote",
			git: &fakeGit{
				refs:      map[string]bool{"main": true, "feat/x": true},
				changed:   []string{"a.go"},
				defaultBr: "main",
			},
			wantBase: "main",
		},
		{
			name: "merged through PR on remote",
			git: &fakeGit{
				refs:      map[string]bool{"main": true, "origin/main": true, "feat/x": true},
				ancestors: map[string]bool{"feat/x..origin/main": true},
				changed:   []string{"a.go"},
				hasRemote: true,
				defaultBr: "main",
			},
			wantOK:     true,
			wantMethod: VerifiedByAncestry,
			wantBase:   "origin/main",
			wantFetch:  1,
		},
		{
			name: "PR squash merged and local branch deleted",
			git: &fakeGit{
				refs:        map[string]bool{"main": true, "origin/main": true, "origin/feat/x": true},
				changed:     []string{"a.go"},
				sameContent: map[string]bool{"origin/main": true},
				hasRemote:   true,
				defaultBr:   "main",
			},
			wantOK:     true,
			wantMethod: VerifiedBySquash,
			wantBase:   "origin/main",
			wantFetch:  1,
		},
		{
			name: "fetch failure keeps local verdict",
			git: &fakeGit{
				refs:      map[string]bool{"main": true, "feat/x": true},
				changed:   []string{"a.go"},
				hasRemote: true,
				fetchErr:  errors.New("network down"),
				defaultBr: "main",
			},
			wantBase:  "main",
			wantFetch: 1,
		},
		{
			name: "branch without changes is not merged",
			git: &fakeGit{
				refs:      map[string]bool{"main": true, "feat/x": true},
				defaultBr: "main",
			},
			wantBase: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewMergeVerifier(tt.git, "", "", nopLogger{})
			got, err := v.Verify(context.Background(), "/repo", "feat/x")
			require.NoError(t, err)

			assert.Equal(t, tt.wantOK, got.Verified)
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantBase, got.BaseRef)
			assert.Equal(t, tt.wantFetch, tt.git.fetched)
			if !tt.wantOK {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestMergeVerifier_ConfiguredBaseBranch(t *testing.T) {
	git := &fakeGit{
		refs:      map[string]bool{"develop": true, "feat/x": true},
		ancestors: map[string]bool{"feat/x..develop": true},
		defaultBr: "main",
	}
	v := NewMergeVerifier(git, "origin", "develop", nopLogger{})

	base, err := v.BaseBranch(context.Background(), "/repo")
	require.NoError(t, err)
	assert.Equal(t, "develop", base)

	got, err := v.Verify(context.Background(), "/repo", "feat/x")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "sha-develop", got.BaseCommit)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
