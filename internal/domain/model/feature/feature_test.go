package feature

import (
	"testing"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Add Login Page", "add-login-page"},
		{"punctuation collapses", "OAuth2 -- refresh!!", "oauth2-refresh"},
		{"fullwidth digits normalize", "Ｖ２ API", "v2-api"},
		{"non latin falls back", "ログイン", "feature"},
		{"empty falls back", "   ", "feature"},
		{"truncated", "aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd eeeeeeeeee", "aaaaaaaaaa-bbbbbbbbbb-cccccccccc-dddddddddd-eeee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}

func TestNewFeature(t *testing.T) {
	f, err := NewFeature("Add Login Page", "users can log in", "/repo")
	require.NoError(t, err)
	assert.Equal(t, "add-login-page", f.Slug)
	assert.Equal(t, "feat/add-login-page", f.Branch)
	assert.Equal(t, LifecycleStarted, f.Lifecycle)
	assert.Equal(t, "/repo", f.WorkDir())

	f.WorktreePath = "/repo/.worktrees/add-login-page"
	assert.Equal(t, "/repo/.worktrees/add-login-page", f.WorkDir())

	_, err = NewFeature("", "", "/repo")
	assert.Error(t, err)
	_, err = NewFeature("x", "", "")
	assert.Error(t, err)
}

func TestLifecycleForNode(t *testing.T) {
	assert.Equal(t, LifecycleRequirements, LifecycleForNode(execution.NodeRequirements))
	assert.Equal(t, LifecycleImplementation, LifecycleForNode(execution.NodeImplement))
	assert.Equal(t, LifecycleReview, LifecycleForNode(execution.NodeMerge))
	assert.Equal(t, LifecycleStarted, LifecycleForNode(execution.Node("x")))
	assert.True(t, LifecycleMaintain.IsValid())
	assert.False(t, Lifecycle("Deploy").IsValid())
}
