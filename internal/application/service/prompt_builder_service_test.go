package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
)

func TestPromptBuilderService_BuildNodePrompt(t *testing.T) {
	s := NewPromptBuilderService()

	result, err := s.BuildNodePrompt(&dto.PromptContextDTO{
		Node:              "plan",
		FeatureName:       "Login",
		WorkDir:           "/work",
		SpecPath:          "/work/.deeflow/specs/login/spec.yaml",
		OutputSchema:      `{"type":"object"}`,
		Feedback:          "split task 2",
		FeedbackIteration: 2,
		ValidationErrors:  []string{"tasks: must not be empty"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Contains(t, result.Content, "## Reviewer Feedback (iteration 2)")
	assert.Contains(t, result.Content, "split task 2")
	assert.Contains(t, result.Content, "- tasks: must not be empty")
	assert.Contains(t, result.Content, `{"type":"object"}`)
}

func TestPromptBuilderService_BuildNodePromptPlain(t *testing.T) {
	s := NewPromptBuilderService()

	result, err := s.BuildNodePrompt(&dto.PromptContextDTO{Node: "analyze", FeatureName: "Login"})
	require.NoError(t, err)
	assert.NotContains(t, result.Content, "Reviewer Feedback")
	assert.NotContains(t, result.Content, "Output Format")
	assert.Equal(t, []string{"feature has no spec document"}, result.Warnings)

	_, err = s.BuildNodePrompt(&dto.PromptContextDTO{Node: "merge"})
	assert.Error(t, err)
}

func TestPromptBuilderService_BuildMergeCommitPrompt(t *testing.T) {
	s := NewPromptBuilderService()
	base := dto.MergePromptDTO{Branch: "feat/login", BaseBranch: "main", SpecPath: "/spec.yaml"}

	tests := []struct {
		name     string
		push     bool
		openPR   bool
		wantPush bool
		wantPR   bool
	}{
		{name: "commit only"},
		{name: "push", push: true, wantPush: true},
		{name: "open PR implies push", openPR: true, wantPush: true, wantPR: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			m.Push = tt.push
			m.OpenPR = tt.openPR
			prompt := s.BuildMergeCommitPrompt(&m)

			assert.Contains(t, prompt, "conventional commit")
			assert.Equal(t, tt.wantPush, containsAll(prompt, "Push `feat/login`"))
			assert.Equal(t, tt.wantPR, containsAll(prompt, "gh pr create", "merge.prUrl"))
		})
	}
}

func TestPromptBuilderService_BuildMergeSquashPrompt(t *testing.T) {
	s := NewPromptBuilderService()

	local := s.BuildMergeSquashPrompt(&dto.MergePromptDTO{Branch: "feat/login", BaseBranch: "main"})
	assert.Contains(t, local, "git merge --squash feat/login")
	assert.Contains(t, local, "## Conflicts")

	pr := s.BuildMergeSquashPrompt(&dto.MergePromptDTO{
		Branch:     "feat/login",
		BaseBranch: "main",
		PRURL:      "https://github.com/acme/app/pull/7",
		PRNumber:   7,
	})
	assert.Contains(t, pr, "#7 (https://github.com/acme/app/pull/7)")
	assert.NotContains(t, pr, "git merge --squash")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
