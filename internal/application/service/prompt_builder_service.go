package service

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
)

// PromptBuilderService builds the prompts sent to the coding agent for each
// workflow node. Only the conditional sections matter to the workflow:
// feedback and validation errors are injected when present, and the merge
// prompts include push and PR instructions depending on the feature flags.
type PromptBuilderService struct{}

// NewPromptBuilderService creates a new prompt builder service
func NewPromptBuilderService() *PromptBuilderService {
	return &PromptBuilderService{}
}

var nodeInstructions = map[string]string{
	"analyze": "Analyze the repository and the feature request. Identify the affected " +
		"components, existing conventions, and open questions. Do not change any files.",
	"requirements": "Write the product requirements for this feature. Record them in the " +
		"spec document and answer with the structured summary.",
	"research": "Research the technical options for the requirements. Record the chosen " +
		"approach in the spec document and answer with the structured decisions.",
	"plan": "Break the work into ordered implementation tasks. Record the plan in the spec " +
		"document and answer with the structured task list.",
	"implement": "Implement the plan in the working directory. Follow existing code patterns, " +
		"add tests, and make sure the build and tests pass. Do not commit.",
}

// BuildNodePrompt creates the prompt for a non-merge node
func (s *PromptBuilderService) BuildNodePrompt(promptCtx *dto.PromptContextDTO) (*dto.PromptResultDTO, error) {
	instructions, ok := nodeInstructions[promptCtx.Node]
	if !ok {
		return nil, fmt.Errorf("no prompt for node %q", promptCtx.Node)
	}

	var sb strings.Builder
	var warnings []string

	sb.WriteString(fmt.Sprintf("# Feature Workflow: %s\n\n", promptCtx.Node))
	sb.WriteString("## Context\n")
	sb.WriteString(fmt.Sprintf("- Working Directory: `%s`\n", promptCtx.WorkDir))
	if promptCtx.Branch != "" {
		sb.WriteString(fmt.Sprintf("- Branch: `%s`\n", promptCtx.Branch))
	}
	if promptCtx.SpecPath != "" {
		sb.WriteString(fmt.Sprintf("- Spec Document: `%s`\n", promptCtx.SpecPath))
	} else {
		warnings = append(warnings, "feature has no spec document")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("## Feature: %s\n", promptCtx.FeatureName))
	if promptCtx.FeatureDescription != "" {
		sb.WriteString(promptCtx.FeatureDescription)
		sb.WriteString("\n")
	}
	if promptCtx.RunPrompt != "" {
		sb.WriteString("\n")
		sb.WriteString(promptCtx.RunPrompt)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Instructions\n")
	sb.WriteString(instructions)
	sb.WriteString("\n\n")

	writeFeedback(&sb, promptCtx.Feedback, promptCtx.FeedbackIteration)

	if len(promptCtx.ValidationErrors) > 0 {
		sb.WriteString("## Previous Output Was Invalid\n")
		sb.WriteString("Your previous answer did not match the required format:\n")
		for _, e := range promptCtx.ValidationErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	if promptCtx.OutputSchema != "" {
		sb.WriteString("## Output Format\n")
		sb.WriteString("Answer with a single JSON object matching this schema and nothing else:\n")
		sb.WriteString("```json\n")
		sb.WriteString(promptCtx.OutputSchema)
		sb.WriteString("\n```\n")
	}

	return &dto.PromptResultDTO{
		Content:  sb.String(),
		Warnings: warnings,
	}, nil
}

// BuildMergeCommitPrompt creates the first merge sub-phase prompt: commit,
// then push when push or openPr is set, then open a PR when openPr is set.
func (s *PromptBuilderService) BuildMergeCommitPrompt(m *dto.MergePromptDTO) string {
	var sb strings.Builder

	sb.WriteString("# Feature Workflow: merge (commit)\n\n")
	sb.WriteString("## Context\n")
	sb.WriteString(fmt.Sprintf("- Working Directory: `%s`\n", m.WorkDir))
	sb.WriteString(fmt.Sprintf("- Branch: `%s`\n", m.Branch))
	sb.WriteString(fmt.Sprintf("- Base Branch: `%s`\n", m.BaseBranch))
	sb.WriteString("\n")

	sb.WriteString("## Instructions\n")
	sb.WriteString("1. Review the working diff and stage every change that belongs to this feature\n")
	sb.WriteString("2. Create one commit with a conventional commit message (feat:, fix:, refactor:, ...)\n")

	step := 3
	if m.Push || m.OpenPR {
		sb.WriteString(fmt.Sprintf("%d. Push `%s` to origin, setting the upstream if needed\n", step, m.Branch))
		step++
	}
	if m.OpenPR {
		sb.WriteString(fmt.Sprintf("%d. Open a pull request from `%s` into `%s` with `gh pr create`\n", step, m.Branch, m.BaseBranch))
		step++
		if m.SpecPath != "" {
			sb.WriteString(fmt.Sprintf("%d. Write the pull request URL into `%s` under `merge.prUrl`\n", step, m.SpecPath))
		}
	}
	sb.WriteString("\n")

	writeFeedback(&sb, m.Feedback, 0)

	sb.WriteString("## Output\n")
	sb.WriteString("Report the commit hash")
	if m.OpenPR {
		sb.WriteString(" and the pull request URL")
	}
	sb.WriteString(".\n")

	return sb.String()
}

// BuildMergeSquashPrompt creates the second merge sub-phase prompt. With a PR
// it merges the PR; otherwise it squash-merges the branch locally.
func (s *PromptBuilderService) BuildMergeSquashPrompt(m *dto.MergePromptDTO) string {
	var sb strings.Builder

	sb.WriteString("# Feature Workflow: merge (squash)\n\n")
	sb.WriteString("## Context\n")
	sb.WriteString(fmt.Sprintf("- Working Directory: `%s`\n", m.WorkDir))
	sb.WriteString(fmt.Sprintf("- Branch: `%s`\n", m.Branch))
	sb.WriteString(fmt.Sprintf("- Base Branch: `%s`\n", m.BaseBranch))
	sb.WriteString("\n")

	sb.WriteString("## Instructions\n")
	if m.PRURL != "" || m.PRNumber > 0 {
		ref := m.PRURL
		if m.PRNumber > 0 {
			ref = fmt.Sprintf("#%d (%s)", m.PRNumber, m.PRURL)
		}
		sb.WriteString(fmt.Sprintf("1. Squash-merge pull request %s with `gh pr merge --squash`\n", ref))
		sb.WriteString(fmt.Sprintf("2. Update the local `%s` from origin\n", m.BaseBranch))
	} else {
		sb.WriteString(fmt.Sprintf("1. Check out `%s` in the main repository\n", m.BaseBranch))
		sb.WriteString(fmt.Sprintf("2. Run `git merge --squash %s` and commit with a conventional commit message\n", m.Branch))
	}
	sb.WriteString("\n")

	sb.WriteString("## Conflicts\n")
	sb.WriteString(fmt.Sprintf("If the merge conflicts, rebase `%s` onto `%s`, resolve every conflict ", m.Branch, m.BaseBranch))
	sb.WriteString("keeping both sides' intent, rerun the tests, and retry the merge. ")
	sb.WriteString("Never discard changes from the base branch.\n\n")

	writeFeedback(&sb, m.Feedback, 0)

	sb.WriteString("## Output\n")
	sb.WriteString("Report the resulting commit hash on the base branch.\n")

	return sb.String()
}

func writeFeedback(sb *strings.Builder, feedback string, iteration int) {
	if strings.TrimSpace(feedback) == "" {
		return
	}
	if iteration > 0 {
		sb.WriteString(fmt.Sprintf("## Reviewer Feedback (iteration %d)\n", iteration))
	} else {
		sb.WriteString("## Reviewer Feedback\n")
	}
	sb.WriteString("Your previous result was rejected. Address this feedback:\n\n")
	sb.WriteString(strings.TrimSpace(feedback))
	sb.WriteString("\n\n")
}
