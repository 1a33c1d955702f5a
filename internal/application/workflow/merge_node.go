package workflow

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/spec"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
)

const defaultBaseBranch = "main"

// runMergeNode runs the two merge sub-phases.
//
// The commit sub-phase commits (and, depending on the feature flags, pushes
// and opens a PR), then consults the merge gate. The squash sub-phase runs
// when the gate is open or was approved, and its result is only accepted
// once git history confirms the branch landed on the base branch.
func (e *Executor) runMergeNode(ctx context.Context, wr *workflowRun) (bool, error) {
	approved := wr.approved == execution.NodeMerge
	wr.approved = ""

	prompt := e.mergePrompt(ctx, wr)
	phase := e.rec.startStep(ctx, wr.run.ID, nil, execution.NodeMerge.String(), step.TypePhase, map[string]interface{}{
		"push":            prompt.Push,
		"open_pr":         prompt.OpenPR,
		"base_branch":     prompt.BaseBranch,
		"merge_committed": wr.state.MergeCommitted,
	})

	fail := func(err error) (bool, error) {
		e.rec.finishStep(ctx, phase, step.StatusFailed, err.Error(), nil)
		return false, err
	}

	if !wr.state.MergeCommitted {
		pt := e.rec.startTiming(ctx, wr.run.ID, execution.NodeMerge.String())
		resp, err := e.callAgent(ctx, wr, execution.NodeMerge, phase, "merge-commit",
			e.prompts.BuildMergeCommitPrompt(prompt), wr.feature.WorkDir(), "")
		e.rec.closeTiming(ctx, pt)
		if err != nil {
			return fail(err)
		}

		e.applyMergeReport(ctx, wr, ParseMergeReport(resp.Output))
		wr.state.MergeCommitted = true
		wr.state.Feedback = nil

		if execution.ShouldInterrupt(execution.NodeMerge, wr.gates) {
			return true, e.suspend(ctx, wr, execution.NodeMerge, pt, phase)
		}
		if err := e.checkpoint(ctx, wr); err != nil {
			return fail(err)
		}
	} else if !approved && execution.ShouldInterrupt(execution.NodeMerge, wr.gates) {
		// Committed by an earlier worker that stopped before suspending
		return true, e.suspend(ctx, wr, execution.NodeMerge, nil, phase)
	}

	pt := e.rec.startTiming(ctx, wr.run.ID, execution.NodeMerge.String())
	prompt.PRURL = wr.state.PRURL
	prompt.PRNumber = wr.state.PRNumber
	resp, err := e.callAgent(ctx, wr, execution.NodeMerge, phase, "merge-squash",
		e.prompts.BuildMergeSquashPrompt(prompt), wr.feature.RepositoryPath, "")
	if err != nil {
		e.rec.closeTiming(ctx, pt)
		return fail(err)
	}
	report := ParseMergeReport(resp.Output)

	verifyStep := e.rec.startStep(ctx, wr.run.ID, phase, "merge-verify", step.TypeVerification, map[string]interface{}{
		"branch": wr.feature.Branch,
	})
	verification, err := e.verifier.Verify(ctx, wr.feature.RepositoryPath, wr.feature.Branch)
	e.rec.closeTiming(ctx, pt)
	if err != nil {
		e.rec.finishStep(ctx, verifyStep, step.StatusFailed, err.Error(), nil)
		return fail(fmt.Errorf("verify merge: %w", err))
	}

	verifyMeta := map[string]interface{}{
		"base_ref":    verification.BaseRef,
		"feature_ref": verification.FeatureRef,
		"method":      verification.Method,
		"reason":      verification.Reason,
	}
	if !verification.Verified {
		e.rec.finishStep(ctx, verifyStep, step.StatusFailed, verification.Reason, verifyMeta)
		return fail(execution.ErrMergeVerificationFailed.WithDetails(map[string]interface{}{
			"branch":  wr.feature.Branch,
			"baseRef": verification.BaseRef,
			"reason":  verification.Reason,
		}))
	}
	e.rec.finishStep(ctx, verifyStep, step.StatusCompleted, "verified", verifyMeta)

	if report.CommitHash == "" {
		report.CommitHash = verification.BaseCommit
	}
	wr.state.CommitHash = report.CommitHash
	wr.state.Merged = true

	if wr.feature.SpecPath != "" {
		mergedAt := e.now()
		if err := e.specDocs.UpdateMergeMetadata(ctx, wr.feature.SpecPath, spec.MergeMetadata{
			PRURL:      wr.state.PRURL,
			PRNumber:   wr.state.PRNumber,
			CommitHash: wr.state.CommitHash,
			MergedAt:   &mergedAt,
		}); err != nil {
			e.logger.Warn("record merge in spec document: %v", err)
		}
	}

	e.rec.finishStep(ctx, phase, step.StatusCompleted, "merged", map[string]interface{}{
		"commit_hash": wr.state.CommitHash,
	})
	return false, nil
}

// mergePrompt collects the inputs shared by both merge prompts
func (e *Executor) mergePrompt(ctx context.Context, wr *workflowRun) *dto.MergePromptDTO {
	base, err := e.verifier.BaseBranch(ctx, wr.feature.RepositoryPath)
	if err != nil || base == "" {
		e.logger.Warn("resolve base branch, using %s: %v", defaultBaseBranch, err)
		base = defaultBaseBranch
	}

	m := &dto.MergePromptDTO{
		WorkDir:    wr.feature.WorkDir(),
		SpecPath:   wr.feature.SpecPath,
		Branch:     wr.feature.Branch,
		BaseBranch: base,
		Push:       wr.state.Push || wr.state.OpenPR,
		OpenPR:     wr.state.OpenPR,
	}
	if wr.state.Feedback != nil {
		m.Feedback = wr.state.Feedback.Message
	}
	return m
}

// applyMergeReport keeps PR and commit details found in the commit sub-phase
// output. The spec document write is best-effort.
func (e *Executor) applyMergeReport(ctx context.Context, wr *workflowRun, report MergeReport) {
	if report.PRURL != "" {
		wr.state.PRURL = report.PRURL
		wr.state.PRNumber = report.PRNumber
	}
	if report.CommitHash != "" {
		wr.state.CommitHash = report.CommitHash
	}
	if wr.feature.SpecPath == "" || (report.PRURL == "" && report.CommitHash == "") {
		return
	}
	if err := e.specDocs.UpdateMergeMetadata(ctx, wr.feature.SpecPath, spec.MergeMetadata{
		PRURL:      report.PRURL,
		PRNumber:   report.PRNumber,
		CommitHash: report.CommitHash,
	}); err != nil {
		e.logger.Warn("record merge details in spec document: %v", err)
	}
}

// newPromptContext collects the inputs of a node prompt from the run
func newPromptContext(wr *workflowRun, node execution.Node, schema string) *dto.PromptContextDTO {
	promptCtx := &dto.PromptContextDTO{
		Node:               node.String(),
		FeatureName:        wr.feature.Name,
		FeatureDescription: wr.feature.Description,
		RunPrompt:          wr.run.Prompt,
		WorkDir:            wr.feature.WorkDir(),
		SpecPath:           wr.feature.SpecPath,
		Branch:             wr.feature.Branch,
		OutputSchema:       schema,
		ValidationErrors:   wr.state.LastValidationErrors,
	}
	if wr.state.Feedback != nil {
		promptCtx.Feedback = wr.state.Feedback.Message
		promptCtx.FeedbackIteration = wr.state.Feedback.Iteration
	}
	return promptCtx
}
