package service

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// Merge verification methods
const (
	VerifiedByAncestry = "ancestor"
	VerifiedBySquash   = "squash"
)

// MergeVerification is the outcome of MergeVerifier.Verify
type MergeVerification struct {
	Verified   bool   `json:"verified"`
	Method     string `json:"method,omitempty"`
	BaseRef    string `json:"baseRef"`
	FeatureRef string `json:"featureRef"`
	BaseCommit string `json:"baseCommit,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// MergeVerifier checks in git history that a feature branch landed on the
// base branch. Agent claims are never trusted.
type MergeVerifier struct {
	git        output.GitGateway
	remote     string
	baseBranch string
	logger     app.Logger
}

// NewMergeVerifier creates a verifier. An empty baseBranch is resolved from
// the repository on every call; an empty remote defaults to origin.
func NewMergeVerifier(git output.GitGateway, remote, baseBranch string, logger app.Logger) *MergeVerifier {
	if remote == "" {
		remote = "origin"
	}
	logger = app.LoggerOr(logger)
	return &MergeVerifier{
		git:        git,
		remote:     remote,
		baseBranch: baseBranch,
		logger:     logger,
	}
}

// BaseBranch resolves the branch features merge into
func (v *MergeVerifier) BaseBranch(ctx context.Context, repoPath string) (string, error) {
	if v.baseBranch != "" {
		return v.baseBranch, nil
	}
	return v.git.DefaultBranch(ctx, repoPath, v.remote)
}

// Verify reports whether featureBranch is merged into the base branch.
//
// The local base branch is checked first. When that fails and a remote is
// configured, the remote is fetched and its tracking branch checked, which
// covers PR merges done on the server. The branch counts as merged when it is
// an ancestor of the base, or when every path it changed has identical
// content on the base (squash merge).
func (v *MergeVerifier) Verify(ctx context.Context, repoPath, featureBranch string) (*MergeVerification, error) {
	base, err := v.BaseBranch(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve base branch: %w", err)
	}

	local, err := v.check(ctx, repoPath, base, featureBranch)
	if err != nil {
		return nil, err
	}
	if local.Verified {
		return local, nil
	}

	hasRemote, err := v.git.HasRemote(ctx, repoPath, v.remote)
	if err != nil {
		return nil, fmt.Errorf("inspect remotes: %w", err)
	}
	if !hasRemote {
		return local, nil
	}
	if err := v.git.Fetch(ctx, repoPath, v.remote); err != nil {
		v.logger.Warn("fetch %s failed: %v", v.remote, err)
		return local, nil
	}

	remote, err := v.check(ctx, repoPath, v.remote+"/"+base, v.preferLocal(ctx, repoPath, featureBranch))
	if err != nil {
		return nil, err
	}
	if !remote.Verified {
		remote.Reason = local.Reason + "; " + remote.Reason
	}
	return remote, nil
}

func (v *MergeVerifier) check(ctx context.Context, repoPath, baseRef, featureRef string) (*MergeVerification, error) {
	result := &MergeVerification{BaseRef: baseRef, FeatureRef: featureRef}

	for _, ref := range []string{baseRef, featureRef} {
		ok, err := v.git.RefExists(ctx, repoPath, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		if !ok {
			result.Reason = fmt.Sprintf("ref %s does not exist", ref)
			return result, nil
		}
	}

	if commit, err := v.git.RevParse(ctx, repoPath, baseRef); err == nil {
		result.BaseCommit = commit
	}

	isAncestor, err := v.git.IsAncestor(ctx, repoPath, featureRef, baseRef)
	if err != nil {
		return nil, fmt.Errorf("check ancestry: %w", err)
	}
	if isAncestor {
		result.Verified = true
		result.Method = VerifiedByAncestry
		return result, nil
	}

	mergeBase, err := v.git.MergeBase(ctx, repoPath, baseRef, featureRef)
	if err != nil {
		return nil, fmt.Errorf("find merge base: %w", err)
	}
	files, err := v.git.ChangedFiles(ctx, repoPath, mergeBase, featureRef)
	if err != nil {
		return nil, fmt.Errorf("list branch changes: %w", err)
	}
	if len(files) == 0 {
		result.Reason = fmt.Sprintf("%s has no changes and is not an ancestor of %s", featureRef, baseRef)
		return result, nil
	}

	same, err := v.git.SameContent(ctx, repoPath, baseRef, featureRef, files)
	if err != nil {
		return nil, fmt.Errorf("compare branch content: %w", err)
	}
	if !same {
		result.Reason = fmt.Sprintf("%s is not merged into %s", featureRef, baseRef)
		return result, nil
	}

	result.Verified = true
	result.Method = VerifiedBySquash
	return result, nil
}

// preferLocal falls back to the tracking ref when the local branch was
// deleted after a PR merge
func (v *MergeVerifier) preferLocal(ctx context.Context, repoPath, branch string) string {
	if ok, err := v.git.RefExists(ctx, repoPath, branch); err == nil && ok {
		return branch
	}
	return v.remote + "/" + branch
}
