package feature

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	domainfeature "github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/spec"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// Options locate the files a feature owns
type Options struct {
	// SpecRoot holds one directory per feature slug with its spec.yaml
	SpecRoot string
	// WorktreeRoot holds one git worktree per feature slug
	WorktreeRoot string
	// BaseBranch is the branch new feature branches start from; the
	// repository's default branch when empty
	BaseBranch string
	Remote     string
}

// FeatureUseCaseImpl implements input.FeatureUseCase
type FeatureUseCaseImpl struct {
	features repository.FeatureRepository
	specDocs repository.SpecDocumentRepository
	git      output.GitGateway
	runs     input.AgentRunUseCase
	opts     Options
	logger   app.Logger
}

var _ input.FeatureUseCase = (*FeatureUseCaseImpl)(nil)

// NewFeatureUseCase creates the feature use case
func NewFeatureUseCase(
	features repository.FeatureRepository,
	specDocs repository.SpecDocumentRepository,
	git output.GitGateway,
	runs input.AgentRunUseCase,
	opts Options,
	logger app.Logger,
) *FeatureUseCaseImpl {
	logger = app.LoggerOr(logger)
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &FeatureUseCaseImpl{
		features: features,
		specDocs: specDocs,
		git:      git,
		runs:     runs,
		opts:     opts,
		logger:   logger,
	}
}

// CreateFeature registers a feature, writes its initial spec document,
// optionally checks its branch out in a worktree and starts the first run
func (uc *FeatureUseCaseImpl) CreateFeature(ctx context.Context, in dto.CreateFeatureInput) (*dto.CreateFeatureOutput, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("feature name is required")
	}
	repoPath, err := filepath.Abs(in.RepositoryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}

	f, err := domainfeature.NewFeature(strings.TrimSpace(in.Name), in.Description, repoPath)
	if err != nil {
		return nil, err
	}
	if _, err := uc.features.FindBySlug(ctx, f.Slug); err == nil {
		return nil, fmt.Errorf("feature %q already exists", f.Slug)
	} else if !execution.IsFeatureNotFound(err) {
		return nil, err
	}

	f.ApprovalGates = in.ApprovalGates
	f.Push = in.Push || in.OpenPR
	f.OpenPR = in.OpenPR
	f.ParentID = in.ParentID
	f.SpecPath = filepath.Join(uc.opts.SpecRoot, f.Slug, spec.DocumentFileName)

	if err := uc.specDocs.Save(ctx, f.SpecPath, spec.NewSpecDocument(f.Name, f.Description)); err != nil {
		return nil, fmt.Errorf("write spec document: %w", err)
	}

	if in.CreateWorktree {
		path := filepath.Join(uc.opts.WorktreeRoot, f.Slug)
		if err := uc.git.AddWorktree(ctx, repoPath, path, f.Branch, uc.baseBranch(ctx, repoPath)); err != nil {
			return nil, fmt.Errorf("create worktree for %s: %w", f.Slug, err)
		}
		f.WorktreePath = path
	}

	if err := uc.features.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("save feature: %w", err)
	}
	uc.logger.Info("created feature %s on branch %s", f.Slug, f.Branch)

	out := &dto.CreateFeatureOutput{Feature: *toFeatureDTO(f)}
	if !in.StartRun {
		return out, nil
	}

	run, err := uc.runs.CreateRun(ctx, dto.CreateRunInput{FeatureID: f.ID, Prompt: f.Description})
	if err != nil {
		return nil, err
	}
	out.Run = run
	if run.Created {
		out.Feature.CurrentAgentRunID = run.RunID
	}
	return out, nil
}

// GetFeature returns a live feature by id or slug
func (uc *FeatureUseCaseImpl) GetFeature(ctx context.Context, idOrSlug string) (*dto.FeatureDTO, error) {
	f, err := uc.features.FindByID(ctx, idOrSlug)
	if execution.IsFeatureNotFound(err) {
		f, err = uc.features.FindBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, err
	}
	return toFeatureDTO(f), nil
}

// ListFeatures returns features, newest first
func (uc *FeatureUseCaseImpl) ListFeatures(ctx context.Context, in dto.ListFeaturesInput) ([]*dto.FeatureDTO, error) {
	filter := repository.FeatureFilter{IncludeDeleted: in.IncludeDeleted, Limit: in.Limit}
	if in.Lifecycle != "" {
		filter.Lifecycle = domainfeature.Lifecycle(in.Lifecycle)
		if !filter.Lifecycle.IsValid() {
			return nil, fmt.Errorf("unknown lifecycle: %s", in.Lifecycle)
		}
	}

	features, err := uc.features.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.FeatureDTO, 0, len(features))
	for _, f := range features {
		out = append(out, toFeatureDTO(f))
	}
	return out, nil
}

func (uc *FeatureUseCaseImpl) baseBranch(ctx context.Context, repoPath string) string {
	if uc.opts.BaseBranch != "" {
		return uc.opts.BaseBranch
	}
	base, err := uc.git.DefaultBranch(ctx, repoPath, uc.opts.Remote)
	if err != nil {
		uc.logger.Warn("resolve default branch of %s, branching from HEAD: %v", repoPath, err)
		return ""
	}
	return base
}

func toFeatureDTO(f *domainfeature.Feature) *dto.FeatureDTO {
	return &dto.FeatureDTO{
		ID:                f.ID,
		Slug:              f.Slug,
		Name:              f.Name,
		Description:       f.Description,
		Lifecycle:         f.Lifecycle.String(),
		RepositoryPath:    f.RepositoryPath,
		Branch:            f.Branch,
		WorktreePath:      f.WorktreePath,
		SpecPath:          f.SpecPath,
		ApprovalGates:     f.ApprovalGates,
		CurrentAgentRunID: f.CurrentAgentRunID,
		Push:              f.Push,
		OpenPR:            f.OpenPR,
		ParentID:          f.ParentID,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
		DeletedAt:         f.DeletedAt,
	}
}
