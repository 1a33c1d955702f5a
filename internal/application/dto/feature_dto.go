package dto

import (
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// CreateFeatureInput is the input for CreateFeature
type CreateFeatureInput struct {
	Name           string
	Description    string
	RepositoryPath string
	ApprovalGates  *execution.ApprovalGates
	Push           bool
	OpenPR         bool
	ParentID       string
	// CreateWorktree checks the feature branch out in its own worktree
	CreateWorktree bool
	// StartRun creates the first agent run right away
	StartRun bool
}

// CreateFeatureOutput is the result of CreateFeature
type CreateFeatureOutput struct {
	Feature FeatureDTO       `json:"feature"`
	Run     *CreateRunOutput `json:"run,omitempty"`
}

// ListFeaturesInput filters ListFeatures
type ListFeaturesInput struct {
	Lifecycle      string
	IncludeDeleted bool
	Limit          int
}

// FeatureDTO is the read model of a feature
type FeatureDTO struct {
	ID                string                   `json:"id"`
	Slug              string                   `json:"slug"`
	Name              string                   `json:"name"`
	Description       string                   `json:"description,omitempty"`
	Lifecycle         string                   `json:"lifecycle"`
	RepositoryPath    string                   `json:"repositoryPath"`
	Branch            string                   `json:"branch"`
	WorktreePath      string                   `json:"worktreePath,omitempty"`
	SpecPath          string                   `json:"specPath,omitempty"`
	ApprovalGates     *execution.ApprovalGates `json:"approvalGates,omitempty"`
	CurrentAgentRunID string                   `json:"currentAgentRunId,omitempty"`
	Push              bool                     `json:"push"`
	OpenPR            bool                     `json:"openPr"`
	ParentID          string                   `json:"parentId,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
	DeletedAt         *time.Time               `json:"deletedAt,omitempty"`
}
