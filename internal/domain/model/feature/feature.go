package feature

import (
	"errors"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
)

// Feature is a unit of requested software change tracked through its lifecycle.
// The workflow engine only changes Lifecycle and CurrentAgentRunID.
type Feature struct {
	ID                string
	Slug              string
	Name              string
	Description       string
	Lifecycle         Lifecycle
	RepositoryPath    string
	Branch            string
	WorktreePath      string
	SpecPath          string
	ApprovalGates     *execution.ApprovalGates
	CurrentAgentRunID string
	Push              bool
	OpenPR            bool
	ParentID          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// NewFeature creates a feature in the Started lifecycle
func NewFeature(name, description, repositoryPath string) (*Feature, error) {
	if name == "" {
		return nil, errors.New("feature name cannot be empty")
	}
	if repositoryPath == "" {
		return nil, errors.New("repository path cannot be empty")
	}

	now := time.Now().UTC()
	return &Feature{
		ID:             model.NewUUID(),
		Slug:           Slugify(name),
		Name:           name,
		Description:    description,
		Lifecycle:      LifecycleStarted,
		RepositoryPath: repositoryPath,
		Branch:         BranchName(Slugify(name)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// WorkDir returns the directory the agent works in
func (f *Feature) WorkDir() string {
	if f.WorktreePath != "" {
		return f.WorktreePath
	}
	return f.RepositoryPath
}
