package output

import (
	"context"
	"time"
)

// StorageGateway archives run artifacts (prompts, agent results) outside the database.
// Supports the local filesystem and S3.
type StorageGateway interface {
	// SaveArtifact persists an artifact to storage
	SaveArtifact(ctx context.Context, req SaveArtifactRequest) (*ArtifactMetadata, error)

	// LoadArtifact retrieves an artifact of a run
	LoadArtifact(ctx context.Context, runID, artifactID string) (*Artifact, error)

	// ListArtifacts lists artifacts of a run, oldest first
	ListArtifacts(ctx context.Context, runID string) ([]*ArtifactMetadata, error)

	// DeleteArtifacts removes every artifact of a run
	DeleteArtifacts(ctx context.Context, runID string) error
}

// SaveArtifactRequest represents a request to save an artifact
type SaveArtifactRequest struct {
	RunID        string            // Owning agent run
	Phase        string            // Workflow node that produced it
	ArtifactType ArtifactType      // Type of artifact
	Content      []byte            // Artifact content
	Metadata     map[string]string // Additional metadata
	ContentType  string            // MIME type (optional)
}

// ArtifactType represents the type of artifact
type ArtifactType string

const (
	ArtifactTypePrompt ArtifactType = "prompt" // Prompt sent to the agent
	ArtifactTypeResult ArtifactType = "result" // Agent result text
	ArtifactTypeLog    ArtifactType = "log"    // Execution logs
)

// Artifact represents a stored artifact
type Artifact struct {
	ID       string
	Content  []byte
	Metadata ArtifactMetadata
}

// ArtifactMetadata contains information about an artifact
type ArtifactMetadata struct {
	ID          string            `json:"id"`
	RunID       string            `json:"runId"`
	Phase       string            `json:"phase,omitempty"`
	Type        ArtifactType      `json:"type"`
	StoragePath string            `json:"storagePath"`
	ContentType string            `json:"contentType,omitempty"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
