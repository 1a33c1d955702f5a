package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// LocalStorageGateway implements StorageGateway on an afero filesystem.
// Directory structure: <baseDir>/artifacts/<runID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type LocalStorageGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalStorageGateway creates a new filesystem-based storage gateway
func NewLocalStorageGateway(fs afero.Fs, baseDir string) (*LocalStorageGateway, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(filepath.Join(baseDir, artifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}
	return &LocalStorageGateway{fs: fs, baseDir: baseDir}, nil
}

var _ output.StorageGateway = (*LocalStorageGateway)(nil)

func (g *LocalStorageGateway) runDir(runID string) string {
	return filepath.Join(g.baseDir, artifactsDir, runID)
}

// SaveArtifact writes content and metadata.json under a new artifact directory
func (g *LocalStorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	metadata, err := newArtifactMetadata(req, func(id string) string {
		return filepath.Join(g.runDir(req.RunID), id, contentFile)
	})
	if err != nil {
		return nil, err
	}

	artifactDir := filepath.Dir(metadata.StoragePath)
	if err := g.fs.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	if err := afero.WriteFile(g.fs, metadata.StoragePath, req.Content, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact content: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := afero.WriteFile(g.fs, filepath.Join(artifactDir, metadataFile), metadataJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact reads an artifact of a run
func (g *LocalStorageGateway) LoadArtifact(ctx context.Context, runID, artifactID string) (*output.Artifact, error) {
	artifactDir := filepath.Join(g.runDir(runID), artifactID)

	metadata, err := g.readMetadata(filepath.Join(artifactDir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", artifactID)
		}
		return nil, err
	}

	content, err := afero.ReadFile(g.fs, filepath.Join(artifactDir, contentFile))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return &output.Artifact{
		ID:       artifactID,
		Content:  content,
		Metadata: *metadata,
	}, nil
}

// ListArtifacts lists artifacts of a run, oldest first
func (g *LocalStorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	entries, err := afero.ReadDir(g.fs, g.runDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*output.ArtifactMetadata{}, nil
		}
		return nil, fmt.Errorf("read run artifacts directory: %w", err)
	}

	metadataList := make([]*output.ArtifactMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadata, err := g.readMetadata(filepath.Join(g.runDir(runID), entry.Name(), metadataFile))
		if err != nil {
			// Skip artifacts with missing or invalid metadata
			continue
		}
		metadataList = append(metadataList, metadata)
	}

	sort.Slice(metadataList, func(i, j int) bool { return metadataList[i].ID < metadataList[j].ID })
	return metadataList, nil
}

// DeleteArtifacts removes the run's artifact directory
func (g *LocalStorageGateway) DeleteArtifacts(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := g.fs.RemoveAll(g.runDir(runID)); err != nil {
		return fmt.Errorf("delete run artifacts: %w", err)
	}
	return nil
}

func (g *LocalStorageGateway) readMetadata(path string) (*output.ArtifactMetadata, error) {
	data, err := afero.ReadFile(g.fs, path)
	if err != nil {
		return nil, err
	}
	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &metadata, nil
}
