package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
)

const (
	artifactsDir    = "artifacts"
	contentFile     = "content"
	metadataFile    = "metadata.json"
	defaultMimeType = "text/plain; charset=utf-8"
)

// newArtifactMetadata builds the metadata for req. IDs are ULIDs so that
// lexical order is creation order.
func newArtifactMetadata(req output.SaveArtifactRequest, storagePath func(id string) string) (output.ArtifactMetadata, error) {
	if req.RunID == "" {
		return output.ArtifactMetadata{}, fmt.Errorf("run ID is required")
	}

	id := model.NewULID()
	sum := sha256.Sum256(req.Content)
	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultMimeType
	}

	return output.ArtifactMetadata{
		ID:          id,
		RunID:       req.RunID,
		Phase:       req.Phase,
		Type:        req.ArtifactType,
		StoragePath: storagePath(id),
		ContentType: contentType,
		Size:        int64(len(req.Content)),
		SHA256:      hex.EncodeToString(sum[:]),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}, nil
}
