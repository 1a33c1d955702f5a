package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/spec"
)

// SpecDocumentRepository reads and atomically writes feature spec documents
type SpecDocumentRepository interface {
	// Load parses the document at path
	Load(ctx context.Context, path string) (*spec.SpecDocument, error)

	// Save writes the document with write-to-temp-then-rename semantics
	Save(ctx context.Context, path string, doc *spec.SpecDocument) error

	// Exists checks whether a document is present at path
	Exists(ctx context.Context, path string) (bool, error)

	// AppendRejectionFeedback adds a feedback entry under the document lock.
	// A missing document is created.
	AppendRejectionFeedback(ctx context.Context, path, message, phase string, at time.Time) (spec.RejectionFeedbackEntry, error)

	// UpdateMergeMetadata records PR and commit details under the document lock
	UpdateMergeMetadata(ctx context.Context, path string, m spec.MergeMetadata) error
}
