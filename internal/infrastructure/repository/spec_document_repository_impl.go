package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/spec"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

const (
	lockSuffix     = ".lock"
	backupSuffix   = ".bak"
	lockRetryDelay = 50 * time.Millisecond
	lockTimeout    = 10 * time.Second
)

// SpecDocumentRepositoryImpl stores spec.yaml documents on an afero filesystem.
// Read-modify-write updates are serialized by an in-process mutex and, on the
// OS filesystem, by an flock on "<path>.lock" so CLI and worker processes do
// not lose each other's writes.
type SpecDocumentRepositoryImpl struct {
	fs afero.Fs
	mu sync.Mutex
}

// NewSpecDocumentRepository creates a spec document repository over fs
func NewSpecDocumentRepository(fs afero.Fs) repository.SpecDocumentRepository {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &SpecDocumentRepositoryImpl{fs: fs}
}

// Load parses the document at path
func (r *SpecDocumentRepositoryImpl) Load(ctx context.Context, path string) (*spec.SpecDocument, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("spec document not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read spec document %s: %w", path, err)
	}

	var doc spec.SpecDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse spec document %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes the document atomically
func (r *SpecDocumentRepositoryImpl) Save(ctx context.Context, path string, doc *spec.SpecDocument) error {
	if doc == nil {
		return fmt.Errorf("spec document cannot be nil")
	}
	return r.withLock(ctx, path, func() error {
		return r.write(path, doc)
	})
}

// Exists checks whether a document is present at path
func (r *SpecDocumentRepositoryImpl) Exists(ctx context.Context, path string) (bool, error) {
	exists, err := afero.Exists(r.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to check spec document %s: %w", path, err)
	}
	return exists, nil
}

// AppendRejectionFeedback adds a feedback entry, creating the document if needed
func (r *SpecDocumentRepositoryImpl) AppendRejectionFeedback(
	ctx context.Context,
	path, message, phase string,
	at time.Time,
) (spec.RejectionFeedbackEntry, error) {
	var entry spec.RejectionFeedbackEntry
	err := r.withLock(ctx, path, func() error {
		doc, err := r.loadOrNew(ctx, path)
		if err != nil {
			return err
		}
		entry = doc.AddRejectionFeedback(message, phase, at)
		return r.write(path, doc)
	})
	if err != nil {
		return spec.RejectionFeedbackEntry{}, err
	}
	return entry, nil
}

// UpdateMergeMetadata records PR and commit details
func (r *SpecDocumentRepositoryImpl) UpdateMergeMetadata(ctx context.Context, path string, m spec.MergeMetadata) error {
	return r.withLock(ctx, path, func() error {
		doc, err := r.loadOrNew(ctx, path)
		if err != nil {
			return err
		}
		doc.ApplyMergeMetadata(m)
		return r.write(path, doc)
	})
}

// loadOrNew loads the document for a read-modify-write update. A missing
// document starts empty. A malformed one is copied to "<path>.bak" and
// replaced, so feedback and merge details are never dropped on its account.
func (r *SpecDocumentRepositoryImpl) loadOrNew(ctx context.Context, path string) (*spec.SpecDocument, error) {
	exists, err := r.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &spec.SpecDocument{}, nil
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec document %s: %w", path, err)
	}
	var doc spec.SpecDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if err := writeFileAtomic(r.fs, path+backupSuffix, data); err != nil {
			return nil, fmt.Errorf("failed to back up malformed spec document %s: %w", path, err)
		}
		app.GetLogger().Warn("spec document %s is malformed (%v), saved a copy as %s and starting over", path, err, path+backupSuffix)
		return &spec.SpecDocument{}, nil
	}
	return &doc, nil
}

func (r *SpecDocumentRepositoryImpl) write(path string, doc *spec.SpecDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal spec document: %w", err)
	}
	if err := writeFileAtomic(r.fs, path, data); err != nil {
		return fmt.Errorf("failed to write spec document %s: %w", path, err)
	}
	return nil
}

// withLock runs fn while holding the document lock
func (r *SpecDocumentRepositoryImpl) withLock(ctx context.Context, path string, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fs.(*afero.OsFs); !ok {
		return fn()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(path + lockSuffix)
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock spec document %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for spec document lock %s", fl.Path())
	}
	defer fl.Unlock()

	return fn()
}

// writeFileAtomic writes data to a temp file in the target directory and renames it
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".tmp-spec-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// no-op after a successful rename
	defer func() {
		_ = fs.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fs.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
