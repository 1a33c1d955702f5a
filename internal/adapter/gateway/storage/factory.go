package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// Storage types accepted by NewStorageGateway
const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Config selects and configures the artifact store
type Config struct {
	Type    string
	BaseDir string // local: root directory, usually <home>
	S3      S3Config
}

// NewStorageGateway creates the configured gateway. TypeNone returns nil,
// which callers treat as artifact archival disabled.
func NewStorageGateway(ctx context.Context, cfg Config) (output.StorageGateway, error) {
	switch cfg.Type {
	case TypeNone:
		return nil, nil
	case "", TypeLocal:
		gw, err := NewLocalStorageGateway(afero.NewOsFs(), filepath.Clean(cfg.BaseDir))
		if err != nil {
			return nil, err
		}
		return gw, nil
	case TypeS3:
		gw, err := NewS3StorageGateway(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s (supported: %s, %s, %s)", cfg.Type, TypeLocal, TypeS3, TypeNone)
	}
}
