package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// S3StorageGateway implements StorageGateway using AWS S3
// Bucket structure: s3://<bucket>/<prefix>/artifacts/<runID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type S3StorageGateway struct {
	client     S3API // Use interface for testability
	bucketName string
	prefix     string // Optional prefix for all keys (e.g., "deeflow/prod")
}

// S3Config holds S3 storage gateway configuration
type S3Config struct {
	BucketName string // S3 bucket name
	Prefix     string // Optional key prefix
	Region     string // AWS region (optional, uses default if empty)
}

// NewS3StorageGateway creates a new S3-based storage gateway
func NewS3StorageGateway(ctx context.Context, cfg S3Config) (*S3StorageGateway, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	return NewS3StorageGatewayWithClient(s3.NewFromConfig(awsCfg), cfg.BucketName, cfg.Prefix), nil
}

// NewS3StorageGatewayWithClient creates a gateway over a custom S3 client
func NewS3StorageGatewayWithClient(client S3API, bucketName, prefix string) *S3StorageGateway {
	return &S3StorageGateway{
		client:     client,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}
}

var _ output.StorageGateway = (*S3StorageGateway)(nil)

// SaveArtifact uploads content and metadata.json
func (g *S3StorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	metadata, err := newArtifactMetadata(req, func(id string) string {
		return fmt.Sprintf("s3://%s/%s", g.bucketName, g.buildKey(artifactsDir, req.RunID, id, contentFile))
	})
	if err != nil {
		return nil, err
	}

	objectMetadata := map[string]string{
		"artifact-id":   metadata.ID,
		"run-id":        req.RunID,
		"phase":         req.Phase,
		"artifact-type": string(req.ArtifactType),
	}
	for k, v := range req.Metadata {
		objectMetadata[k] = v
	}

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(g.buildKey(artifactsDir, req.RunID, metadata.ID, contentFile)),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(metadata.ContentType),
		Metadata:    objectMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upload to S3: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(g.buildKey(artifactsDir, req.RunID, metadata.ID, metadataFile)),
		Body:        bytes.NewReader(metadataJSON),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload metadata to S3: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact downloads an artifact of a run
func (g *S3StorageGateway) LoadArtifact(ctx context.Context, runID, artifactID string) (*output.Artifact, error) {
	metadataJSON, err := g.get(ctx, g.buildKey(artifactsDir, runID, artifactID, metadataFile))
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("artifact not found: %s", artifactID)
		}
		return nil, fmt.Errorf("download metadata from S3: %w", err)
	}

	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	content, err := g.get(ctx, g.buildKey(artifactsDir, runID, artifactID, contentFile))
	if err != nil {
		return nil, fmt.Errorf("download content from S3: %w", err)
	}

	return &output.Artifact{
		ID:       artifactID,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// ListArtifacts lists artifacts of a run, oldest first
func (g *S3StorageGateway) ListArtifacts(ctx context.Context, runID string) ([]*output.ArtifactMetadata, error) {
	keys, err := g.listKeys(ctx, g.buildKey(artifactsDir, runID)+"/")
	if err != nil {
		return nil, err
	}

	metadataList := []*output.ArtifactMetadata{}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+metadataFile) {
			continue
		}
		data, err := g.get(ctx, key)
		if err != nil {
			// Skip artifacts with download errors
			continue
		}
		var metadata output.ArtifactMetadata
		if err := json.Unmarshal(data, &metadata); err != nil {
			continue
		}
		metadataList = append(metadataList, &metadata)
	}

	sort.Slice(metadataList, func(i, j int) bool { return metadataList[i].ID < metadataList[j].ID })
	return metadataList, nil
}

// DeleteArtifacts removes every object under the run prefix
func (g *S3StorageGateway) DeleteArtifacts(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	keys, err := g.listKeys(ctx, g.buildKey(artifactsDir, runID)+"/")
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(g.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("delete %s from S3: %w", key, err)
		}
	}
	return nil
}

// listKeys pages through ListObjectsV2
func (g *S3StorageGateway) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucketName),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func (g *S3StorageGateway) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// buildKey builds an S3 key with the configured prefix
func (g *S3StorageGateway) buildKey(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
