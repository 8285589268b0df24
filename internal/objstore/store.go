// Package objstore wraps the MinIO client with the small object surface
// the sync engine needs: ensure-bucket, put, get, stat, and remove. The
// object store is the authoritative side of cross-device sync; bundles
// live under the object prefix and tombstones under the tombstone prefix,
// both keyed by sync id.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pxh52013145/VNote/internal/config"
)

// ErrNotConfigured is returned by New when the connection settings are
// incomplete. Callers treat this differently from a transport failure:
// scan degrades to hint-less results, push and pull fail the request.
var ErrNotConfigured = errors.New("object store not configured")

// Store is a connected object store client plus the resolved key
// prefixes. Methods are safe for concurrent use.
type Store struct {
	client *minio.Client
	cfg    config.MinioConfig
}

// New validates the connection settings and builds a client. Endpoint,
// access key, and secret key are required; everything else has usable
// defaults.
func New(cfg config.MinioConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, config.EnvMinioEndpoint)
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, config.EnvMinioAccessKey)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, config.EnvMinioSecretKey)
	}

	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.Secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("building object store client: %w", err)
	}

	return &Store{client: client, cfg: cfg}, nil
}

// Config returns the settings the store was built with.
func (s *Store) Config() config.MinioConfig { return s.cfg }

// BundleKey returns the object key holding the bundle for a sync id.
func (s *Store) BundleKey(syncID string) string {
	return s.cfg.ObjectPrefix + syncID + ".zip"
}

// TombstoneKey returns the object key marking a sync id as deleted.
func (s *Store) TombstoneKey(syncID string) string {
	return s.cfg.TombstonePrefix + syncID + ".json"
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	b := strings.TrimSpace(bucket)
	if b == "" {
		return errors.New("missing bucket")
	}

	exists, err := s.client.BucketExists(ctx, b)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", b, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", b, err)
	}

	return nil
}

// PutBytes uploads data under the given key, creating the bucket first.
// Metadata keys are stored as user metadata (x-amz-meta-*).
func (s *Store) PutBytes(ctx context.Context, bucket, objectKey string, data []byte, contentType string, metadata map[string]string) error {
	b := strings.TrimSpace(bucket)
	k := normalizeKey(objectKey)
	if b == "" {
		return errors.New("missing bucket")
	}
	if k == "" {
		return errors.New("missing object key")
	}

	if err := s.EnsureBucket(ctx, b); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, b, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", b, k, err)
	}

	return nil
}

// GetBytes downloads an object in full.
func (s *Store) GetBytes(ctx context.Context, bucket, objectKey string) ([]byte, error) {
	b := strings.TrimSpace(bucket)
	k := normalizeKey(objectKey)
	if b == "" {
		return nil, errors.New("missing bucket")
	}
	if k == "" {
		return nil, errors.New("missing object key")
	}

	obj, err := s.client.GetObject(ctx, b, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("downloading %s/%s: %w", b, k, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("downloading %s/%s: %w", b, k, err)
	}

	return data, nil
}

// ObjectStat describes an existing object. Metadata holds the user
// metadata as returned by the server; use MetaValue for tolerant lookup.
type ObjectStat struct {
	ETag         string
	ContentType  string
	Size         int64
	LastModified string
	Metadata     map[string]string
}

// Stat returns object info, or nil (no error) when the object, or the
// whole bucket, does not exist.
func (s *Store) Stat(ctx context.Context, bucket, objectKey string) (*ObjectStat, error) {
	b := strings.TrimSpace(bucket)
	k := normalizeKey(objectKey)
	if b == "" || k == "" {
		return nil, nil
	}

	info, err := s.client.StatObject(ctx, b, k, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s/%s: %w", b, k, err)
	}

	meta := map[string]string{}
	for key, val := range info.UserMetadata {
		meta[key] = val
	}

	stat := &ObjectStat{
		ETag:        info.ETag,
		ContentType: info.ContentType,
		Size:        info.Size,
		Metadata:    meta,
	}
	if !info.LastModified.IsZero() {
		stat.LastModified = info.LastModified.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	return stat, nil
}

// Remove deletes an object. Removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, bucket, objectKey string) error {
	b := strings.TrimSpace(bucket)
	k := normalizeKey(objectKey)
	if b == "" {
		return errors.New("missing bucket")
	}
	if k == "" {
		return errors.New("missing object key")
	}

	if err := s.client.RemoveObject(ctx, b, k, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing %s/%s: %w", b, k, err)
	}

	return nil
}

func normalizeKey(objectKey string) string {
	return strings.TrimLeft(strings.TrimSpace(objectKey), "/")
}

// isNotFound classifies S3 error responses that mean the object or the
// bucket is absent.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchBucket", "NotFound":
		return true
	}

	return resp.StatusCode == 404
}

// MetaValue looks up a user metadata value regardless of how the server
// spells the key: bare, canonicalized, or with the x-amz-meta- prefix.
// Returns "" when the key is absent or blank.
func MetaValue(metadata map[string]string, key string) string {
	want := strings.ToLower(strings.TrimSpace(key))
	if want == "" {
		return ""
	}

	for _, candidate := range []string{want, "x-amz-meta-" + want} {
		for k, v := range metadata {
			if strings.ToLower(strings.TrimSpace(k)) != candidate {
				continue
			}
			if val := strings.TrimSpace(v); val != "" {
				return val
			}
			return ""
		}
	}

	return ""
}
