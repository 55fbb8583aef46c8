// Package archive stores qualification and routing snapshots as JSON
// objects in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentTypeJSON = "application/json"

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store writes lead snapshots to a single bucket.
type Store struct {
	objects objectStore
	bucket  string
	now     func() time.Time
}

// New connects to MinIO. It returns nil, nil when archiving is not configured.
func New(cfg config.ArchiveConfig) (*Store, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "failed to create MinIO client", err)
	}
	return newStore(client, cfg.GetMinioBucketDecisions()), nil
}

func newStore(objects objectStore, bucket string) *Store {
	return &Store{
		objects: objects,
		bucket:  bucket,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureBucket creates the archive bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.objects.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.objects.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ArchiveScore stores a qualification result under leads/<id>/score-<ts>.json.
func (s *Store) ArchiveScore(ctx context.Context, leadID uuid.UUID, snapshot any) error {
	if s == nil {
		return nil
	}
	return s.put(ctx, objectKey(leadID, "score", s.now()), snapshot)
}

// ArchiveDecision stores a routing decision under leads/<id>/decision-<ts>.json.
func (s *Store) ArchiveDecision(ctx context.Context, leadID uuid.UUID, decision any) error {
	if s == nil {
		return nil
	}
	return s.put(ctx, objectKey(leadID, "decision", s.now()), decision)
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	_, err = s.objects.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentTypeJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func objectKey(leadID uuid.UUID, kind string, at time.Time) string {
	return fmt.Sprintf("leads/%s/%s-%s.json", leadID, kind, at.UTC().Format("20060102T150405.000000000Z"))
}
