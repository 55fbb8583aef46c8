package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(body)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[bucket+"/"+key] = body
	f.types[bucket+"/"+key] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestEnsureBucket(t *testing.T) {
	objects := newFakeObjects()
	s := newStore(objects, "lead-decisions")
	for i := 0; i < 2; i++ {
		if err := s.EnsureBucket(context.Background()); err != nil {
			t.Fatalf("EnsureBucket: %v", err)
		}
	}
	if !objects.buckets["lead-decisions"] {
		t.Fatal("bucket not created")
	}
}

func TestArchiveWritesJSONUnderLeadPrefix(t *testing.T) {
	objects := newFakeObjects()
	s := newStore(objects, "archive")
	s.now = func() time.Time { return time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC) }
	leadID := uuid.MustParse("6f1c2d8e-0b7a-4c3e-9a51-2f7d8e9b1c40")

	if err := s.ArchiveScore(context.Background(), leadID, map[string]any{"score": 72.5}); err != nil {
		t.Fatalf("ArchiveScore: %v", err)
	}
	if err := s.ArchiveDecision(context.Background(), leadID, map[string]string{"team": "sales"}); err != nil {
		t.Fatalf("ArchiveDecision: %v", err)
	}

	scoreKey := "archive/leads/6f1c2d8e-0b7a-4c3e-9a51-2f7d8e9b1c40/score-20250310T093000.000000000Z.json"
	body, ok := objects.objects[scoreKey]
	if !ok {
		t.Fatalf("score object missing; have %v", keys(objects.objects))
	}
	var got map[string]float64
	if err := json.Unmarshal(body, &got); err != nil || got["score"] != 72.5 {
		t.Fatalf("score body = %s (%v)", body, err)
	}
	if objects.types[scoreKey] != contentTypeJSON {
		t.Errorf("content type = %q", objects.types[scoreKey])
	}

	found := false
	for k := range objects.objects {
		if strings.Contains(k, "/decision-") {
			found = true
		}
	}
	if !found {
		t.Fatal("decision object missing")
	}
}

func TestArchiveErrors(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("unreachable")
	s := newStore(objects, "archive")
	if err := s.ArchiveScore(context.Background(), uuid.New(), 1); err == nil {
		t.Fatal("expected upload error")
	}
	if err := s.ArchiveScore(context.Background(), uuid.New(), func() {}); err == nil {
		t.Fatal("expected encode error")
	}

	var nilStore *Store
	if err := nilStore.ArchiveDecision(context.Background(), uuid.New(), "x"); err != nil {
		t.Fatalf("nil store: %v", err)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
