package blobstore

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const testBucket = "annotations"

// presignedObjectURL checks a path-style presigned GET for name.
func presignedObjectURL(t *testing.T, name, raw string) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse presigned url: %v", err)
	}
	if u.Path != "/"+testBucket+"/"+name {
		t.Fatalf("unexpected presigned path %q", u.Path)
	}
	q := u.Query()
	if q.Get("X-Amz-Signature") == "" || q.Get("X-Amz-Expires") != "60" {
		t.Fatalf("expected signed one minute url, got %q", raw)
	}
}

func isolateAWSConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_PROFILE", "")
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	isolateAWSConfig(t)
	fake, srv := newFakeS3(t)
	store, err := NewS3Store(context.Background(), S3Options{
		Bucket:          testBucket,
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	return store, fake
}

func newFakeMinioStore(t *testing.T) (*MinioStore, *fakeS3) {
	t.Helper()
	fake, srv := newFakeS3(t)
	store, err := NewMinioStore(context.Background(), MinioOptions{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		Bucket:          testBucket,
		Region:          "us-east-1",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new minio store: %v", err)
	}
	return store, fake
}

func TestS3Store(t *testing.T) {
	store, fake := newFakeS3Store(t)
	if !fake.hasBucket(testBucket) {
		t.Fatal("expected missing bucket to be created")
	}

	exerciseStore(t, store, presignedObjectURL)

	// Three objects with two per page need a continuation request.
	if n := fake.listCount(); n < 3 {
		t.Fatalf("expected paginated listing, got %d list requests", n)
	}
}

func TestMinioStore(t *testing.T) {
	store, fake := newFakeMinioStore(t)
	if !fake.hasBucket(testBucket) {
		t.Fatal("expected missing bucket to be created")
	}

	exerciseStore(t, store, presignedObjectURL)

	if n := fake.listCount(); n < 3 {
		t.Fatalf("expected paginated listing, got %d list requests", n)
	}
}

func TestCloudStoresKeepAccessErrorsDistinctFromNotFound(t *testing.T) {
	s3Store, s3Fake := newFakeS3Store(t)
	minioStore, minioFake := newFakeMinioStore(t)
	s3Fake.setDenyObjects(true)
	minioFake.setDenyObjects(true)

	ctx := context.Background()
	for name, store := range map[string]Store{"s3": s3Store, "minio": minioStore} {
		if _, err := store.Get(ctx, "cat.json"); err == nil || errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected access error, got %v", name, err)
		}
		if ok, err := store.Exists(ctx, "cat.png"); err == nil || ok {
			t.Fatalf("%s: expected exists to fail, got ok=%v err=%v", name, ok, err)
		}
	}
}
