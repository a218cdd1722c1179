package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig for the snapshot archive
type MinioConfig struct {
	Endpoint   string
	Region     string
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Prefix     string

	// Transport overrides the HTTP transport; nil uses the minio default.
	Transport http.RoundTripper
}

// SnapshotStore uploads every committed prediction document to a bucket.
// Keys are time-stamped so older uploads never overwrite newer ones.
type SnapshotStore struct {
	client     *minio.Client
	bucketName string
	prefix     string
	now        func() time.Time
}

// NewSnapshotStore connects to MinIO and makes sure the bucket exists.
func NewSnapshotStore(ctx context.Context, cfg MinioConfig) (*SnapshotStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, err
		}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "predictions"
	}
	return &SnapshotStore{client: cli, bucketName: cfg.BucketName, prefix: prefix, now: time.Now}, nil
}

// Snapshot implements predictions.Archive.
func (s *SnapshotStore) Snapshot(ctx context.Context, data []byte) error {
	key := snapshotKey(s.prefix, s.now())
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}

// Check pings the bucket.
func (s *SnapshotStore) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}

func snapshotKey(prefix string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("2006/01/02"), t.UTC().Format("20060102T150405.000000000Z")+".json")
}
