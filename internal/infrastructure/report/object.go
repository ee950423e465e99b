package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/retry"
)

// ErrUpload wraps failures to store a report in object storage.
var ErrUpload = shared.NewDomainError("report", "Upload", shared.ErrExternalService, "report upload failed")

// DigestMetadataKey is the user metadata entry holding the report digest.
const DigestMetadataKey = "Report-Digest"

// ObjectConfig configures the object storage sink.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// Prefix is prepended to object names, e.g. "reports/2024".
	Prefix string
}

// objectStore is the part of *minio.Client the sink uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectSink uploads reports to an S3 compatible store.
type ObjectSink struct {
	client  objectStore
	cfg     ObjectConfig
	retrier *retry.Retrier
}

// NewMinioClient connects to the store described by cfg.
func NewMinioClient(cfg ObjectConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// NewObjectSink creates the sink over an existing client.
func NewObjectSink(client objectStore, cfg ObjectConfig) *ObjectSink {
	return &ObjectSink{client: client, cfg: cfg, retrier: retry.ObjectStorageRetrier()}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return ErrUpload.Withf("check bucket %s: %v", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return ErrUpload.Withf("create bucket %s: %v", s.cfg.Bucket, err)
	}
	logger.FromContext(ctx).Info("bucket created", "bucket", s.cfg.Bucket)
	return nil
}

// ObjectName returns the key a run's report is stored under.
func (s *ObjectSink) ObjectName(r *grading.Report) string {
	name := fmt.Sprintf("%s/%s.json", r.StartedAt.UTC().Format(time.DateOnly), r.RunID)
	return path.Join(s.cfg.Prefix, name)
}

// Deliver uploads the report with its digest in the object metadata.
func (s *ObjectSink) Deliver(ctx context.Context, r *grading.Report) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	digest := Digest(data)
	name := s.ObjectName(r)

	info, err := retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (minio.UploadInfo, error) {
		info, err := s.client.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  "application/json",
			UserMetadata: map[string]string{DigestMetadataKey: digest},
		})
		if err != nil && ctx.Err() == nil {
			return info, retry.Retryable(err)
		}
		return info, err
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.cfg.Bucket, name, ErrUpload.Wrap(err))
	}

	logger.FromContext(ctx).Info("report uploaded",
		logger.RunID(r.RunID),
		"bucket", info.Bucket,
		"object", info.Key,
		"size", info.Size,
		"digest", digest,
	)
	return nil
}
