// Package s3store keeps rendered reports in an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/phrazzld/docreview-api/internal/store"
)

// ErrNilClient is returned when no S3 client is supplied.
var ErrNilClient = errors.New("s3 client cannot be nil")

// ObjectAPI is the subset of the S3 client used by the store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ ObjectAPI = (*s3.Client)(nil)

// ReportStore implements store.ReportStore on S3 objects named
// "<prefix>/<key>".
type ReportStore struct {
	client ObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates a ReportStore for the bucket. The prefix may be empty.
func NewReportStore(client ObjectAPI, bucket, prefix string, logger *slog.Logger) (*ReportStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "s3_report_store", "bucket", bucket),
	}, nil
}

func (s *ReportStore) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads the report and returns its s3:// URI.
func (s *ReportStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upload report", "key", objectKey, "error", err)
		return "", store.NewStoreError("report", "put", "failed to upload report", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}

// Get downloads the report stored under key.
func (s *ReportStore) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrReportNotFound
		}
		s.logger.ErrorContext(ctx, "failed to download report", "key", objectKey, "error", err)
		return nil, store.NewStoreError("report", "get", "failed to download report", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, store.NewStoreError("report", "get", "failed to read report body", err)
	}
	return data, nil
}

// isNotFound recognizes both the typed NoSuchKey error and the bare 404
// code S3 returns when the caller lacks ListBucket permission.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
