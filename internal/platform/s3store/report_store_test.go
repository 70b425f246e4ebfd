package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	PutObjectFn func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	GetObjectFn func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

func (f *fakeObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return f.PutObjectFn(ctx, params)
}

func (f *fakeObjects) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.GetObjectFn(ctx, params)
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewReportStore(t *testing.T) {
	_, err := NewReportStore(nil, "bucket", "", testLogger)
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = NewReportStore(&fakeObjects{}, "", "", testLogger)
	assert.Error(t, err)
}

func TestPut(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	fake := &fakeObjects{
		PutObjectFn: func(_ context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			got = params
			body, _ = io.ReadAll(params.Body)
			return &s3.PutObjectOutput{}, nil
		},
	}
	s, err := NewReportStore(fake, "reviews", "results", testLogger)
	require.NoError(t, err)

	location, err := s.Put(context.Background(), "abc_result.txt", []byte("report"))

	require.NoError(t, err)
	assert.Equal(t, "s3://reviews/results/abc_result.txt", location)
	assert.Equal(t, "reviews", aws.ToString(got.Bucket))
	assert.Equal(t, "results/abc_result.txt", aws.ToString(got.Key))
	assert.Equal(t, int64(6), aws.ToInt64(got.ContentLength))
	assert.Equal(t, "report", string(body))
}

func TestPutError(t *testing.T) {
	fake := &fakeObjects{
		PutObjectFn: func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	s, err := NewReportStore(fake, "reviews", "", testLogger)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "k", []byte("x"))

	var storeErr *store.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "put", storeErr.Operation)
}

func TestGet(t *testing.T) {
	fake := &fakeObjects{
		GetObjectFn: func(_ context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "abc_result.txt", aws.ToString(params.Key))
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("stored")))}, nil
		},
	}
	s, err := NewReportStore(fake, "reviews", "", testLogger)
	require.NoError(t, err)

	data, err := s.Get(context.Background(), "abc_result.txt")

	require.NoError(t, err)
	assert.Equal(t, "stored", string(data))
}

func TestGetNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed no such key", &types.NoSuchKey{}},
		{"generic not found", &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeObjects{
				GetObjectFn: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
					return nil, tt.err
				},
			}
			s, err := NewReportStore(fake, "reviews", "", testLogger)
			require.NoError(t, err)

			_, err = s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, store.ErrReportNotFound)
		})
	}
}

func TestGetOtherError(t *testing.T) {
	fake := &fakeObjects{
		GetObjectFn: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}
	s, err := NewReportStore(fake, "reviews", "", testLogger)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "k")

	assert.Error(t, err)
	assert.False(t, store.IsNotFoundError(err))
}
