// Package filestore keeps uploaded documents and rendered reports on the
// local filesystem.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/store"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// SanitizeName reduces a client-supplied file name to a safe base name.
// Path separators and control characters are dropped; an empty result
// becomes "document".
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	if clean == "" {
		return "document"
	}
	return clean
}

// UploadStore implements store.UploadStore in a single directory. Files are
// named "<job id>_<sanitized name>".
type UploadStore struct {
	dir    string
	logger *slog.Logger
}

var _ store.UploadStore = (*UploadStore)(nil)

// NewUploadStore creates the directory if needed and returns the store.
func NewUploadStore(dir string, logger *slog.Logger) (*UploadStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{dir: dir, logger: logger.With("component", "upload_store")}, nil
}

// Save writes r to "<dir>/<id>_<name>". A partially written file is removed
// when the copy fails.
func (s *UploadStore) Save(ctx context.Context, id uuid.UUID, name string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s", id, SanitizeName(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return "", 0, store.NewStoreError("upload", "save", "failed to create file", err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", 0, store.NewStoreError("upload", "save", "failed to write file", err)
	}

	s.logger.DebugContext(ctx, "upload stored", "job_id", id, "path", path, "size", n)
	return path, n, nil
}

// Read returns the upload stored at path.
func (s *UploadStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: upload %s", store.ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, store.NewStoreError("upload", "read", "failed to read file", err)
	}
	return data, nil
}

// Remove deletes the upload at path.
func (s *UploadStore) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return store.NewStoreError("upload", "remove", "failed to remove file", err)
	}
	s.logger.DebugContext(ctx, "upload removed", "path", path)
	return nil
}

// ReportStore implements store.ReportStore in a results directory.
type ReportStore struct {
	dir    string
	logger *slog.Logger
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates the directory if needed and returns the store.
func NewReportStore(dir string, logger *slog.Logger) (*ReportStore, error) {
	if dir == "" {
		return nil, errors.New("results directory cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &ReportStore{dir: dir, logger: logger.With("component", "file_report_store")}, nil
}

// Put writes the report through a temporary file and renames it into place,
// so readers see either the old or the new content.
func (s *ReportStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.path(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return "", store.NewStoreError("report", "put", "failed to create temp file", err)
	}
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", store.NewStoreError("report", "put", "failed to write report", err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		s.logger.WarnContext(ctx, "failed to set report permissions", "error", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", store.NewStoreError("report", "put", "failed to move report into place", err)
	}

	return path, nil
}

// Get reads the report stored under key.
func (s *ReportStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrReportNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("report", "get", "failed to read report", err)
	}
	return data, nil
}

// path resolves key inside the results directory, refusing keys that would
// escape it.
func (s *ReportStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid report key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
