package store

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// UploadStore keeps submitted source artifacts until their job is evicted.
type UploadStore interface {
	// Save stores the artifact read from r under a name derived from the job
	// ID and the client file name, and returns its location and size.
	Save(ctx context.Context, id uuid.UUID, name string, r io.Reader) (path string, size int64, err error)

	// Read returns the artifact stored at path.
	// Returns ErrNotFound if it does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Remove deletes the artifact at path. Removing a missing artifact is not an error.
	Remove(ctx context.Context, path string) error
}
