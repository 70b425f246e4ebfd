// Package report renders terminal job records into downloadable text reports
// and persists them through a store.ReportStore backend.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/store"
)

// Title heads every rendered report.
const Title = "Document Security Review Report"

// ErrReportNotFound is returned when no report was persisted for a job.
var ErrReportNotFound = store.ErrReportNotFound

// ErrNotTerminal is returned when a job without a final result is persisted.
var ErrNotTerminal = errors.New("job has no final result")

// PersistError describes a failed report write. Workers log it and keep the
// job's terminal state unchanged.
type PersistError struct {
	JobID uuid.UUID
	Key   string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist report %s for job %s: %v", e.Key, e.JobID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Materializer writes and reads job reports.
type Materializer struct {
	store  store.ReportStore
	logger *slog.Logger
}

// NewMaterializer creates a Materializer over the given backend.
func NewMaterializer(reports store.ReportStore, logger *slog.Logger) (*Materializer, error) {
	if reports == nil {
		return nil, errors.New("report store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: reports, logger: logger.With("component", "report_materializer")}, nil
}

// Key returns the storage key of the job's report.
func Key(id uuid.UUID) string {
	return fmt.Sprintf("%s_result.txt", id)
}

// DownloadName returns the file name offered to clients downloading the report.
func DownloadName(id uuid.UUID) string {
	return fmt.Sprintf("review_result_%s.txt", id)
}

// Persist renders the job's final result and writes it under Key(job.ID),
// replacing any earlier report. It returns the backend location.
func (m *Materializer) Persist(ctx context.Context, job *domain.Job) (string, error) {
	if job == nil || job.FinalResult == nil {
		return "", ErrNotTerminal
	}

	key := Key(job.ID)
	location, err := m.store.Put(ctx, key, []byte(Render(job)))
	if err != nil {
		return "", &PersistError{JobID: job.ID, Key: key, Err: err}
	}

	m.logger.DebugContext(ctx, "report persisted", "job_id", job.ID, "location", location)
	return location, nil
}

// Retrieve reads the persisted report of the job.
// Returns ErrReportNotFound if nothing was persisted.
func (m *Materializer) Retrieve(ctx context.Context, id uuid.UUID) ([]byte, error) {
	data, err := m.store.Get(ctx, Key(id))
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to retrieve report for job %s: %w", id, err)
	}
	return data, nil
}

// Render lays out the job's final result as a plain-text report.
func Render(job *domain.Job) string {
	res := job.FinalResult
	if res == nil {
		res = &domain.Result{}
	}

	name := res.SourceName
	if name == "" {
		name = job.Source.Name
	}
	size := res.SourceSize
	if size == 0 {
		size = job.Source.Size
	}
	model := res.ModelUsed
	if model == "" {
		model = "unknown"
	}

	var b strings.Builder
	banner := strings.Repeat("=", 60)
	b.WriteString(banner + "\n")
	b.WriteString(Title + "\n")
	b.WriteString(banner + "\n\n")
	fmt.Fprintf(&b, "Document: %s\n", name)
	fmt.Fprintf(&b, "Review time: %s\n", res.Timestamp)
	fmt.Fprintf(&b, "Model: %s\n", model)
	fmt.Fprintf(&b, "Document size: %d bytes\n", size)
	if res.Usage != nil {
		fmt.Fprintf(&b, "Tokens: %d input, %d output, %d total\n",
			res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens)
	}
	b.WriteString("\n" + strings.Repeat("-", 40) + "\n\n")

	if res.Succeeded() {
		b.WriteString(res.ReviewResult)
	} else {
		fmt.Fprintf(&b, "Review failed: %s", res.Error)
	}
	b.WriteString("\n")
	return b.String()
}
