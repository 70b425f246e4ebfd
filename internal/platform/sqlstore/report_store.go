package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/docreview-api/internal/store"
)

// ReportStore implements store.ReportStore on a SQL table.
type ReportStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time

	deleteQuery string
	insertQuery string
	selectQuery string
}

var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates a ReportStore. The reports table must exist (see Migrate).
func NewReportStore(db *sql.DB, dialect Dialect, logger *slog.Logger) (*ReportStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := dialect.placeholder
	return &ReportStore{
		db:          db,
		dialect:     dialect,
		logger:      logger.With("component", "sql_report_store"),
		now:         func() time.Time { return time.Now().UTC() },
		deleteQuery: fmt.Sprintf("DELETE FROM reports WHERE report_key = %s", p(1)),
		insertQuery: fmt.Sprintf("INSERT INTO reports (report_key, body, created_at) VALUES (%s, %s, %s)", p(1), p(2), p(3)),
		selectQuery: fmt.Sprintf("SELECT body FROM reports WHERE report_key = %s", p(1)),
	}, nil
}

// Put replaces the report stored under key. Delete and insert run in one
// transaction so readers never see a missing report during an overwrite.
func (s *ReportStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.deleteQuery, key); err != nil {
			return MapError(err)
		}
		if _, err := tx.ExecContext(ctx, s.insertQuery, key, string(data), s.now()); err != nil {
			return MapError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store report", "key", key, "error", err)
		return "", store.NewStoreError("report", "put", "failed to store report", err)
	}

	return fmt.Sprintf("%s://reports/%s", s.dialect, key), nil
}

// Get reads the report stored under key.
func (s *ReportStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body string
	if err := s.db.QueryRowContext(ctx, s.selectQuery, key).Scan(&body); err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrReportNotFound) {
			return nil, mapped
		}
		s.logger.ErrorContext(ctx, "failed to read report", "key", key, "error", err)
		return nil, store.NewStoreError("report", "get", "failed to read report", mapped)
	}
	return []byte(body), nil
}

// inTx runs fn in a transaction, committing when it returns nil. The
// transaction is rolled back on error and on panic; a panic is re-raised.
func (s *ReportStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.ErrorContext(ctx, "rollback after panic failed", "error", rbErr, "panic", p)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
