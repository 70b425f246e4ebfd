package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/platform/filestore"
	"github.com/phrazzld/docreview-api/internal/platform/s3store"
	"github.com/phrazzld/docreview-api/internal/platform/sqlstore"
	"github.com/phrazzld/docreview-api/internal/store"
)

// Storage backends.
const (
	backendLocal    = "local"
	backendS3       = "s3"
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

// newReportStore opens the report store selected by storage.backend. The
// returned *sql.DB is non-nil for the SQL backends and is owned by the caller.
func newReportStore(ctx context.Context, cfg config.StorageConfig, awsCfg aws.Config, log *slog.Logger) (store.ReportStore, *sql.DB, error) {
	switch cfg.Backend {
	case backendLocal:
		reports, err := filestore.NewReportStore(cfg.ResultsDir, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
		return reports, nil, nil

	case backendS3:
		reports, err := s3store.NewReportStore(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create s3 report store: %w", err)
		}
		return reports, nil, nil

	case backendPostgres, backendSQLite:
		db, dialect, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		reports, err := sqlstore.NewReportStore(db, dialect, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to create sql report store: %w", err)
		}
		return reports, db, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// openDatabase connects to the database of a SQL backend.
func openDatabase(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Backend)
	if err != nil {
		return nil, "", fmt.Errorf("storage backend %q has no database: %w", cfg.Backend, err)
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL, log)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	return db, dialect, nil
}
