package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/events"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/platform/filestore"
	"github.com/phrazzld/docreview-api/internal/report"
	"github.com/phrazzld/docreview-api/internal/service"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/phrazzld/docreview-api/internal/stream"
	"github.com/phrazzld/docreview-api/internal/task"
	"github.com/urfave/cli/v3"
)

// application holds the wired dependencies of the service.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is set for the SQL report backends
	db *sql.DB

	catalog  *generation.Catalog
	registry *generation.Registry

	jobs         *store.MemoryJobStore
	uploads      *filestore.UploadStore
	materializer *report.Materializer

	taskRunner   *task.TaskRunner
	eventEmitter *events.InMemoryEventEmitter
	jobService   service.JobService
	publisher    *stream.Publisher
	sweeper      *store.RetentionSweeper
}

// loadConfig reads the .env file named by the root --env flag, then the
// configuration.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(cmd.String("env")); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApplication wires every component from the configuration. The caller
// must call cleanup when done.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: log}

	catalog, err := generation.LoadCatalog(cfg.LLM.ModelsFile, cfg.LLM.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	catalog.InheritParameters(cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	app.catalog = catalog

	prompts, err := generation.LoadPrompts(cfg.LLM.PromptFile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	app.registry = newGeneratorRegistry(ctx, cfg.LLM, awsCfg, log)

	uploads, err := filestore.NewUploadStore(cfg.Storage.UploadDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload store: %w", err)
	}
	app.uploads = uploads

	reports, db, err := newReportStore(ctx, cfg.Storage, awsCfg, log)
	if err != nil {
		return nil, err
	}
	app.db = db

	app.materializer, err = report.NewMaterializer(reports, log)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create report materializer: %w", err)
	}

	app.jobs = store.NewMemoryJobStore(log, store.WithMaxJobs(cfg.Jobs.MaxJobs))

	app.taskRunner = task.NewTaskRunner(task.TaskRunnerConfig{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Timeout:       cfg.Jobs.Timeout,
	}, log)

	factory := task.NewReviewTaskFactory(
		app.jobs,
		uploads,
		catalog,
		app.registry,
		prompts,
		app.materializer,
		tokenCounter(log),
		log,
	)

	app.eventEmitter = events.NewInMemoryEventEmitter(log)
	app.eventEmitter.RegisterHandler(
		task.NewTaskFactoryEventHandler(task.TaskTypeDocumentReview, factory, app.taskRunner, log),
	)

	app.jobService, err = service.NewJobService(service.JobServiceDeps{
		Jobs:           app.jobs,
		Uploads:        uploads,
		Catalog:        catalog,
		Generators:     app.registry,
		Emitter:        app.eventEmitter,
		Canceller:      app.taskRunner,
		Reports:        app.materializer,
		MaxUploadBytes: cfg.Jobs.MaxUploadBytes,
		Logger:         log,
	})
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app.publisher = stream.NewPublisher(app.jobs, cfg.Jobs.StreamPollInterval, log)

	app.sweeper = store.NewRetentionSweeper(app.jobs, store.RetentionConfig{
		MaxAge:   cfg.Jobs.Retention,
		Interval: cfg.Jobs.SweepInterval,
	}, log, service.UploadCleanup(uploads, log))

	if len(app.registry.Names()) == 0 {
		log.Warn("no model provider is configured, every submission will be rejected")
	}
	log.Info("application initialized",
		"providers", app.registry.Names(),
		"default_mode", catalog.DefaultKey(),
		"storage_backend", cfg.Storage.Backend)

	return app, nil
}

// tokenCounter builds the counter used to fill in missing usage figures.
var tokenCounter = newTokenCounter

// newTokenCounter returns a tiktoken counter, or the character estimate when
// the encoding cannot be loaded.
func newTokenCounter(log *slog.Logger) generation.TokenCounter {
	counter, err := generation.NewTikTokenCounter("")
	if err != nil {
		log.Warn("token encoding unavailable, estimating token counts", "error", err)
		return generation.EstimateTokens
	}
	return counter
}

// cleanup stops background work and releases resources. Running tasks get a
// short grace period after ctx ends.
func (app *application) cleanup(ctx context.Context) {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}

	if app.taskRunner != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := app.taskRunner.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Warn("task runner did not stop cleanly", "error", err)
		}
	}

	if app.db != nil {
		app.logger.Info("closing database connection")
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
}
