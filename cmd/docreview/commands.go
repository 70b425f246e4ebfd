package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/platform/logger"
	"github.com/phrazzld/docreview-api/internal/platform/sqlstore"
	"github.com/phrazzld/docreview-api/internal/report"
	"github.com/phrazzld/docreview-api/internal/service"
	"github.com/phrazzld/docreview-api/internal/stream"
	"github.com/urfave/cli/v3"
)

// ErrMissingMigrationCommand is returned when migrate is run without a command.
var ErrMissingMigrationCommand = errors.New("missing migration command (up, down, status or version)")

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := int(cmd.Int("port")); port > 0 {
		cfg.Server.Port = port
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_backend", cfg.Storage.Backend)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	app.sweeper.Start(ctx)

	return app.startHTTPServer(ctx, app.setupRouter())
}

func reviewAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cliLogger(cfg.Server)

	path := cmd.String("file")
	data, err := readLimited(path, cfg.Jobs.MaxUploadBytes)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup(ctx)

	return app.runReview(ctx, service.SubmitRequest{
		FileName: filepath.Base(path),
		Data:     data,
		Mode:     cmd.String("mode"),
	}, cmd.String("out"), os.Stdout)
}

// runReview submits one job, copies its output to out as it arrives and
// prints a summary when the job ends. A non-empty reportPath receives the
// rendered report. Interrupting ctx cancels the job.
func (app *application) runReview(ctx context.Context, req service.SubmitRequest, reportPath string, out io.Writer) error {
	job, err := app.jobService.Submit(ctx, req)
	if err != nil {
		return err
	}
	app.logger.Info("review submitted", "job_id", job.ID, "mode", job.Mode)

	var final *domain.Job
	err = app.publisher.Stream(ctx, job.ID, func(ev stream.Event) error {
		switch ev.Type {
		case stream.EventContent:
			_, err := fmt.Fprint(out, ev.Data)
			return err
		case stream.EventStatus:
			final, _ = ev.Data.(*domain.Job)
		}
		return nil
	}, stream.FromOffset(0))

	if ctx.Err() != nil {
		if _, cancelErr := app.jobService.CancelJob(context.WithoutCancel(ctx), job.ID); cancelErr != nil {
			app.logger.Warn("failed to cancel review", "job_id", job.ID, "error", cancelErr)
		}
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to follow review: %w", err)
	}
	if final == nil {
		if final, err = app.jobService.GetJob(ctx, job.ID); err != nil {
			return err
		}
	}

	if reportPath != "" {
		if err := os.WriteFile(reportPath, []byte(report.Render(final)), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		app.logger.Info("report written", "path", reportPath)
	}

	printSummary(out, final)

	if final.Status == domain.JobStatusFailed {
		return fmt.Errorf("review failed: %s", final.Message)
	}
	return nil
}

func printSummary(out io.Writer, job *domain.Job) {
	fmt.Fprintf(out, "\n\n---\nstatus: %s\n", job.Status)
	if res := job.FinalResult; res != nil {
		fmt.Fprintf(out, "model: %s\n", res.ModelUsed)
		if res.Usage != nil {
			fmt.Fprintf(out, "tokens: %d in, %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
		}
		if res.ReportPath != "" {
			fmt.Fprintf(out, "report: %s\n", res.ReportPath)
		}
	}
}

// readLimited reads at most limit+1 bytes of the file so oversized documents
// are rejected by validation without being loaded whole.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	command := cmd.Args().First()
	if command == "" {
		return ErrMissingMigrationCommand
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cliLogger(cfg.Server)

	db, dialect, err := openDatabase(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return sqlstore.Migrate(ctx, db, dialect, command, log)
}

func modelsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cliLogger(cfg.Server)

	catalog, err := generation.LoadCatalog(cfg.LLM.ModelsFile, cfg.LLM.DefaultMode)
	if err != nil {
		return fmt.Errorf("failed to load model catalog: %w", err)
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	registry := newGeneratorRegistry(ctx, cfg.LLM, awsCfg, log)

	return printModes(os.Stdout, catalog, registry)
}

// printModes writes one row per catalog mode. Modes whose provider is not
// configured are listed as unavailable.
func printModes(out io.Writer, catalog *generation.Catalog, registry *generation.Registry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPROVIDER\tMODEL\tSTREAMING\tAVAILABLE")
	for _, m := range catalog.Modes() {
		key := m.Key
		if key == catalog.DefaultKey() {
			key += " (default)"
		}
		_, err := registry.Get(m.Provider)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", key, m.Provider, m.ModelID, m.Streaming, err == nil)
	}
	return tw.Flush()
}

// cliLogger logs human-readable records to stderr so stdout carries only
// command output.
func cliLogger(cfg config.ServerConfig) *slog.Logger {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(os.Stderr, level, "text")
	slog.SetDefault(log)
	return log
}
