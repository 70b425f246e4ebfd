// Package main implements the docreview binary. The serve command runs the
// HTTP API that accepts documents for asynchronous model review and streams
// progress to clients; review runs one job from the command line; migrate
// manages the report schema of the SQL storage backends; models lists the
// configured review modes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newCommand builds the command tree.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "docreview",
		Usage: "Asynchronous document review with generative models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: ".env file loaded before the configuration",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "port", Usage: "listen port (overrides the configuration)"}},
				Action: serveAction,
			},
			{
				Name:  "review",
				Usage: "Review one document and print the model output as it arrives",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "document to review", Required: true},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "review mode key (default mode when empty)"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the rendered report to this path"},
				},
				Action: reviewAction,
			},
			{
				Name:      "migrate",
				Usage:     "Manage the report schema of the postgres and sqlite backends",
				ArgsUsage: "up|down|status|version",
				Action:    migrateAction,
			},
			{
				Name:   "models",
				Usage:  "List the review modes and whether their provider is configured",
				Action: modelsAction,
			},
		},
	}
}
