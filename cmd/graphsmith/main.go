// Package main provides the graphsmith command line tool for working with
// workflow graphs offline.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "graphsmith",
		Usage:                 "Extract, validate, normalize and instantiate workflow graphs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			setupLogging(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Aliases:   []string{"x"},
				Usage:     "Recover a graph from raw model output",
				ArgsUsage: "[file|-]",
				Action:    runExtract,
			},
			{
				Name:      "validate",
				Usage:     "Validate and repair a graph document",
				ArgsUsage: "[file|-]",
				Action:    runValidate,
			},
			{
				Name:      "normalize",
				Usage:     "Rewrite schedule triggers into canonical cron rules",
				ArgsUsage: "[file|-]",
				Action:    runNormalize,
			},
			{
				Name:   "instantiate",
				Usage:  "Resolve a template into a deployable graph",
				Flags:  instantiateFlags(),
				Action: runInstantiate,
			},
		},
	}
}
