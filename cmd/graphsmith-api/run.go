package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/graphsmith/pkg/cmd"
	"github.com/dukex/graphsmith/pkg/log"
	"github.com/dukex/graphsmith/pkg/otelhelper"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func apiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Template store URL (file://dir or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "credential-ledger",
			Usage:   "Credential ledger URL (memory:// or redis://...)",
			Value:   "memory://",
			Sources: cli.EnvVars("CREDENTIAL_LEDGER_URL"),
		},
		&cli.DurationFlag{
			Name:    "credential-ledger-ttl",
			Usage:   "How long a deployment key keeps its credentials (0 keeps them forever)",
			Value:   7 * 24 * time.Hour,
			Sources: cli.EnvVars("CREDENTIAL_LEDGER_TTL"),
		},
		&cli.StringFlag{
			Name:    "engine-url",
			Usage:   "Base URL of the workflow engine credential API",
			Sources: cli.EnvVars("ENGINE_URL"),
		},
		&cli.StringFlag{
			Name:    "engine-api-key",
			Usage:   "API key for the workflow engine",
			Sources: cli.EnvVars("ENGINE_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "secrets-file",
			Usage:   "YAML file with operator service keys",
			Sources: cli.EnvVars("OPERATOR_SECRETS_FILE"),
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "Bearer token required by the admin endpoints",
			Sources: cli.EnvVars("ADMIN_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "email-policy",
			Usage:   "How template email addresses are replaced (single, all, off)",
			Value:   "single",
			Sources: cli.EnvVars("EMAIL_POLICY"),
		},
		&cli.StringSliceFlag{
			Name:    "optional-credentials",
			Usage:   "Per-user credential kinds whose creation may fail",
			Value:   []string{"smtp"},
			Sources: cli.EnvVars("OPTIONAL_CREDENTIALS"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log output format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func runAPI(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Graphsmith API")

	var tracer trace.Tracer

	if command.Bool("otel") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "graphsmith-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	ledger, closeLedger, err := cmd.NewLedger(ctx, command.String("credential-ledger"), command.Duration("credential-ledger-ttl"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLedger(); err != nil {
			logger.ErrorContext(ctx, "Failed to close credential ledger", "error", err)
		}
	}()

	keys, err := cmd.NewSecretsStore(command.String("secrets-file"), logger)
	if err != nil {
		return err
	}

	opts, err := cmd.InjectorOptions{
		Keys:        keys,
		Store:       cmd.NewCredentialStore(command.String("engine-url"), command.String("engine-api-key"), logger),
		Ledger:      ledger,
		EmailPolicy: command.String("email-policy"),

		OptionalCredentials: command.StringSlice("optional-credentials"),
	}.Build()
	if err != nil {
		return err
	}

	pipeline, err := cmd.NewPipeline(logger, opts...)
	if err != nil {
		return err
	}

	if command.String("admin-token") == "" {
		logger.WarnContext(ctx, "No admin token configured, admin endpoints are open")
	}

	api := NewAPI(logger, persistence, eventBus, pipeline, keys, tracer, command.String("admin-token"))

	if err := api.Start(command.Int("port")); err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	return nil
}
