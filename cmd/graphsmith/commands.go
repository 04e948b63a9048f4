package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/graphsmith/pkg/cmd"
	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/log"
	"github.com/dukex/graphsmith/pkg/services"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var errInvalidParam = errors.New("parameter must be key=value")

func setupLogging(level, format string) {
	log.Setup(level, format)
}

func logger() *slog.Logger {
	return log.WithModule("cli")
}

func instantiateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "template",
			Aliases:  []string{"t"},
			Usage:    "Template file (- for stdin)",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "param",
			Aliases: []string{"p"},
			Usage:   "User parameter as key=value, repeatable",
		},
		&cli.StringFlag{
			Name:  "email",
			Usage: "User email address",
		},
		&cli.IntFlag{
			Name:  "interval",
			Usage: "Schedule interval in hours",
		},
		&cli.StringFlag{
			Name:  "user",
			Usage: "User id recorded on the instance",
		},
		&cli.StringFlag{
			Name:  "deployment-key",
			Usage: "Key that makes credential creation idempotent across retries",
		},
		&cli.StringFlag{
			Name:  "mailbox-host",
			Usage: "IMAP host of the user mailbox",
		},
		&cli.StringFlag{
			Name:    "mailbox-password",
			Usage:   "Password of the user mailbox",
			Sources: cli.EnvVars("MAILBOX_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "secrets-file",
			Usage:   "YAML file with operator service keys",
			Sources: cli.EnvVars("OPERATOR_SECRETS_FILE"),
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
			Name:    "email-policy",
			Usage:   "How template email addresses are replaced (single, all, off)",
			Value:   "single",
			Sources: cli.EnvVars("EMAIL_POLICY"),
		},
	}
}

func runExtract(ctx context.Context, command *cli.Command) error {
	input, err := readInput(command, command.Args().First())
	if err != nil {
		return err
	}

	synthesis, err := newSynthesis()
	if err != nil {
		return err
	}

	result, err := synthesis.FromModelOutput(ctx, string(input))
	if err != nil {
		return err
	}

	return writeGraph(command, result)
}

func runValidate(ctx context.Context, command *cli.Command) error {
	input, err := readDocument(command, command.Args().First())
	if err != nil {
		return err
	}

	synthesis, err := newSynthesis()
	if err != nil {
		return err
	}

	result, err := synthesis.Validate(ctx, input)
	if err != nil {
		return err
	}

	return writeGraph(command, result)
}

func runNormalize(ctx context.Context, command *cli.Command) error {
	input, err := readDocument(command, command.Args().First())
	if err != nil {
		return err
	}

	synthesis, err := newSynthesis()
	if err != nil {
		return err
	}

	result, err := synthesis.Normalize(ctx, input)
	if err != nil {
		return err
	}

	return writeGraph(command, result)
}

func runInstantiate(ctx context.Context, command *cli.Command) error {
	body, err := readDocument(command, command.String("template"))
	if err != nil {
		return err
	}

	req, err := instantiateRequest(command)
	if err != nil {
		return err
	}

	keys, err := cmd.NewSecretsStore(command.String("secrets-file"), logger())
	if err != nil {
		return err
	}

	opts, err := cmd.InjectorOptions{
		Keys:        keys,
		Store:       cmd.NewCredentialStore(command.String("engine-url"), command.String("engine-api-key"), logger()),
		EmailPolicy: command.String("email-policy"),
	}.Build()
	if err != nil {
		return err
	}

	pipeline, err := cmd.NewPipeline(logger(), opts...)
	if err != nil {
		return err
	}

	deployment := services.NewDeployment(logger(), nil, nil, pipeline.Injector, pipeline.Normalizer, nil)

	result, err := deployment.InstantiateBody(ctx, body, req)
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		logger().WarnContext(ctx, "Instance warning", "detail", warning)
	}

	return writeJSON(command, result.Graph)
}

func instantiateRequest(command *cli.Command) (injector.Request, error) {
	req := injector.Request{
		UserID:        command.String("user"),
		UserEmail:     command.String("email"),
		DeploymentKey: command.String("deployment-key"),
		Parameters:    map[string]string{},
	}

	for _, param := range command.StringSlice("param") {
		key, value, found := strings.Cut(param, "=")
		if !found || strings.TrimSpace(key) == "" {
			return req, fmt.Errorf("%w: %q", errInvalidParam, param)
		}

		req.Parameters[strings.TrimSpace(key)] = value
	}

	if command.IsSet("interval") {
		interval := command.Int("interval")
		req.Interval = &interval
	}

	if host := command.String("mailbox-host"); host != "" {
		req.Mailbox = &injector.MailboxSettings{
			Email:    req.UserEmail,
			Password: command.String("mailbox-password"),
			Host:     host,
		}
	}

	return req, nil
}

func newSynthesis() (*services.Synthesis, error) {
	pipeline, err := cmd.NewPipeline(logger())
	if err != nil {
		return nil, err
	}

	return services.NewSynthesis(logger(), nil, pipeline.Extractor, pipeline.Validator, pipeline.Normalizer, nil), nil
}

// readInput reads path, or the command's reader when path is empty or "-".
func readInput(command *cli.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(command.Root().Reader)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// readDocument reads a graph document. Files ending in .yaml or .yml are
// converted to JSON.
func readDocument(command *cli.Command, path string) ([]byte, error) {
	data, err := readInput(command, path)
	if err != nil || !isYAML(path) {
		return data, err
	}

	var document map[string]any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}

	return json.Marshal(document)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	return ext == ".yaml" || ext == ".yml"
}

func writeGraph(command *cli.Command, result *services.GraphResult) error {
	for _, warning := range result.Warnings() {
		logger().Warn("Graph warning", "detail", warning)
	}

	return writeJSON(command, result.Graph)
}

func writeJSON(command *cli.Command, value any) error {
	encoder := json.NewEncoder(command.Root().Writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
