// Package main is the entrypoint for the mailer.
//
// In AWS the binary runs as a Lambda function on an EventBridge schedule; each
// invocation performs one pass over the eligible rows. With APP_ENV=local it
// performs a single pass directly and exits with the pass's exit code
// (0 when nothing failed, 1 otherwise), which makes it usable from cron.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/pipeline package (Runner.Run).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"notionmail/internal/config"
	"notionmail/internal/external"
	"notionmail/internal/pipeline"
	"notionmail/internal/recipient"
	"notionmail/internal/render"
	"notionmail/internal/rowstore"
)

// passRunner is the part of pipeline.Runner the handler needs.
type passRunner interface {
	Run(ctx context.Context, input pipeline.RunInput) (pipeline.RunSummary, error)
}

// RunResult is the Lambda response payload.
type RunResult struct {
	RunID     string `json:"run_id"`
	DryRun    bool   `json:"dry_run"`
	Eligible  int    `json:"eligible"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Previewed int    `json:"previewed,omitempty"`
	ExitCode  int    `json:"exit_code"`
}

func resultOf(s pipeline.RunSummary) RunResult {
	return RunResult{
		RunID:     s.RunID,
		DryRun:    s.DryRun,
		Eligible:  s.Eligible,
		Sent:      s.Sent,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Previewed: s.Previewed,
		ExitCode:  s.ExitCode(),
	}
}

func main() {
	// Initialize structured logger at startup (Cold Start). The level is
	// adjusted once configuration is loaded.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("Mailer initializing (cold start)")

	// SSM is only consulted outside APP_ENV=local, for variables that have a
	// _SSM_PARAM companion.
	cfg, err := config.LoadConfig(config.NewSSMProviderWithEndpoint(
		os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"),
	))
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))
	logger = logger.With("env", cfg.Environment, "version", cfg.Build.Version)
	slog.SetDefault(logger)

	ctx := context.Background()

	runner, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize mailer", "error", err)
		os.Exit(1)
	}

	defaults := pipeline.RunInput{DryRun: cfg.Run.DryRun, Limit: cfg.Run.MaxRows}

	logger.Info("Mailer initialized",
		"database_id", cfg.Notion.DatabaseID,
		"send_delay", cfg.Run.SendDelay.String(),
		"max_rows", cfg.Run.MaxRows,
		"dry_run", cfg.Run.DryRun,
		"metrics_enabled", cfg.Observability.MetricsEnabled,
		"build", cfg.Build.String(),
	)

	// Local mode: one pass, then exit with its code.
	// Usage: go run ./cmd/mailer [-dry-run] [-limit N]
	if cfg.Environment == "local" {
		os.Exit(runLocal(ctx, runner, defaults, os.Args[1:], logger))
	}

	lambda.Start(newHandler(runner, defaults, logger))
}

// buildRunner wires the clients and services of one pass.
func buildRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Runner, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	notion := external.NewNotionClient(httpClient, external.NotionClientConfig{
		Token:   cfg.Notion.Token,
		BaseURL: cfg.Notion.BaseURL,
		Logger:  logger,
	})

	tokens := external.NewTokenManager(httpClient, external.TokenManagerConfig{
		ClientID:     cfg.Microsoft.ClientID,
		RefreshToken: cfg.Microsoft.RefreshToken,
		Tenant:       cfg.Microsoft.Tenant,
		TokenURL:     cfg.Microsoft.TokenURL,
		ExpiryMargin: cfg.Microsoft.ExpiryMargin,
		Logger:       logger,
	})

	mailer := external.NewGraphMailer(httpClient, external.GraphMailerConfig{
		Tokens:  tokens,
		BaseURL: cfg.Microsoft.GraphBaseURL,
		Logger:  logger,
	})

	validator := recipient.NewValidator(recipient.Config{
		Resolver: net.DefaultResolver,
		Logger:   logger,
	})

	renderer := render.NewRenderer(render.Config{
		Source: notion,
		Logger: logger,
	})

	store := rowstore.New(rowstore.Config{
		Client:     notion,
		DatabaseID: cfg.Notion.DatabaseID,
		Columns:    cfg.Columns,
		Logger:     logger,
	})

	var metrics pipeline.RunMetrics = pipeline.NoopRunMetrics{}
	if cfg.Observability.MetricsEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS SDK config: %w", err)
		}
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = pipeline.NewCloudWatchRunMetrics(cwClient, cfg.Observability.MetricNamespace, cfg.Notion.DatabaseID, logger)
	}

	return pipeline.NewRunner(pipeline.Config{
		Rows:      store,
		Validator: validator,
		Renderer:  renderer,
		Mailer:    mailer,
		Metrics:   metrics,
		Delay:     cfg.Run.SendDelay,
		Logger:    logger,
	}), nil
}

// newHandler creates the Lambda handler. The scheduled event payload is
// decoded as pipeline.RunInput; unknown fields (the EventBridge envelope) are
// ignored and absent fields fall back to the configured defaults. A pass with
// any failed row returns an error so the invocation is marked failed.
func newHandler(runner passRunner, defaults pipeline.RunInput, logger *slog.Logger) func(ctx context.Context, input pipeline.RunInput) (RunResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, input pipeline.RunInput) (RunResult, error) {
		input = mergeInput(input, defaults)

		logger.InfoContext(ctx, "Mailer handler invoked",
			"dry_run", input.DryRun,
			"limit", input.Limit,
		)

		summary, err := runner.Run(ctx, input)
		result := resultOf(summary)
		if err != nil {
			result.ExitCode = 1
			return result, fmt.Errorf("mailer run failed: %w", err)
		}
		if summary.ExitCode() != 0 {
			return result, fmt.Errorf("mailer run %s: %d of %d rows failed", summary.RunID, summary.Failed, summary.Eligible)
		}
		return result, nil
	}
}

// mergeInput fills unset fields of input from defaults. A dry run requested
// by either side wins.
func mergeInput(input, defaults pipeline.RunInput) pipeline.RunInput {
	input.DryRun = input.DryRun || defaults.DryRun
	if input.Limit <= 0 {
		input.Limit = defaults.Limit
	}
	return input
}

// runLocal performs one pass in the foreground and returns the process exit
// code. SIGINT/SIGTERM stop the pass between rows.
func runLocal(ctx context.Context, runner passRunner, defaults pipeline.RunInput, args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("mailer", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", defaults.DryRun, "validate and render without sending or writing")
	limit := fs.Int("limit", defaults.Limit, "maximum rows to handle (0 = no cap)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx, pipeline.RunInput{DryRun: *dryRun, Limit: *limit})
	if err != nil {
		logger.Error("Run aborted", "error", err)
		return 1
	}
	return summary.ExitCode()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
