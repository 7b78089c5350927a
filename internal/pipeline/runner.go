// Package pipeline drives one pass over the eligible rows: validate the
// recipient, render the linked template, send, and record the outcome on the
// row. Rows are handled strictly one after another with a fixed pause
// between them, because the mail provider penalizes bursts from personal
// accounts.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"notionmail/internal/external"
	"notionmail/internal/recipient"
	"notionmail/internal/render"
	"notionmail/internal/types"
)

// RunInput tunes a single pass. It doubles as the optional JSON payload of a
// scheduled invocation.
type RunInput struct {
	// DryRun validates and renders every row but neither sends nor writes.
	DryRun bool `json:"dry_run"`
	// Limit caps the rows handled in this pass; 0 means no cap. Rows past the
	// cap stay eligible for the next pass.
	Limit int `json:"limit"`
}

// RunSummary tallies one pass.
type RunSummary struct {
	RunID     string
	DryRun    bool
	Eligible  int // rows returned by the eligibility query
	Sent      int
	Failed    int
	Skipped   int // rows left untouched: ineligible on re-check, past Limit, or cut off by cancellation
	Previewed int // dry run only: rows that validated and rendered
	Duration  time.Duration
}

// ExitCode is 0 when nothing failed and 1 otherwise.
func (s RunSummary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// RowStore reads and patches rows.
type RowStore interface {
	ListEligible(ctx context.Context) ([]types.Row, error)
	Update(ctx context.Context, rowID string, u types.RowUpdate) error
}

// AddressValidator checks a recipient address.
type AddressValidator interface {
	Validate(ctx context.Context, address string) recipient.Result
}

// TemplateRenderer produces the personalized email for a template.
type TemplateRenderer interface {
	Render(ctx context.Context, templateID, recipientName string) (*render.Rendered, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds the dependencies of a Runner.
type Config struct {
	Rows      RowStore
	Validator AddressValidator
	Renderer  TemplateRenderer
	Mailer    external.Mailer
	Metrics   RunMetrics // defaults to NoopRunMetrics

	// Delay is awaited between consecutive rows.
	Delay time.Duration

	Clock    types.Clock
	Sleep    SleepFunc
	NewRunID func() string
	Logger   *slog.Logger
}

// Runner executes passes. It holds no per-run state.
type Runner struct {
	rows      RowStore
	validator AddressValidator
	renderer  TemplateRenderer
	mailer    external.Mailer
	metrics   RunMetrics
	delay     time.Duration
	clock     types.Clock
	sleep     SleepFunc
	newRunID  func() string
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		rows:      cfg.Rows,
		validator: cfg.Validator,
		renderer:  cfg.Renderer,
		mailer:    cfg.Mailer,
		metrics:   cfg.Metrics,
		delay:     cfg.Delay,
		clock:     cfg.Clock,
		sleep:     cfg.Sleep,
		newRunID:  cfg.NewRunID,
		logger:    cfg.Logger,
	}
	if r.metrics == nil {
		r.metrics = NoopRunMetrics{}
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rowResult is the terminal state of one row within a pass.
type rowResult int

const (
	resultSent rowResult = iota
	resultFailed
	resultSkipped
	resultPreviewed
)

// Run performs one pass. The error is non-nil only when the eligible rows
// could not be listed; per-row problems are recorded on the rows and counted
// in the summary.
func (r *Runner) Run(ctx context.Context, input RunInput) (RunSummary, error) {
	runID := r.newRunID()
	logger := r.logger.With("run_id", runID)
	ctx = types.WithRequestID(ctx, runID)
	ctx = types.WithLogger(ctx, logger)

	start := r.clock.Now()
	summary := RunSummary{RunID: runID, DryRun: input.DryRun}

	rows, err := r.rows.ListEligible(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list eligible rows",
			"error", err,
			"error_code", types.CodeOf(err),
		)
		return summary, err
	}
	summary.Eligible = len(rows)

	if input.Limit > 0 && len(rows) > input.Limit {
		logger.InfoContext(ctx, "row limit reached; deferring remaining rows",
			"limit", input.Limit,
			"deferred", len(rows)-input.Limit,
		)
		summary.Skipped += len(rows) - input.Limit
		rows = rows[:input.Limit]
	}

	logger.InfoContext(ctx, "run started", "eligible", summary.Eligible, "dry_run", input.DryRun)

	for i, row := range rows {
		if i > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				logger.WarnContext(ctx, "run cancelled between rows",
					"error", err,
					"remaining", len(rows)-i,
				)
				summary.Skipped += len(rows) - i
				break
			}
		}

		switch r.processRow(ctx, row, input.DryRun) {
		case resultSent:
			summary.Sent++
		case resultFailed:
			summary.Failed++
		case resultSkipped:
			summary.Skipped++
		case resultPreviewed:
			summary.Previewed++
		}
	}

	summary.Duration = r.clock.Now().Sub(start)
	r.metrics.RecordRun(ctx, summary)

	logger.InfoContext(ctx, "run finished",
		"eligible", summary.Eligible,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"previewed", summary.Previewed,
		"duration_ms", summary.Duration.Milliseconds(),
		"exit_code", summary.ExitCode(),
	)
	return summary, nil
}

// processRow moves one row from Start to Sent or Failed.
func (r *Runner) processRow(ctx context.Context, row types.Row, dryRun bool) rowResult {
	logger := types.LoggerFromContext(ctx).With("row_id", row.ID)

	// The query already filters on these; a row edited since is left alone.
	if !row.SendFlag || !row.SendStatus.IsEligible() {
		logger.InfoContext(ctx, "row no longer eligible", "status", string(row.SendStatus))
		return resultSkipped
	}

	if strings.TrimSpace(row.Email) == "" {
		return r.fail(ctx, logger, row, types.ValidationNoEmail, types.ErrCodeMissingField, dryRun)
	}
	if row.TemplateID == "" {
		return r.fail(ctx, logger, row, types.ValidationNoTemplate, types.ErrCodeMissingField, dryRun)
	}

	if res := r.validator.Validate(ctx, row.Email); !res.Valid {
		return r.fail(ctx, logger, row, res.Reason, types.ErrCodeValidationFailure, dryRun)
	}

	rendered, err := r.renderer.Render(ctx, row.TemplateID, row.Name)
	if err != nil {
		return r.fail(ctx, logger, row, types.ValidationTemplateErr+types.MessageOf(err), types.CodeOf(err), dryRun)
	}

	if dryRun {
		logger.InfoContext(ctx, "dry run: row would be sent",
			"to", row.Email,
			"subject", rendered.Subject,
			"html_bytes", len(rendered.HTML),
		)
		return resultPreviewed
	}

	// Visible intermediate state. If it cannot be written the row stays
	// eligible, so nothing is sent now and the next pass retries it.
	if err := r.rows.Update(ctx, row.ID, types.RowUpdate{
		ValidationStatus: types.Ptr(types.ValidationPassed),
		SendStatus:       types.Ptr(types.SendStatusSending),
	}); err != nil {
		logger.ErrorContext(ctx, "failed to mark row as sending; not sending",
			"error", err,
			"error_code", types.CodeOf(err),
		)
		return resultFailed
	}

	err = r.mailer.Send(ctx, external.Message{
		ToAddress: strings.TrimSpace(row.Email),
		ToName:    row.Name,
		Subject:   rendered.Subject,
		HTML:      rendered.HTML,
	})
	if err != nil {
		logger.WarnContext(ctx, "send failed",
			"error", err,
			"error_code", types.CodeOf(err),
		)
		r.write(ctx, logger, row.ID, types.RowUpdate{
			ValidationStatus: types.Ptr(types.ValidationSendErr + types.MessageOf(err)),
			SendStatus:       types.Ptr(types.SendStatusFailed),
			SendFlag:         types.Ptr(false),
		})
		return resultFailed
	}

	sentAt := r.clock.Now()
	if !r.write(ctx, logger, row.ID, types.RowUpdate{
		SendStatus: types.Ptr(types.SendStatusSent),
		SentAt:     &sentAt,
		SendFlag:   types.Ptr(false),
	}) {
		// The email went out but the row still reads "Sending…", which is not
		// eligible, so it will not be sent again automatically.
		logger.ErrorContext(ctx, "email delivered but outcome not recorded", "to", row.Email)
		return resultFailed
	}

	logger.InfoContext(ctx, "email sent", "to", row.Email)
	return resultSent
}

// fail records a terminal Failed state with reason in the validation column
// and clears the send flag.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, row types.Row, reason string, code types.ErrorCode, dryRun bool) rowResult {
	logger.WarnContext(ctx, "row failed", "reason", reason, "error_code", code)
	if dryRun {
		return resultFailed
	}
	r.write(ctx, logger, row.ID, types.RowUpdate{
		ValidationStatus: types.Ptr(reason),
		SendStatus:       types.Ptr(types.SendStatusFailed),
		SendFlag:         types.Ptr(false),
	})
	return resultFailed
}

// write applies u and logs a failure. It reports whether the write succeeded.
func (r *Runner) write(ctx context.Context, logger *slog.Logger, rowID string, u types.RowUpdate) bool {
	if err := r.rows.Update(ctx, rowID, u); err != nil {
		logger.ErrorContext(ctx, "failed to write row outcome",
			"error", err,
			"error_code", types.CodeOf(err),
		)
		return false
	}
	return true
}
