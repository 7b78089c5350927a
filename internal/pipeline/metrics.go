package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"notionmail/internal/types"
)

// RunMetrics receives the summary of every completed pass.
type RunMetrics interface {
	RecordRun(ctx context.Context, summary RunSummary)
}

// NoopRunMetrics discards everything. It is the default when metrics are
// disabled.
type NoopRunMetrics struct{}

func (NoopRunMetrics) RecordRun(context.Context, RunSummary) {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// CloudWatchRunMetrics publishes one batch of data points per pass.
//
// Metrics emitted, all with dims {Database, DryRun}:
//   - RowsEligible, RowsSent, RowsFailed: Count
//   - RunDuration: Milliseconds
//
// Publishing failures are logged and never affect the pass.
type CloudWatchRunMetrics struct {
	client     CloudWatchClient
	namespace  string
	databaseID string
	logger     *slog.Logger
}

// NewCloudWatchRunMetrics creates a publisher. An empty namespace falls back
// to types.MetricNamespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace, databaseID string, logger *slog.Logger) *CloudWatchRunMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{
		client:     client,
		namespace:  namespace,
		databaseID: databaseID,
		logger:     logger,
	}
}

// RecordRun emits the pass counters and duration.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, s RunSummary) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimDatabase), Value: aws.String(m.databaseID)},
		{Name: aws.String(types.DimDryRun), Value: aws.String(strconv.FormatBool(s.DryRun))},
	}
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(types.MetricRowsEligible, s.Eligible),
			count(types.MetricRowsSent, s.Sent),
			count(types.MetricRowsFailed, s.Failed),
			{
				MetricName: aws.String(types.MetricRunDuration),
				Value:      aws.Float64(float64(s.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"error", err.Error(),
			"run_id", s.RunID,
		)
	}
}
