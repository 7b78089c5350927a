package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"notionmail/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, want string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != want {
				t.Errorf("dimension %s = %q, want %q", name, *d.Value, want)
			}
			return
		}
	}
	t.Errorf("dimension %s not found", name)
}

func TestCloudWatchRunMetrics_RecordRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	metrics := NewCloudWatchRunMetrics(cw, "", "db-1", nil)

	metrics.RecordRun(context.Background(), RunSummary{
		RunID:    "run-1",
		Eligible: 3,
		Sent:     2,
		Failed:   1,
		Duration: 1500 * time.Millisecond,
	})

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}

	input := cw.calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("expected namespace %q, got %q", types.MetricNamespace, *input.Namespace)
	}
	if len(input.MetricData) != 4 {
		t.Fatalf("expected 4 metric data, got %d", len(input.MetricData))
	}

	want := map[string]struct {
		value float64
		unit  cwtypes.StandardUnit
	}{
		types.MetricRowsEligible: {3, cwtypes.StandardUnitCount},
		types.MetricRowsSent:     {2, cwtypes.StandardUnitCount},
		types.MetricRowsFailed:   {1, cwtypes.StandardUnitCount},
		types.MetricRunDuration:  {1500, cwtypes.StandardUnitMilliseconds},
	}
	for _, datum := range input.MetricData {
		w, ok := want[*datum.MetricName]
		if !ok {
			t.Errorf("unexpected metric %q", *datum.MetricName)
			continue
		}
		if *datum.Value != w.value {
			t.Errorf("%s value = %f, want %f", *datum.MetricName, *datum.Value, w.value)
		}
		if datum.Unit != w.unit {
			t.Errorf("%s unit = %s, want %s", *datum.MetricName, datum.Unit, w.unit)
		}
		assertDimension(t, datum.Dimensions, types.DimDatabase, "db-1")
		assertDimension(t, datum.Dimensions, types.DimDryRun, "false")
	}
}

func TestCloudWatchRunMetrics_CustomNamespaceAndDryRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	metrics := NewCloudWatchRunMetrics(cw, "Mailer/Staging", "db-2", nil)

	metrics.RecordRun(context.Background(), RunSummary{DryRun: true})

	input := cw.calls[0]
	if *input.Namespace != "Mailer/Staging" {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	assertDimension(t, input.MetricData[0].Dimensions, types.DimDryRun, "true")
}

func TestCloudWatchRunMetrics_CloudWatchError(t *testing.T) {
	// Errors are logged, never surfaced.
	cw := &mockCloudWatchClient{returnErr: fmt.Errorf("cloudwatch unavailable")}
	metrics := NewCloudWatchRunMetrics(cw, "", "db-1", nil)

	metrics.RecordRun(context.Background(), RunSummary{Sent: 1})

	if len(cw.calls) != 1 {
		t.Errorf("expected 1 call attempt, got %d", len(cw.calls))
	}
}
