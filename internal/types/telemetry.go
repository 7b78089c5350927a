package types

// Telemetry metric names for CloudWatch.
const (
	MetricRowsEligible = "RowsEligible"
	MetricRowsSent     = "RowsSent"
	MetricRowsFailed   = "RowsFailed"
	MetricRunDuration  = "RunDuration"

	// Dimension Keys
	DimDatabase = "Database"
	DimDryRun   = "DryRun"

	// Default Metric Namespace
	MetricNamespace = "NotionMail"
)
