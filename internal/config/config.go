// Package config defines the configuration of the mailer. Configuration is
// loaded once per process (Lambda cold start or local run) and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails the load, and the entry
// point exits before any row is touched.
package config

import (
	"time"

	"notionmail/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Notion        NotionConfig
	Microsoft     MicrosoftConfig
	Run           RunConfig
	Columns       ColumnConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// NotionConfig identifies the record store.
type NotionConfig struct {
	Token      SecretString `envconfig:"NOTION_TOKEN" validate:"required"`
	DatabaseID string       `envconfig:"NOTION_DATABASE_ID" validate:"required"`
	BaseURL    string       `envconfig:"NOTION_BASE_URL" validate:"omitempty,url"`
}

// MicrosoftConfig holds the public-client identity used to mint Graph tokens.
type MicrosoftConfig struct {
	ClientID     string        `envconfig:"MS_CLIENT_ID" validate:"required"`
	Tenant       string        `envconfig:"MS_TENANT" default:"consumers"`
	RefreshToken SecretString  `envconfig:"MS_REFRESH_TOKEN" validate:"required"`
	TokenURL     string        `envconfig:"MS_TOKEN_URL" validate:"omitempty,url"`
	GraphBaseURL string        `envconfig:"GRAPH_BASE_URL" validate:"omitempty,url"`
	ExpiryMargin time.Duration `envconfig:"TOKEN_EXPIRY_MARGIN" default:"5m"`
}

// RunConfig tunes a single pass over the eligible rows.
type RunConfig struct {
	// SendDelay is awaited between rows, never after the last one.
	SendDelay time.Duration `envconfig:"SEND_DELAY" default:"10s" validate:"gte=0"`
	// MaxRows caps the rows handled per pass; 0 means no cap.
	MaxRows int  `envconfig:"MAX_ROWS_PER_RUN" default:"0" validate:"gte=0"`
	DryRun  bool `envconfig:"DRY_RUN" default:"false"`
}

// ColumnConfig maps each row field to the property name used in the
// database. Every name can be overridden on its own.
type ColumnConfig struct {
	Name       string `envconfig:"COL_NAME" default:"Name" validate:"required"`
	Email      string `envconfig:"COL_EMAIL" default:"Email" validate:"required"`
	Send       string `envconfig:"COL_SEND" default:"Send" validate:"required"`
	Template   string `envconfig:"COL_TEMPLATE" default:"Template" validate:"required"`
	Validation string `envconfig:"COL_VALIDATION" default:"Validation" validate:"required"`
	Status     string `envconfig:"COL_STATUS" default:"Status" validate:"required"`
	SentAt     string `envconfig:"COL_SENT_AT" default:"Sent At" validate:"required"`
}

// DefaultColumns returns the column names used when nothing is overridden.
func DefaultColumns() ColumnConfig {
	return ColumnConfig{
		Name:       "Name",
		Email:      "Email",
		Send:       "Send",
		Template:   "Template",
		Validation: "Validation",
		Status:     "Status",
		SentAt:     "Sent At",
	}
}

// AWSConfig holds regional configuration for SSM and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"NotionMail"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
