package types

import (
	"context"
	"log/slog"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "run-123")
	if got := GetRequestID(ctx); got != "run-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "run-123")
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Error("expected slog.Default() when no logger is stored")
	}

	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)
	if LoggerFromContext(ctx) != logger {
		t.Error("expected stored logger to be returned")
	}
}
