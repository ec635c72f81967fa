package contextutil

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestLoggerRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := WithLogger(context.Background(), logger)

	if got := LoggerFromContext(ctx); got != logger {
		t.Error("LoggerFromContext() did not return the stored logger")
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got == nil {
		t.Error("LoggerFromContext() returned nil for a bare context")
	}
}
