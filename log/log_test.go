package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/platforma-dev/nexus/log"
)

func TestNew_TextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "text", slog.LevelInfo, nil)

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
}

func TestNew_JSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "json", slog.LevelInfo, nil)

	logger.Info("json test")

	output := buf.String()
	if !strings.Contains(output, `"msg":"json test"`) {
		t.Errorf("expected JSON output, got: %s", output)
	}
}

func TestNew_InvalidTypeDefaultsToText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "invalid", slog.LevelInfo, nil)

	logger.Info("test")

	output := buf.String()
	if strings.Contains(output, `{"msg"`) {
		t.Error("expected text format, got JSON")
	}
}

func TestNew_LogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		level    slog.Level
		logDebug bool
		logInfo  bool
		logWarn  bool
		logError bool
	}{
		{name: "Debug level logs all", level: slog.LevelDebug, logDebug: true, logInfo: true, logWarn: true, logError: true},
		{name: "Info level skips debug", level: slog.LevelInfo, logInfo: true, logWarn: true, logError: true},
		{name: "Warn level skips debug and info", level: slog.LevelWarn, logWarn: true, logError: true},
		{name: "Error level only logs errors", level: slog.LevelError, logError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := log.New(&buf, "text", tc.level, nil)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()

			if tc.logDebug != strings.Contains(output, "debug message") {
				t.Errorf("debug logging mismatch: expected %v", tc.logDebug)
			}
			if tc.logInfo != strings.Contains(output, "info message") {
				t.Errorf("info logging mismatch: expected %v", tc.logInfo)
			}
			if tc.logWarn != strings.Contains(output, "warn message") {
				t.Errorf("warn logging mismatch: expected %v", tc.logWarn)
			}
			if tc.logError != strings.Contains(output, "error message") {
				t.Errorf("error logging mismatch: expected %v", tc.logError)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range testCases {
		if got := log.ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestContextKeys(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		contextKey  any
		contextVal  string
		expectedKey string
	}{
		{"TraceID", log.TraceIDKey, "trace-123", "traceId"},
		{"Command", log.CommandKey, "migrate", "command"},
		{"MigrationID", log.MigrationIDKey, "20240101_120000_abcd", "migrationId"},
		{"Table", log.TableKey, "users", "table"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := log.New(&buf, "text", slog.LevelInfo, nil)

			ctx := context.WithValue(context.Background(), tc.contextKey, tc.contextVal)

			logger.InfoContext(ctx, "test message")

			output := buf.String()
			if !strings.Contains(output, tc.expectedKey+"="+tc.contextVal) {
				t.Errorf("expected output to contain %s=%s, got: %s", tc.expectedKey, tc.contextVal, output)
			}
		})
	}
}

func TestWithMigrationID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "json", slog.LevelInfo, nil)

	ctx := log.WithMigrationID(context.Background(), "m1")
	logger.InfoContext(ctx, "applying")

	if !strings.Contains(buf.String(), `"migrationId":"m1"`) {
		t.Errorf("expected migrationId in output, got: %s", buf.String())
	}
}

func TestContextHandler_CustomKeys(t *testing.T) {
	t.Parallel()

	customContextKey := struct{ name string }{name: "custom"}

	var buf bytes.Buffer
	logger := log.New(&buf, "text", slog.LevelInfo, map[string]any{
		"customKey": customContextKey,
	})

	ctx := context.WithValue(context.Background(), customContextKey, "custom-value")
	ctx = context.WithValue(ctx, log.TraceIDKey, "trace-999")

	logger.InfoContext(ctx, "test message")

	output := buf.String()
	if !strings.Contains(output, "customKey=custom-value") {
		t.Errorf("expected custom key in output, got: %s", output)
	}
	if !strings.Contains(output, "traceId=trace-999") {
		t.Errorf("expected default key in output, got: %s", output)
	}
}

func TestContextHandler_NonStringContextValue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "text", slog.LevelInfo, nil)

	ctx := context.WithValue(context.Background(), log.TraceIDKey, 12345)

	logger.InfoContext(ctx, "test message")

	if strings.Contains(buf.String(), "traceId=12345") {
		t.Error("expected non-string context value to be ignored")
	}
}

func TestSetDefault(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer
	customLogger := log.New(&buf, "text", slog.LevelInfo, nil)

	originalLogger := log.Logger
	defer func() { log.SetDefault(originalLogger) }()

	log.SetDefault(customLogger)

	log.InfoContext(context.Background(), "through package helper")

	if !strings.Contains(buf.String(), "through package helper") {
		t.Errorf("expected package-level helper to use custom logger, got: %s", buf.String())
	}
}
