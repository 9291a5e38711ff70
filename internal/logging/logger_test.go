package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "research")
	require.NoError(t, err)
	logger.Info("worker started", logging.String(logging.FieldQueue, "research"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "research.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &entry))
	assert.Equal(t, "worker started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "research", entry["queue"])
	assert.Contains(t, entry, "ts")
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logger.Info("message without caller", logging.String(logging.FieldComponent, "supervisor"))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), ".go:")
	assert.Contains(t, string(content), "INFO supervisor: message without caller")
	assert.NotContains(t, string(content), "\033[")
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	require.NoError(t, err)

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), ".go:")
}

func TestConsoleLoggerColorsLevelWhenForced(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-color.log")
	color := true
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, Color: &color})
	require.NoError(t, err)

	logger.Warn("lease lost", logging.String(logging.FieldStage, "draft"), logging.Int64(logging.FieldItemID, 7))

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	line := string(content)
	assert.Contains(t, line, "\033[33mWARN\033[0m")
	assert.Contains(t, line, "[draft] lease lost")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "item_id=7"), line)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	require.Error(t, err)
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 123)
	ctx = services.WithStage(ctx, "research")
	ctx = services.WithWorker(ctx, "research-abc")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, 123, entry[logging.FieldItemID])
	assert.Equal(t, "research", entry[logging.FieldStage])
	assert.Equal(t, "research-abc", entry[logging.FieldWorkerID])
	assert.Equal(t, "req-xyz", entry[logging.FieldCorrelationID])
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "worker stale", "worker_stale", logging.String(logging.FieldImpact, "backlog grows"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "worker_stale", entry[logging.FieldEventType])
	assert.Equal(t, "backlog grows", entry[logging.FieldImpact])
	assert.NotEmpty(t, entry[logging.FieldErrorHint])
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.ErrorWithContext(logger, "settle failed", "settle_failed", logging.String(logging.FieldErrorHint, "check the ledger"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "settle_failed", entry[logging.FieldEventType])
	assert.Equal(t, "check the ledger", entry[logging.FieldErrorHint])
	assert.NotContains(t, entry, logging.FieldImpact)

	logging.ErrorWithContext(nil, "ignored", "noop")
}
