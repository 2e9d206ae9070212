package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCaptureLogger returns a JSON logger writing into the buffer.
func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return logger, buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds component field", func(t *testing.T) {
		logger, buf := newCaptureLogger()

		enriched := EnrichLogger(logger, "breaker")
		enriched.Info("test")

		record := lastRecord(t, buf)
		assert.Equal(t, "breaker", record["component"])
	})

	t.Run("nil logger stays nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "breaker"))
	})
}

func TestLogHelpers(t *testing.T) {
	logger, buf := newCaptureLogger()

	t.Run("monitor lifecycle", func(t *testing.T) {
		LogMonitorStart(logger, []string{"breaker", "tracker"})
		record := lastRecord(t, buf)
		assert.Equal(t, "monitor starting", record["msg"])

		LogMonitorStop(logger)
		record = lastRecord(t, buf)
		assert.Equal(t, "monitor stopped", record["msg"])
	})

	t.Run("breaker opened", func(t *testing.T) {
		LogBreakerOpened(logger, "extractor", 5, time.Now().Add(time.Minute))
		record := lastRecord(t, buf)
		assert.Equal(t, "circuit breaker opened", record["msg"])
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "extractor", record["breaker_component"])
		assert.Equal(t, float64(5), record["failure_count"])
	})

	t.Run("handler isolated", func(t *testing.T) {
		LogHandlerIsolated(logger, "flaky-handler", "5 consecutive failures")
		record := lastRecord(t, buf)
		assert.Equal(t, "handler isolated", record["msg"])
		assert.Equal(t, "flaky-handler", record["handler"])
	})

	t.Run("persistence error", func(t *testing.T) {
		LogPersistenceError(logger, "save_events", errors.New("disk full"))
		record := lastRecord(t, buf)
		assert.Equal(t, "persistence failed", record["msg"])
		assert.Equal(t, "save_events", record["operation"])
		assert.Equal(t, "disk full", record["error"])
	})

	t.Run("sweep complete", func(t *testing.T) {
		LogSweepComplete(logger, "retention", 3, 1.5)
		record := lastRecord(t, buf)
		assert.Equal(t, "sweep completed", record["msg"])
		assert.Equal(t, float64(3), record["removed"])
	})
}

func TestLogHelpersNilSafe(t *testing.T) {
	// Every helper must tolerate a nil logger.
	LogMonitorStart(nil, nil)
	LogMonitorStop(nil)
	LogBreakerOpened(nil, "c", 1, time.Now())
	LogBreakerClosed(nil, "c")
	LogHandlerIsolated(nil, "h", "r")
	LogHandlerRestored(nil, "h", 1)
	LogSystemAlert(nil, "c", "m")
	LogPerformanceWarning(nil, "k", nil)
	LogPersistenceError(nil, "op", errors.New("x"))
	LogSweepComplete(nil, "s", 0, 0)
	LogPublishError(nil, "t", errors.New("x"))
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(10 * time.Millisecond)
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, float64(5))
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.log")

	logger := NewFileLogger(FileLogConfig{
		Path:  path,
		Level: slog.LevelDebug,
	})
	require.NotNil(t, logger)

	logger.Info("file test", slog.String("component", "tracker"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "file test", record["msg"])
	assert.Equal(t, "tracker", record["component"])
}
