package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  level,
		Format: "json",
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("Failed to decode log entry %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Unwritable file path",
			config: Config{
				Level:  "info",
				Output: "/nonexistent-dir/log.json",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("kept")
	if entry := lastEntry(t, buf); entry["message"] != "kept" {
		t.Errorf("Expected message 'kept', got %v", entry["message"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.WithJobID("job-456").WithAssetID("asset-1").WithComponent("orchestrator").Info("hello")

	entry := lastEntry(t, buf)
	if entry["job_id"] != "job-456" {
		t.Errorf("Expected job_id job-456, got %v", entry["job_id"])
	}
	if entry["asset_id"] != "asset-1" {
		t.Errorf("Expected asset_id asset-1, got %v", entry["asset_id"])
	}
	if entry["component"] != "orchestrator" {
		t.Errorf("Expected component orchestrator, got %v", entry["component"])
	}

	logger.WithFields(map[string]interface{}{"key1": "value1"}).WithRequestID("req-1").Info("fields")
	entry = lastEntry(t, buf)
	if entry["key1"] != "value1" || entry["request_id"] != "req-1" {
		t.Errorf("Unexpected fields %v", entry)
	}
}

func TestLogJobTransition(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.LogJobTransition("job-1", "asset-1", "queued", "submitted")

	entry := lastEntry(t, buf)
	if entry["from"] != "queued" || entry["to"] != "submitted" {
		t.Errorf("Unexpected transition entry %v", entry)
	}
}

func TestLogStorageOperationError(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.LogStorageOperation("put", "media", "uploads/a.mp4", 1024, 2*time.Second, errors.New("boom"))

	entry := lastEntry(t, buf)
	if entry["level"] != "error" {
		t.Errorf("Expected error level, got %v", entry["level"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestLogDatabaseOperation(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.LogDatabaseOperation("get_job", time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Errorf("Expected successful call below info level, got %s", buf.String())
	}

	logger.LogDatabaseOperation("update_job", time.Millisecond, errors.New("conn closed"))
	entry := lastEntry(t, buf)
	if entry["level"] != "error" {
		t.Errorf("Expected error level, got %v", entry["level"])
	}
	if entry["operation"] != "update_job" {
		t.Errorf("Expected operation field, got %v", entry["operation"])
	}
}

func TestLogResolve(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.LogResolve("asset-1", "standard", "hls", 2, nil)

	entry := lastEntry(t, buf)
	if entry["qualities"] != float64(2) {
		t.Errorf("Expected 2 qualities, got %v", entry["qualities"])
	}
}

func TestLogHTTPRequest(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.LogHTTPRequest("GET", "/api/v1/assets", "192.168.1.1", 200, 100*time.Millisecond)

	entry := lastEntry(t, buf)
	if entry["status_code"] != float64(200) {
		t.Errorf("Expected status 200, got %v", entry["status_code"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("discarded")
	logger.LogJobEvent("job-1", "submitted", "submitted", nil)
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	if err != nil {
		t.Errorf("NewDefaultLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewDefaultLogger")
	}
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := NewConsoleLogger()
	if err != nil {
		t.Errorf("NewConsoleLogger() error = %v", err)
	}
	if logger == nil {
		t.Error("Expected non-nil logger from NewConsoleLogger")
	}
}

func BenchmarkLogWithFields(b *testing.B) {
	logger, _ := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Writer: &bytes.Buffer{},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithFields(map[string]interface{}{
			"key1": "value1",
			"key2": 123,
		}).Info("benchmark message")
	}
}
