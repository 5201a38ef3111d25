package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"debug", DebugConfig(), false},
		{"file", &Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput, File: "engine.log"}, false},
		{"bad level", &Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", &Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDerivedLoggerKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: DebugLevel, Format: JSONFormat, Output: StdoutOutput}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	log.WithComponent("dedup").WithField("rows", 3).Info("filtered")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	if entry["component"] != "dedup" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["rows"] != float64(3) {
		t.Errorf("expected rows field, got %v", entry["rows"])
	}
	if entry["msg"] != "filtered" {
		t.Errorf("expected message, got %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: WarnLevel, Format: TextFormat, Output: StdoutOutput, NoColors: true}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warning to be logged, got %q", out)
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(&Config{Level: InfoLevel, Format: JSONFormat, Output: StdoutOutput}, &buf)

	want := errors.New("boom")
	got := TimedOperation("import", log, func() error { return want })
	if got != want {
		t.Errorf("expected error to be returned unchanged, got %v", got)
	}
	if !strings.Contains(buf.String(), `"status":"error"`) {
		t.Errorf("expected error status in log, got %q", buf.String())
	}
}

func TestOperationLogger_StepAndWarning(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewWithWriter(&Config{Level: InfoLevel, Format: JSONFormat, Output: StdoutOutput}, &buf)

	op := NewOperationLogger("analysis", log).WithField("records", 5)
	op.Step("transfers")
	op.Warning("2 outflows have ambiguous transfer candidates")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}

	var step, warning map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &step); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &warning); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if step["step"] != "transfers" || step["operation"] != "analysis" {
		t.Errorf("unexpected step entry: %v", step)
	}
	if warning["level"] != "warning" || warning["records"] != float64(5) {
		t.Errorf("unexpected warning entry: %v", warning)
	}
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker(ProgressConfig{Operation: "rows", Total: 4, Logger: NewNopLogger()})
	tracker.Add(1)
	tracker.Add(1)

	stats := tracker.Complete()
	if stats.Current != 2 {
		t.Errorf("expected 2 processed, got %d", stats.Current)
	}
	if stats.Percentage != 50 {
		t.Errorf("expected 50%%, got %.1f", stats.Percentage)
	}
}
