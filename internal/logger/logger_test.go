package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func reset() {
	SetVerbose(false)
	Init("development", false)
	SetOutput(os.Stderr)
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false after SetVerbose(false)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message", "run_id", "r1")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("unexpected output: %q", output)
	}
	if !strings.Contains(output, "r1") {
		t.Errorf("expected key/value in output: %q", output)
	}
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("test message")
	Section("hidden")

	if buf.Len() > 0 {
		t.Error("expected no output when verbose is disabled")
	}
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Section("Test Section")

	if !strings.Contains(buf.String(), "=== Test Section ===") {
		t.Errorf("unexpected section output: %q", buf.String())
	}
}

func TestInfo_ProductionJSON(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	Init("production", false)

	Info("document ingested", "doc_id", "d1", "status", "ready")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "document ingested" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["doc_id"] != "d1" {
		t.Errorf("unexpected doc_id: %v", entry["doc_id"])
	}
}

func TestRedaction(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	Init("production", false)

	Warn("pii detected", "pii_value", "a@b.com", "api_key", "sk-123", "count", 2)

	output := buf.String()
	if strings.Contains(output, "a@b.com") || strings.Contains(output, "sk-123") {
		t.Errorf("expected sensitive values redacted: %q", output)
	}
	if !strings.Contains(output, "[REDACTED]") {
		t.Errorf("expected redaction marker: %q", output)
	}
}

func TestWith(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	Init("production", false)

	With("component", "poller").Info("cycle complete")

	if !strings.Contains(buf.String(), `"component":"poller"`) {
		t.Errorf("expected bound field: %q", buf.String())
	}
}

func TestConcurrentAccess(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			SetVerbose(true)
			Debug("concurrent", "i", i)
			IsVerbose()
			SetVerbose(false)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
