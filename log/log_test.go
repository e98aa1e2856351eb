package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/reachcore/journal/journalerr"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.Info("started")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%s)", err, buf.String())
	}
	if got["msg"] != "started" {
		t.Errorf("msg = %v, want started", got["msg"])
	}
	if got["level"] != "info" {
		t.Errorf("level = %v, want info", got["level"])
	}
}

func TestDebugSuppressedBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.Debug("should not appear")
	if buf.Len() != 0 {
		t.Errorf("debug line should be suppressed at info level, got %q", buf.String())
	}
}

func TestWithComponentAndFieldPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug).WithComponent("journald").WithField("request_id", "abc")
	l.Warn("careful")

	line := buf.String()
	if !strings.Contains(line, `"component":"journald"`) {
		t.Errorf("expected component in line: %s", line)
	}
	if !strings.Contains(line, `"request_id":"abc"`) {
		t.Errorf("expected field in line: %s", line)
	}
}

func TestErrorCapturesJournalCode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)
	l.Error("invoke failed", journalerr.New(journalerr.CodeReplay, "diverged"))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["error_code"] != string(journalerr.CodeReplay) {
		t.Errorf("error_code = %v, want %v", got["error_code"], journalerr.CodeReplay)
	}
}
