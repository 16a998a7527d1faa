package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, opts Options) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := newLoggerWithWriter(opts, &buf)
	if err != nil {
		t.Fatalf("newLoggerWithWriter failed: %v", err)
	}
	return l, &buf
}

func TestLogger_JSONContextFields(t *testing.T) {
	l, buf := newTestLogger(t, Options{Level: "debug", SessionID: "sess-1", Command: "replication stream"})

	l.Info("resolved sequence number", map[string]any{"seqno": 42})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if entry["message"] != "resolved sequence number" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
	if entry["command"] != "replication stream" {
		t.Errorf("command = %v, want %q", entry["command"], "replication stream")
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatalf("fields = %T, want object", entry["fields"])
	}
	if fields["seqno"] != float64(42) {
		t.Errorf("fields.seqno = %v, want 42", fields["seqno"])
	}
}

func TestLogger_DefaultLevelIsWarn(t *testing.T) {
	l, buf := newTestLogger(t, Options{})

	l.Debug("debug", nil)
	l.Info("info", nil)
	if buf.Len() != 0 {
		t.Errorf("debug/info should be filtered at default level, got %q", buf.String())
	}

	l.Warn("warn", nil)
	l.Error("error", nil)
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("got %d lines, want 2", n)
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	l, buf := newTestLogger(t, Options{Level: "info", Format: FormatConsole})

	l.Info("polling", map[string]any{"feed": "minute"})

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "polling") {
		t.Errorf("console output missing level or message: %q", out)
	}
}

func TestLogger_InvalidOptions(t *testing.T) {
	var buf bytes.Buffer
	if _, err := newLoggerWithWriter(Options{Level: "loud"}, &buf); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := newLoggerWithWriter(Options{Format: "xml"}, &buf); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestLogger_WithOutput(t *testing.T) {
	l, first := newTestLogger(t, Options{Level: "info", SessionID: "sess-2"})

	var second bytes.Buffer
	l.WithOutput(&second).Info("redirected", nil)

	if first.Len() != 0 {
		t.Errorf("original writer should be untouched, got %q", first.String())
	}
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("new writer missing entry: %q", second.String())
	}
	if !strings.Contains(second.String(), "sess-2") {
		t.Errorf("context fields should carry over: %q", second.String())
	}
}

func TestLogger_Sugar(t *testing.T) {
	l, buf := newTestLogger(t, Options{Level: "debug"})

	l.Sugar().With("feed", "hour").Debugf("frontier %d", 7)

	if !strings.Contains(buf.String(), "frontier 7") || !strings.Contains(buf.String(), `"feed":"hour"`) {
		t.Errorf("unexpected sugared output: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped", map[string]any{"x": 1})
	l.WithOutput(&bytes.Buffer{}).Error("dropped", nil)
}
