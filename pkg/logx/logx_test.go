package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// setupTestLogger sets up a logger with a bytes.Buffer for testing.
func setupTestLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func withDebug(t *testing.T, domains ...string) {
	t.Helper()
	SetDebug(true)
	SetDebugDomains(domains)
	t.Cleanup(func() {
		SetDebug(false)
		SetDebugDomains(nil)
	})
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger(t)

	logger := NewLogger("contextbuf")
	logger.Info("Added item with %d tokens", 42)

	output := buf.String()
	if !strings.Contains(output, "[contextbuf]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Added item with 42 tokens") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("test")

	tests := []struct {
		level    Level
		logFunc  func(string, ...any)
		expected string
	}{
		{LevelDebug, logger.Debug, "DEBUG"},
		{LevelInfo, logger.Info, "INFO"},
		{LevelWarn, logger.Warn, "WARN"},
		{LevelError, logger.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger(t)
			if tt.level == LevelDebug {
				withDebug(t)
			}

			tt.logFunc("test message")

			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebug(false)

	NewLogger("quiet").Debug("should not appear")
	Debug(context.Background(), "eviction", "should not appear either")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	buf := setupTestLogger(t)
	withDebug(t, "eviction")

	ctx := WithSession(context.Background(), "session-1")
	Debug(ctx, "eviction", "tier %s exhausted", "low")
	Debug(ctx, "archive", "filtered out")

	output := buf.String()
	if !strings.Contains(output, "[eviction] tier low exhausted") {
		t.Errorf("Expected eviction debug line, got: %s", output)
	}
	if !strings.Contains(output, "[session-1]") {
		t.Errorf("Expected session id in output, got: %s", output)
	}
	if strings.Contains(output, "filtered out") {
		t.Errorf("Expected archive domain to be filtered, got: %s", output)
	}
}

func TestWith(t *testing.T) {
	buf := setupTestLogger(t)

	parent := NewLogger("contextbuf")
	child := parent.With("archiver")
	child.Warn("queue full")

	if child.Component() != "contextbuf/archiver" {
		t.Errorf("Expected sub-component name, got %q", child.Component())
	}
	if parent.Component() != "contextbuf" {
		t.Errorf("Expected parent unchanged, got %q", parent.Component())
	}
	if !strings.Contains(buf.String(), "[contextbuf/archiver] WARN: queue full") {
		t.Errorf("Unexpected output: %s", buf.String())
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger(t)

	NewLogger("test").Info("timestamp test")

	output := buf.String()
	start := strings.Index(output, "[")
	end := strings.Index(output, "]")
	if start == -1 || end == -1 || end <= start {
		t.Fatalf("Could not find timestamp in output: %s", output)
	}
	if _, err := time.Parse(timestampFormat, output[start+1:end]); err != nil {
		t.Errorf("Invalid timestamp format %q: %v", output[start+1:end], err)
	}
}

func TestRecentEntries(t *testing.T) {
	setupTestLogger(t)
	before := time.Now().UTC().Add(-time.Second)

	NewLogger("recent-a").Info("first")
	NewLogger("recent-b").Info("second")

	entries := GetRecentLogEntries("recent-a", before)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry for recent-a, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[0].Level != string(LevelInfo) {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
}

func TestRingBounded(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Add(LogEntry{Component: "c", Message: string(rune('a' + i))})
	}

	entries := r.Entries("", time.Time{})
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("Expected oldest entries dropped, got %+v", entries)
	}
}

func TestRingPartial(t *testing.T) {
	r := NewRing(4)
	r.Add(LogEntry{Component: "a", Message: "1", at: time.Unix(10, 0)})
	r.Add(LogEntry{Component: "b", Message: "2", at: time.Unix(20, 0)})

	if got := r.Entries("B", time.Time{}); len(got) != 1 || got[0].Message != "2" {
		t.Errorf("Expected component match to ignore case, got %+v", got)
	}
	if got := r.Entries("", time.Unix(15, 0)); len(got) != 1 || got[0].Message != "2" {
		t.Errorf("Expected since filter to drop older entries, got %+v", got)
	}
}
