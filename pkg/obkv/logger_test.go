package obkv

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	cases := map[LogLevel]string{
		LogLevelNone:  "NONE",
		LogLevelError: "ERROR",
		LogLevelWarn:  "WARN",
		LogLevelInfo:  "INFO",
		LogLevelDebug: "DEBUG",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestBasicLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := BasicLogger(&buf, LogLevelWarn)

	logger.Log(LogLevelDebug, "should not appear")
	logger.Log(LogLevelInfo, "should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("buffer after below-threshold logs = %q, want empty", buf.String())
	}

	logger.Log(LogLevelWarn, "a warning")
	if !strings.Contains(buf.String(), "a warning") {
		t.Errorf("buffer = %q, want it to contain the warning message", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Errorf("buffer = %q, want a [WARN] level tag", buf.String())
	}
}

func TestBasicLoggerNoneLevelAlwaysSuppressesLog(t *testing.T) {
	var buf bytes.Buffer
	logger := BasicLogger(&buf, LogLevelDebug)
	logger.Log(LogLevelNone, "never logged")
	if buf.Len() != 0 {
		t.Errorf("buffer = %q, want empty: LogLevelNone must never be emitted", buf.String())
	}
}

func TestBasicLoggerFormatsKeyvals(t *testing.T) {
	var buf bytes.Buffer
	logger := BasicLogger(&buf, LogLevelInfo)
	logger.Log(LogLevelInfo, "refreshed table", "table", "orders", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, "table=orders") {
		t.Errorf("output = %q, want it to contain \"table=orders\"", out)
	}
	if !strings.Contains(out, "attempt=2") {
		t.Errorf("output = %q, want it to contain \"attempt=2\"", out)
	}
}

func TestBasicLoggerDefaultsNilWriterToStderr(t *testing.T) {
	logger := BasicLogger(nil, LogLevelError)
	if logger.Level() != LogLevelError {
		t.Errorf("Level() = %v, want LogLevelError", logger.Level())
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	var n nopLogger
	if n.Level() != LogLevelNone {
		t.Errorf("nopLogger.Level() = %v, want LogLevelNone", n.Level())
	}
	n.Log(LogLevelError, "this must not panic")
}
