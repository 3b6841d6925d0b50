package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogger_WithState_AddsField(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{zlog: zerolog.New(&buf)}

	base.WithState("Running").Info("transitioned")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected valid JSON log line, got error: %v, raw=%q", err, buf.String())
	}
	if line["state"] != "Running" {
		t.Errorf("expected state=Running, got %v", line["state"])
	}
	if line["message"] != "transitioned" {
		t.Errorf("expected message=transitioned, got %v", line["message"])
	}
}

func TestLogger_WithContext_FromContext_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zlog: zerolog.New(&buf)}

	ctx := l.WithContext(context.Background())
	got := FromContext(ctx)

	got.Info("hello")
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected the original logger to have received the log line: %v", err)
	}
}

func TestFromContext_NoLoggerStashed_ReturnsDefault(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil {
		t.Fatalf("expected a default logger, got nil")
	}
}

func TestNewLogger_InvalidOutputPath(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Output: "/nonexistent-dir/orchestrator.log", Level: "info"})
	if err == nil {
		t.Errorf("expected an error opening a file under a nonexistent directory")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"fatal": zerolog.FatalLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
