// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	logger := New("test")
	logger.SetWriter(buf)
	logger.SetColorize(false)
	logger.SetLevel(DEBUG)
	return logger
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("hello %s", "world")

	output := buf.String()
	if !strings.Contains(output, "INF") {
		t.Errorf("expected INF level, got: %s", output)
	}
	if !strings.Contains(output, "component=test") {
		t.Errorf("expected component field, got: %s", output)
	}
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message 'hello world', got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.SetLevel(INFO)
	logger.Debug("debug message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG to be filtered, got: %s", buf.String())
	}

	logger.Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected INFO to pass, got: %s", buf.String())
	}
	buf.Reset()

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected WARN to pass, got: %s", buf.String())
	}
	buf.Reset()

	logger.SetLevel(ERROR)
	logger.Warn("filtered warn")
	if buf.Len() != 0 {
		t.Errorf("expected WARN to be filtered at ERROR, got: %s", buf.String())
	}
	logger.Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected ERROR to pass, got: %s", buf.String())
	}
}

func decodeJSON(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v, output: %s", err, buf.String())
	}
	return entry
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.Info("json test")

	entry := decodeJSON(t, &buf)
	if entry["level"] != "info" {
		t.Errorf("expected level info, got: %v", entry["level"])
	}
	if entry["component"] != "test" {
		t.Errorf("expected component test, got: %v", entry["component"])
	}
	if entry["message"] != "json test" {
		t.Errorf("expected message 'json test', got: %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp")
	}
}

func TestLoggerWithFieldsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.WithFields(Fields{"key": "0x0301", "count": 3}).Info("dispatch miss")

	entry := decodeJSON(t, &buf)
	if entry["key"] != "0x0301" {
		t.Errorf("expected key field, got: %v", entry["key"])
	}
	if entry["count"] != float64(3) {
		t.Errorf("expected count 3, got: %v", entry["count"])
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.WithError(errors.New("short write")).Warn("send failed")

	entry := decodeJSON(t, &buf)
	if entry["error"] != "short write" {
		t.Errorf("expected error field, got: %v", entry["error"])
	}
}

func TestEntryChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.WithField("a", 1).WithField("b", 2).WithFields(Fields{"c": 3}).Infof("n=%d", 3)

	entry := decodeJSON(t, &buf)
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := entry[k]; !ok {
			t.Errorf("missing field %s in %v", k, entry)
		}
	}
	if entry["message"] != "n=3" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	child := logger.WithPrefix("curve")
	child.Info("render")

	entry := decodeJSON(t, &buf)
	if entry["component"] != "curve" {
		t.Errorf("expected component curve, got: %v", entry["component"])
	}
	if child.GetLevel() != DEBUG {
		t.Errorf("child should inherit level, got %v", child.GetLevel())
	}
}

func TestLoggerCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)
	logger.SetCaller(true)

	logger.Info("with caller")

	entry := decodeJSON(t, &buf)
	caller, _ := entry["caller"].(string)
	if !strings.Contains(caller, ".go:") {
		t.Errorf("expected caller file:line, got: %q", caller)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"WARN", WARN},
		{"warning", WARN},
		{" error ", ERROR},
		{"bogus", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("JSON should parse")
	}
	if ParseFormat("pretty") != FormatText {
		t.Error("unknown format should fall back to text")
	}
}

func TestLogLevelString(t *testing.T) {
	if DEBUG.String() != "DEBUG" || ERROR.String() != "ERROR" {
		t.Errorf("unexpected level strings")
	}
	if LogLevel(99).String() != "UNKNOWN" {
		t.Errorf("unexpected string for invalid level")
	}
}

func TestGetLogger(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)
	base.SetFormat(FormatJSON)
	SetDefaultLogger(base)
	defer SetDefaultLogger(New("dashbridge"))

	GetLogger("bus").Warn("unroutable")

	entry := decodeJSON(t, &buf)
	if entry["component"] != "bus" {
		t.Errorf("expected component bus, got %v", entry["component"])
	}
}

func BenchmarkLoggerJSON(b *testing.B) {
	logger := New("bench")
	logger.SetWriter(&bytes.Buffer{})
	logger.SetFormat(FormatJSON)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("sample %d", i)
	}
}

func BenchmarkLoggerFiltered(b *testing.B) {
	logger := New("bench")
	logger.SetWriter(&bytes.Buffer{})
	logger.SetLevel(ERROR)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("filtered %d", i)
	}
}
