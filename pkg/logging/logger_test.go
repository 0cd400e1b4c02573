package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  logrus.Level
	}{
		{LogLevelDebug, logrus.DebugLevel},
		{LogLevelInfo, logrus.InfoLevel},
		{LogLevelWarn, logrus.WarnLevel},
		{LogLevelError, logrus.ErrorLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.level); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewLoggerWithOutput_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(LogLevelInfo, &buf)

	WithDeliveryID(logger, "abc").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}

	if entry["message"] != "hello" {
		t.Errorf("message = %v, want hello", entry["message"])
	}
	if entry["delivery_id"] != "abc" {
		t.Errorf("delivery_id = %v, want abc", entry["delivery_id"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
}
