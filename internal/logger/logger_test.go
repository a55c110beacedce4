package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWritesJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New("warn", &buf)
	if lg.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", lg.GetLevel())
	}

	lg.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	LogError(lg, "orders", "finish", "po-1", errors.New("boom"))
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["module"] != "orders" || entry["entity_id"] != "po-1" || entry["msg"] != "boom" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	lg := New("chatty", nil)
	if lg.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", lg.GetLevel())
	}
}
