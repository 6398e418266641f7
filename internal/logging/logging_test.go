package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelInfo})

	logger.Info("hello", "target", "x86_64-unknown-linux-gnu")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "hello" {
		t.Fatalf("msg = %v, want hello", record["msg"])
	}
	if record["target"] != "x86_64-unknown-linux-gnu" {
		t.Fatalf("target = %v", record["target"])
	}
}

func TestSetLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelInfo})

	SetLevel(slog.LevelWarn)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at warn level: %q", buf.String())
	}

	SetLevel(slog.LevelDebug)
	logger.Debug("kept")
	if buf.Len() == 0 {
		t.Fatal("debug record dropped at debug level")
	}
}

func TestGroupWrapsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelInfo, Group: "kiln"})

	logger.Info("grouped", "k", "v")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	group, ok := record["kiln"].(map[string]any)
	if !ok || group["k"] != "v" {
		t.Fatalf("record = %v, want k nested under kiln", record)
	}
}
