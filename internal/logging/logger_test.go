package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bdrtools/internal/logging"
)

func TestNewConsoleWritesComponentPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Destination: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "harvest").Info("run started", logging.String("collection", "bdr:123"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, " INFO harvest: run started") {
		t.Fatalf("expected component-prefixed message, got %q", line)
	}
	if !strings.Contains(line, "collection=bdr:123") {
		t.Fatalf("expected key=value attr, got %q", line)
	}
}

func TestNewConsoleFiltersBelowLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "filtered.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", Destination: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "dropped") {
		t.Fatalf("expected info record filtered out, got %q", content)
	}
	if !strings.Contains(string(content), "kept") {
		t.Fatalf("expected warn record present, got %q", content)
	}
}

func TestNewJSONUsesRenamedKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.json")

	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Destination: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("json message", logging.Int("count", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json record: %v", err)
	}
	if record["msg"] != "json message" {
		t.Fatalf("msg = %v, want %q", record["msg"], "json message")
	}
	if record["level"] != "info" {
		t.Fatalf("level = %v, want info", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key in json record")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "default-level.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "chatty", Destination: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("too quiet")
	logger.Info("audible")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "too quiet") {
		t.Fatalf("expected debug filtered at default level, got %q", content)
	}
	if !strings.Contains(string(content), "audible") {
		t.Fatalf("expected info record present, got %q", content)
	}
}

func TestNewComponentLoggerNilBase(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "resolver")
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("goes nowhere")
}
