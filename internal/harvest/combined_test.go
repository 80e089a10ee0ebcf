package harvest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCombinedAppendWritesDelimitedBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.txt")
	writer := NewCombinedWriter(path)

	if err := writer.Append("test:1", "hello world"); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read combined: %v", err)
	}
	want := "---|||start-of-pid:test:1|||---\nhello world\n"
	if string(data) != want {
		t.Fatalf("unexpected combined content:\n%q\nwant:\n%q", data, want)
	}
}

func TestCombinedAppendTrimsTrailingNewlines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.txt")
	writer := NewCombinedWriter(path)

	if err := writer.Append("test:1", "body text\n\n\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := writer.Append("test:2", "second"); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read combined: %v", err)
	}
	want := "---|||start-of-pid:test:1|||---\nbody text\n" +
		"---|||start-of-pid:test:2|||---\nsecond\n"
	if string(data) != want {
		t.Fatalf("unexpected combined content:\n%q\nwant:\n%q", data, want)
	}
}

func TestCombinedEnsureCreatesEmptyFileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.txt")
	writer := NewCombinedWriter(path)

	if err := writer.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := writer.Append("test:1", "payload"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := writer.Ensure(); err != nil {
		t.Fatalf("ensure after append: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("ensure truncated existing content")
	}
}

func TestSplitCombinedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.txt")
	writer := NewCombinedWriter(path)

	blocks := map[string]string{
		"test:1": "first block",
		"test:2": "multi\nline\ntext",
		"test:3": "",
	}
	for _, pid := range []string{"test:1", "test:2", "test:3"} {
		if err := writer.Append(pid, blocks[pid]); err != nil {
			t.Fatalf("append %s: %v", pid, err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	segments, err := SplitCombined(file)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}
	for i, pid := range []string{"test:1", "test:2", "test:3"} {
		if segments[i].PID != pid {
			t.Fatalf("segment %d pid = %q, want %q", i, segments[i].PID, pid)
		}
		if segments[i].Text != blocks[pid] {
			t.Fatalf("segment %d text = %q, want %q", i, segments[i].Text, blocks[pid])
		}
	}
}

func TestSplitCombinedIgnoresLeadingGarbage(t *testing.T) {
	content := "stray line\n---|||start-of-pid:test:9|||---\npayload\n"
	segments, err := SplitCombined(strings.NewReader(content))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(segments) != 1 || segments[0].PID != "test:9" || segments[0].Text != "payload" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}
