package preflight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := CheckDirectoryAccess("Output directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for writable temp dir: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessMissing(t *testing.T) {
	result := CheckDirectoryAccess("Output directory", filepath.Join(t.TempDir(), "missing"))
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}
}

func TestCheckDirectoryAccessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := CheckDirectoryAccess("Output directory", path)
	if result.Passed {
		t.Fatal("expected failure for regular file")
	}
}

func TestCheckDirectoryAccessReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are meaningless as root")
	}

	dir := filepath.Join(t.TempDir(), "readonly")
	if err := os.Mkdir(dir, 0o500); err != nil {
		t.Fatal(err)
	}

	result := CheckDirectoryAccess("Output directory", dir)
	if result.Passed {
		t.Fatal("expected failure for read-only directory")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	result := CheckFreeSpace("Free space", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass: %s", result.Detail)
	}
}

func TestFailed(t *testing.T) {
	if Failed([]Result{{Passed: true}, {Passed: true, Warning: true}}) {
		t.Fatal("warnings should not count as failures")
	}
	if !Failed([]Result{{Passed: true}, {Passed: false}}) {
		t.Fatal("expected failure to be reported")
	}
}
