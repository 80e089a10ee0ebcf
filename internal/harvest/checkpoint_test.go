package harvest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRunDir(t *testing.T) *RunDir {
	t.Helper()
	base := t.TempDir()
	run := &RunDir{
		Dir:           filepath.Join(base, "run-20250101T000000Z-test_c1"),
		Name:          "run-20250101T000000Z-test_c1",
		CollectionPID: "test:c1",
	}
	if err := os.MkdirAll(run.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestLoadCheckpointFreshInitializesFields(t *testing.T) {
	run := testRunDir(t)
	checkpoint, err := LoadCheckpoint(run)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if checkpoint.CollectionPID != "test:c1" {
		t.Fatalf("collection pid = %q", checkpoint.CollectionPID)
	}
	if checkpoint.RunDir != run.Name {
		t.Fatalf("run dir = %q", checkpoint.RunDir)
	}
	if checkpoint.CreatedAt == "" {
		t.Fatal("created_at not stamped")
	}
	if _, err := time.Parse(time.RFC3339, checkpoint.CreatedAt); err != nil {
		t.Fatalf("created_at not RFC3339: %v", err)
	}
	if checkpoint.ListingPath != run.Name+"/listing_for_collection_pid-test_c1.json" {
		t.Fatalf("listing path = %q", checkpoint.ListingPath)
	}
	if checkpoint.CombinedTextPath != run.Name+"/extracted_text_for_collection_pid-test_c1.txt" {
		t.Fatalf("combined path = %q", checkpoint.CombinedTextPath)
	}
}

func TestLoadCheckpointKeepsPriorCreatedAt(t *testing.T) {
	run := testRunDir(t)
	run.PriorCreatedAt = "2024-06-01T12:00:00Z"

	checkpoint, err := LoadCheckpoint(run)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if checkpoint.CreatedAt != "2024-06-01T12:00:00Z" {
		t.Fatalf("created_at = %q, want prior value", checkpoint.CreatedAt)
	}
}

func TestCheckpointSaveDerivesCountsAndRoundTrips(t *testing.T) {
	run := testRunDir(t)
	checkpoint, err := LoadCheckpoint(run)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	listing := &Listing{}
	listing.Upsert(ItemRecord{ItemPID: "test:1", ExtractedTextFileSize: int64ptr(7)})
	listing.Upsert(ItemRecord{ItemPID: "test:2", Status: StatusForbidden})
	listing.Upsert(ItemRecord{ItemPID: "test:3"})

	if err := checkpoint.Save(listing, 5, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := ReadCheckpoint(run.CheckpointPath())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Completed {
		t.Fatal("completed should be false")
	}
	want := Counts{TotalMembers: 5, Processed: 3, Appended: 1, NoText: 1, Forbidden: 1}
	if loaded.Counts != want {
		t.Fatalf("counts = %+v, want %+v", loaded.Counts, want)
	}
	if loaded.UpdatedAt == "" {
		t.Fatal("updated_at not stamped")
	}

	if err := checkpoint.Save(listing, 5, true); err != nil {
		t.Fatalf("save completed: %v", err)
	}
	loaded, err = ReadCheckpoint(run.CheckpointPath())
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if !loaded.Completed {
		t.Fatal("completed should be true after final save")
	}
	if loaded.CreatedAt != checkpoint.CreatedAt {
		t.Fatalf("created_at drifted: %q vs %q", loaded.CreatedAt, checkpoint.CreatedAt)
	}
}

func TestReadCheckpointMissingFileErrors(t *testing.T) {
	if _, err := ReadCheckpoint(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected an error for a missing checkpoint")
	}
}
