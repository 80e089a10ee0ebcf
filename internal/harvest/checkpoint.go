package harvest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bdrtools/internal/fileutil"
)

// Counts is the audit block of a checkpoint. It is always derived from the
// listing, never incremented independently, so the two files cannot
// disagree about progress.
type Counts struct {
	TotalMembers int `json:"total_members"`
	Processed    int `json:"processed"`
	Appended     int `json:"appended"`
	NoText       int `json:"no_text"`
	Forbidden    int `json:"forbidden"`
}

// Checkpoint is the compact progress snapshot for one run directory. A
// checkpoint with completed == false marks its run as resumable.
type Checkpoint struct {
	CollectionPID    string `json:"collection_pid"`
	RunDir           string `json:"run_dir"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
	Completed        bool   `json:"completed"`
	Counts           Counts `json:"counts"`
	ListingPath      string `json:"listing_path"`
	CombinedTextPath string `json:"combined_text_path"`

	path string
}

// ReadCheckpoint loads the checkpoint file at path.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	checkpoint := &Checkpoint{path: path}
	if err := json.Unmarshal(data, checkpoint); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return checkpoint, nil
}

// LoadCheckpoint returns the run's checkpoint, reading an existing file
// when the run copied one forward, or initializing a fresh one. A resumed
// run keeps the created_at of the run that started the harvest.
func LoadCheckpoint(run *RunDir) (*Checkpoint, error) {
	path := run.CheckpointPath()
	if _, err := os.Stat(path); err == nil {
		checkpoint, err := ReadCheckpoint(path)
		if err != nil {
			return nil, err
		}
		checkpoint.RunDir = run.Name
		checkpoint.ListingPath = run.RelListingPath()
		checkpoint.CombinedTextPath = run.RelCombinedTextPath()
		return checkpoint, nil
	}

	createdAt := run.PriorCreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	return &Checkpoint{
		CollectionPID:    run.CollectionPID,
		RunDir:           run.Name,
		CreatedAt:        createdAt,
		ListingPath:      run.RelListingPath(),
		CombinedTextPath: run.RelCombinedTextPath(),
		path:             path,
	}, nil
}

// Path returns the checkpoint file's location.
func (c *Checkpoint) Path() string {
	return c.path
}

// Save derives the counters from the listing, stamps updated_at and writes
// the checkpoint atomically.
func (c *Checkpoint) Save(listing *Listing, totalMembers int, completed bool) error {
	c.Counts = listing.Counts(totalMembers)
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	c.Completed = completed

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
