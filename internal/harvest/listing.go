package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"bdrtools/internal/fileutil"
)

// Item outcome tags. An absent status means the item either yielded text
// directly or carries none at all.
const (
	StatusForbidden         = "forbidden"
	StatusForbiddenViaChild = "forbidden_via_child"
	StatusHandledViaChild   = "handled_via_child"
)

// ItemRecord is one item's outcome in the listing ledger. A non-null
// ExtractedTextFileSize means the item's text was appended to the combined
// file; a null size with an empty Status means no text exists for it.
type ItemRecord struct {
	ItemPID               string `json:"item_pid"`
	PrimaryTitle          string `json:"primary_title"`
	FullItemAPIURL        string `json:"full_item_api_url"`
	FullStudioURL         string `json:"full_studio_url"`
	ExtractedTextFileSize *int64 `json:"extracted_text_file_size"`
	Status                string `json:"status,omitempty"`
}

// Appended reports whether the record's text landed in the combined file.
func (r ItemRecord) Appended() bool {
	return r.ExtractedTextFileSize != nil
}

// Summary aggregates the ledger. Every field is recomputed from the items
// and the combined file before each save; nothing here is incremented in
// place.
type Summary struct {
	Timestamp              string `json:"timestamp"`
	CombinedSizeBytes      int64  `json:"all_extracted_text_file_size_bytes"`
	CombinedSizeHuman      string `json:"all_extracted_text_file_size_human"`
	CountWithText          int    `json:"count_of_all_extracted_text_files"`
	CombinedTextPath       string `json:"combined_text_path"`
	ListingPath            string `json:"listing_path"`
	CollectionPID          string `json:"collection_pid"`
	CollectionPrimaryTitle string `json:"collection_primary_title"`
}

// Listing is the per-run outcome ledger, keyed by item pid. It is the
// single source of truth for which pids a resumed run may skip.
type Listing struct {
	Summary Summary      `json:"summary"`
	Items   []ItemRecord `json:"items"`

	path  string
	index map[string]int
}

// LoadListing reads the listing at path, or returns an empty one when the
// file does not exist yet.
func LoadListing(path string) (*Listing, error) {
	listing := &Listing{path: path, index: map[string]int{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			listing.Summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
			return listing, nil
		}
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if err := json.Unmarshal(data, listing); err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", path, err)
	}
	listing.rebuildIndex()
	return listing, nil
}

// Path returns the listing file's location.
func (l *Listing) Path() string {
	return l.path
}

func (l *Listing) rebuildIndex() {
	l.index = make(map[string]int, len(l.Items))
	for i, item := range l.Items {
		l.index[item.ItemPID] = i
	}
}

// Upsert records an item outcome, replacing any previous record for the
// same pid. Item order is preserved for new pids.
func (l *Listing) Upsert(rec ItemRecord) {
	if l.index == nil {
		l.rebuildIndex()
	}
	if i, ok := l.index[rec.ItemPID]; ok {
		l.Items[i] = rec
		return
	}
	l.index[rec.ItemPID] = len(l.Items)
	l.Items = append(l.Items, rec)
}

// Get returns the record for pid when one exists.
func (l *Listing) Get(pid string) (ItemRecord, bool) {
	if l.index == nil {
		l.rebuildIndex()
	}
	i, ok := l.index[pid]
	if !ok {
		return ItemRecord{}, false
	}
	return l.Items[i], true
}

// Has reports whether pid already carries a record.
func (l *Listing) Has(pid string) bool {
	_, ok := l.Get(pid)
	return ok
}

// AppendedCount returns how many records have text in the combined file,
// across all runs that fed this ledger.
func (l *Listing) AppendedCount() int {
	count := 0
	for _, item := range l.Items {
		if item.Appended() {
			count++
		}
	}
	return count
}

// RecomputeSummary rebuilds the summary from the items and the combined
// file on disk. The byte size always comes from stat so the summary can
// never drift from the file it describes.
func (l *Listing) RecomputeSummary(combinedPath string) {
	var size int64
	if info, err := os.Stat(combinedPath); err == nil {
		size = info.Size()
	}
	l.Summary.CombinedSizeBytes = size
	l.Summary.CombinedSizeHuman = humanize.Bytes(uint64(size))
	l.Summary.CountWithText = l.AppendedCount()
	l.Summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	l.Summary.CombinedTextPath = relativeArtifactPath(combinedPath)
	l.Summary.ListingPath = relativeArtifactPath(l.path)
}

// Counts derives the audit counters for a checkpoint. Appended, forbidden
// and no-text partition the records that are not waiting on a child.
func (l *Listing) Counts(totalMembers int) Counts {
	counts := Counts{TotalMembers: totalMembers, Processed: len(l.Items)}
	for _, item := range l.Items {
		switch {
		case item.Appended():
			counts.Appended++
		case item.Status == StatusForbidden || item.Status == StatusForbiddenViaChild:
			counts.Forbidden++
		case item.Status == "":
			counts.NoText++
		}
	}
	return counts
}

// Save writes the listing atomically so a crash mid-write can never leave
// a truncated ledger behind.
func (l *Listing) Save() error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("save listing: %w", err)
	}
	return nil
}

// relativeArtifactPath renders a run artifact as <run-dir-name>/<file-name>
// so recorded paths survive moving the output directory.
func relativeArtifactPath(path string) string {
	return filepath.Base(filepath.Dir(path)) + "/" + filepath.Base(path)
}
