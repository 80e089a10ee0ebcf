// Package zipinfo summarises an item's zip manifest by file extension,
// including the manifests of its direct children.
package zipinfo

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"bdrtools/internal/bdr"
)

// Meta identifies the item and the moment the report was built.
type Meta struct {
	Timestamp      string `json:"timestamp"`
	FullItemAPIURL string `json:"full_item_api_url"`
	ItemPID        string `json:"item_pid"`
}

// ChildInfo is one child's manifest and per-extension summary. Children
// whose manifests are empty are left out of the report entirely.
type ChildInfo struct {
	ChildPID     string         `json:"child_pid"`
	PrimaryTitle string         `json:"primary_title"`
	ChildZipInfo []string       `json:"child_zip_info"`
	ChildSummary map[string]int `json:"child_zip_filetype_summary"`
}

// ItemInfo aggregates the item's own manifest with its children's.
type ItemInfo struct {
	PID            string         `json:"pid"`
	PrimaryTitle   string         `json:"primary_title"`
	ItemZipInfo    []string       `json:"item_zip_info"`
	ItemSummary    map[string]int `json:"item_zip_filetype_summary"`
	HasParts       []ChildInfo    `json:"has_parts_zip_info"`
	OverallSummary map[string]int `json:"overall_zip_filetype_summary"`
}

// Report is the zip manifest summary document.
type Report struct {
	Meta Meta     `json:"_meta_"`
	Item ItemInfo `json:"item_info"`
}

// Summarize fetches the item and its direct children and builds the report.
func Summarize(ctx context.Context, client *bdr.Client, itemPID string) (*Report, error) {
	itemPID = strings.TrimSpace(itemPID)
	if itemPID == "" {
		return nil, fmt.Errorf("item pid is required")
	}

	item, err := client.FetchItem(ctx, itemPID)
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", itemPID, err)
	}

	files := item.ZipFilelist
	if files == nil {
		files = []string{}
	}
	report := &Report{
		Meta: Meta{
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			FullItemAPIURL: client.ItemAPIURL(itemPID),
			ItemPID:        itemPID,
		},
		Item: ItemInfo{
			PID:          item.PID,
			PrimaryTitle: item.Title(),
			ItemZipInfo:  files,
			ItemSummary:  tallyExtensions(files),
			HasParts:     []ChildInfo{},
		},
	}

	overall := map[string]int{}
	mergeCounts(overall, report.Item.ItemSummary)

	for _, childPID := range item.ChildPIDs() {
		child, err := client.FetchItem(ctx, childPID)
		if err != nil {
			return nil, fmt.Errorf("fetch child %s: %w", childPID, err)
		}
		if len(child.ZipFilelist) == 0 {
			continue
		}
		summary := tallyExtensions(child.ZipFilelist)
		report.Item.HasParts = append(report.Item.HasParts, ChildInfo{
			ChildPID:     child.PID,
			PrimaryTitle: child.Title(),
			ChildZipInfo: child.ZipFilelist,
			ChildSummary: summary,
		})
		mergeCounts(overall, summary)
	}

	report.Item.OverallSummary = overall
	return report, nil
}

func mergeCounts(into map[string]int, from map[string]int) {
	for ext, n := range from {
		into[ext] += n
	}
}

func tallyExtensions(files []string) map[string]int {
	counts := map[string]int{}
	for _, file := range files {
		counts[extension(file)]++
	}
	return counts
}

// extension returns the lowercased file extension of a manifest entry, or
// "noext" when the file name carries none.
func extension(name string) string {
	ext := path.Ext(path.Base(name))
	if ext == "" || ext == "." {
		return "noext"
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
