package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/gofrs/flock"

	"bdrtools/internal/bdr"
	"bdrtools/internal/fileutil"
	"bdrtools/internal/logging"
)

// searchQuery matches every item whose zip manifest carries an
// extracted-text entry.
const searchQuery = `zip_filelist_ssim:"EXTRACTED_TEXT"`

// Entry is one collection in the user-facing output list.
type Entry struct {
	CollectionPID           string `json:"collection_pid"`
	PrimaryTitle            string `json:"primary_title"`
	FullCollectionAPIURL    string `json:"full_collection_api_url"`
	FullCollectionStudioURL string `json:"full_collection_studio_url"`
	Count                   int    `json:"count_of_extracted_text_files_in_collection"`
}

type collectionTally struct {
	Count int    `json:"count"`
	Title string `json:"title"`
}

// state is the scan's resumable snapshot, persisted after every page.
type state struct {
	NextStart   int                         `json:"next_start"`
	NumFound    int                         `json:"num_found"`
	Collections map[string]*collectionTally `json:"collections"`
	ParentCache map[string][]string         `json:"parent_coll_cache"`
	SeenItems   map[string]bool             `json:"seen_item_pids"`
}

func newState() *state {
	return &state{
		Collections: map[string]*collectionTally{},
		ParentCache: map[string][]string{},
		SeenItems:   map[string]bool{},
	}
}

// Scanner walks the whole repository looking for collections that contain
// items with extracted text, aggregating per-collection counts. The scan
// checkpoints itself after every page so an interrupted pass picks up
// where it stopped.
type Scanner struct {
	client     *bdr.Client
	outputPath string
	logger     *slog.Logger
	rows       int
	progress   func(done, total int)

	state *state
}

// Option adjusts Scanner construction.
type Option func(*Scanner)

// WithLogger attaches a logger to the scanner.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPageRows sets the search page size.
func WithPageRows(rows int) Option {
	return func(s *Scanner) {
		if rows > 0 {
			s.rows = rows
		}
	}
}

// WithProgress registers a callback invoked after each page.
func WithProgress(progress func(done, total int)) Option {
	return func(s *Scanner) {
		s.progress = progress
	}
}

// NewScanner returns a scanner writing its collection list to outputPath.
func NewScanner(client *bdr.Client, outputPath string, opts ...Option) *Scanner {
	scanner := &Scanner{
		client:     client,
		outputPath: outputPath,
		logger:     logging.NewNop(),
		rows:       bdr.DefaultPageRows,
		state:      newState(),
	}
	for _, opt := range opts {
		opt(scanner)
	}
	return scanner
}

// OutputPath returns where the collection list is written.
func (s *Scanner) OutputPath() string {
	return s.outputPath
}

// CheckpointPath returns the scan's resumable state file.
func (s *Scanner) CheckpointPath() string {
	return s.outputPath + ".checkpoint"
}

// LockPath returns the lock file guarding the output path.
func (s *Scanner) LockPath() string {
	return s.outputPath + ".lock"
}

// Result summarizes one scan invocation.
type Result struct {
	Collections int
	Items       int
	NumFound    int
	Resumed     bool
	OutputPath  string
}

// Run executes the scan. A second scan against the same output path is
// rejected while the first holds the lock.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	lock := flock.New(s.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire scan lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another scan is already running against %s", s.outputPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release scan lock", logging.Error(err))
		}
	}()

	resumed, err := s.loadState()
	if err != nil {
		return nil, err
	}
	if resumed {
		s.logger.Info("resuming scan from checkpoint",
			logging.Int("next_start", s.state.NextStart),
			logging.Int("num_found", s.state.NumFound),
			logging.Int("collections", len(s.state.Collections)))
	}

	for {
		if s.state.NumFound > 0 && s.state.NextStart >= s.state.NumFound {
			break
		}
		page, err := s.client.Search(ctx, bdr.SearchQuery{
			Query:  searchQuery,
			Fields: []string{"pid", "rel_is_member_of_collection_ssim", "rel_is_part_of_ssim"},
			Rows:   s.rows,
			Start:  s.state.NextStart,
		})
		if err != nil {
			return nil, fmt.Errorf("search page at %d: %w", s.state.NextStart, err)
		}
		s.state.NumFound = page.NumFound
		if len(page.Docs) == 0 {
			break
		}

		for _, doc := range page.Docs {
			if err := s.tally(ctx, doc); err != nil {
				return nil, err
			}
		}
		s.state.NextStart += s.rows

		if err := s.saveState(); err != nil {
			return nil, err
		}
		if err := s.writeOutput(); err != nil {
			return nil, err
		}
		s.step()
	}

	if err := s.saveState(); err != nil {
		return nil, err
	}
	if err := s.writeOutput(); err != nil {
		return nil, err
	}

	s.logger.Info("scan finished",
		logging.Int("items", len(s.state.SeenItems)),
		logging.Int("collections", len(s.state.Collections)))
	return &Result{
		Collections: len(s.state.Collections),
		Items:       len(s.state.SeenItems),
		NumFound:    s.state.NumFound,
		Resumed:     resumed,
		OutputPath:  s.outputPath,
	}, nil
}

// tally attributes one search hit to its collections. Hits without direct
// collection membership are resolved through their parents.
func (s *Scanner) tally(ctx context.Context, doc bdr.SearchDoc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.PID == "" || s.state.SeenItems[doc.PID] {
		return nil
	}
	s.state.SeenItems[doc.PID] = true

	collections := doc.CollectionPIDs
	if len(collections) == 0 {
		for _, parent := range doc.PartOfPIDs {
			pids, err := s.parentCollections(ctx, parent)
			if err != nil {
				return err
			}
			collections = append(collections, pids...)
		}
	}

	seen := map[string]bool{}
	for _, pid := range collections {
		if pid == "" || seen[pid] {
			continue
		}
		seen[pid] = true
		tally, ok := s.state.Collections[pid]
		if !ok {
			tally = &collectionTally{Title: s.collectionTitle(ctx, pid)}
			s.state.Collections[pid] = tally
		}
		tally.Count++
	}
	return nil
}

// parentCollections looks up which collections a parent item belongs to,
// caching the answer. A denied parent contributes nothing and is cached
// as empty so it is never fetched again.
func (s *Scanner) parentCollections(ctx context.Context, parentPID string) ([]string, error) {
	if pids, ok := s.state.ParentCache[parentPID]; ok {
		return pids, nil
	}
	item, err := s.client.FetchItem(ctx, parentPID)
	if err != nil {
		if bdr.IsForbidden(err) {
			s.logger.Debug("parent item is access-restricted", logging.String("pid", parentPID))
			s.state.ParentCache[parentPID] = []string{}
			return nil, nil
		}
		return nil, fmt.Errorf("fetch parent %s: %w", parentPID, err)
	}
	pids := item.CollectionPIDs()
	if pids == nil {
		pids = []string{}
	}
	s.state.ParentCache[parentPID] = pids
	return pids, nil
}

// collectionTitle fetches a collection's display name once. Any HTTP error
// status leaves the title empty rather than failing the scan.
func (s *Scanner) collectionTitle(ctx context.Context, pid string) string {
	doc, err := s.client.FetchCollection(ctx, pid)
	if err != nil {
		var statusErr *bdr.StatusError
		if errors.As(err, &statusErr) {
			s.logger.Debug("collection title unavailable",
				logging.String("pid", pid),
				logging.Int("status", statusErr.StatusCode))
			return ""
		}
		s.logger.Warn("collection title fetch failed", logging.String("pid", pid), logging.Error(err))
		return ""
	}
	return doc.DisplayName()
}

func (s *Scanner) loadState() (bool, error) {
	data, err := os.ReadFile(s.CheckpointPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read scan checkpoint: %w", err)
	}
	loaded := newState()
	if err := json.Unmarshal(data, loaded); err != nil {
		return false, fmt.Errorf("parse scan checkpoint %s: %w", s.CheckpointPath(), err)
	}
	if loaded.Collections == nil {
		loaded.Collections = map[string]*collectionTally{}
	}
	if loaded.ParentCache == nil {
		loaded.ParentCache = map[string][]string{}
	}
	if loaded.SeenItems == nil {
		loaded.SeenItems = map[string]bool{}
	}
	s.state = loaded
	return true, nil
}

func (s *Scanner) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scan checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(s.CheckpointPath(), data, 0o644); err != nil {
		return fmt.Errorf("save scan checkpoint: %w", err)
	}
	return nil
}

// writeOutput rewrites the user-facing collection list, sorted by pid.
func (s *Scanner) writeOutput() error {
	entries := make([]Entry, 0, len(s.state.Collections))
	for pid, tally := range s.state.Collections {
		entries = append(entries, Entry{
			CollectionPID:           pid,
			PrimaryTitle:            tally.Title,
			FullCollectionAPIURL:    s.client.CollectionAPIURL(pid),
			FullCollectionStudioURL: s.client.StudioCollectionURL(pid),
			Count:                   tally.Count,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CollectionPID < entries[j].CollectionPID
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection list: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(s.outputPath, data, 0o644); err != nil {
		return fmt.Errorf("save collection list: %w", err)
	}
	return nil
}

func (s *Scanner) step() {
	if s.progress == nil {
		return
	}
	done := s.state.NextStart
	if done > s.state.NumFound {
		done = s.state.NumFound
	}
	s.progress(done, s.state.NumFound)
}
