package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"bdrtools/internal/bdr"
	"bdrtools/internal/logging"
)

// Harvester drives one pass over a collection's membership, appending each
// item's extracted text to the run's combined file and recording every
// outcome in the listing ledger. State is persisted after every item, so
// interrupting a pass at any point loses at most the item in flight.
type Harvester struct {
	client   *bdr.Client
	runs     *RunManager
	logger   *slog.Logger
	pageRows int
	limit    int
	progress func(done, total int)
}

// Option adjusts Harvester construction.
type Option func(*Harvester)

// WithLogger attaches a logger to the harvester.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harvester) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPageRows sets the membership search page size.
func WithPageRows(rows int) Option {
	return func(h *Harvester) {
		if rows > 0 {
			h.pageRows = rows
		}
	}
}

// WithAppendLimit caps the total number of appended items across all runs
// of the harvest. Zero means no cap.
func WithAppendLimit(limit int) Option {
	return func(h *Harvester) {
		if limit > 0 {
			h.limit = limit
		}
	}
}

// WithProgress registers a callback invoked after each member is handled.
func WithProgress(progress func(done, total int)) Option {
	return func(h *Harvester) {
		h.progress = progress
	}
}

// New returns a Harvester using client for repository access and runs for
// run-directory state.
func New(client *bdr.Client, runs *RunManager, opts ...Option) *Harvester {
	harvester := &Harvester{
		client:   client,
		runs:     runs,
		logger:   logging.NewNop(),
		pageRows: bdr.DefaultPageRows,
	}
	for _, opt := range opts {
		opt(harvester)
	}
	return harvester
}

// Result summarizes one harvester invocation.
type Result struct {
	RunDir           string
	RunName          string
	Resumed          bool
	ResumedFrom      string
	TotalMembers     int
	Processed        int
	Appended         int
	TotalAppended    int
	Counts           Counts
	Completed        bool
	ListingPath      string
	CombinedTextPath string
	CheckpointPath   string
}

// Run harvests extracted text for every member of collectionPID. A prior
// unfinished run is resumed by copying its state into a fresh run
// directory and skipping every pid the ledger already covers.
func (h *Harvester) Run(ctx context.Context, collectionPID string) (*Result, error) {
	collectionPID = strings.TrimSpace(collectionPID)
	if collectionPID == "" {
		return nil, errors.New("collection pid is required")
	}

	prior, err := h.runs.FindLatestPriorRun(collectionPID)
	if err != nil {
		return nil, err
	}
	run, err := h.runs.CreateRun(collectionPID, prior)
	if err != nil {
		return nil, err
	}

	listing, err := LoadListing(run.ListingPath())
	if err != nil {
		return nil, err
	}
	combined := NewCombinedWriter(run.CombinedTextPath())
	if err := combined.Ensure(); err != nil {
		return nil, err
	}
	checkpoint, err := LoadCheckpoint(run)
	if err != nil {
		return nil, err
	}

	logger := h.logger.With(
		logging.String("collection", collectionPID),
		logging.String("run_dir", run.Name))

	// Persist before the first request so a pass that dies immediately
	// still leaves a resumable directory behind.
	listing.Summary.CollectionPID = collectionPID
	total := 0
	if prior != nil {
		total = prior.Checkpoint.Counts.TotalMembers
	}
	if err := h.persist(listing, checkpoint, combined, total, false); err != nil {
		return nil, err
	}

	if collection, err := h.client.FetchCollection(ctx, collectionPID); err != nil {
		logger.Warn("collection metadata fetch failed; continuing without title", logging.Error(err))
	} else if title := collection.Title(); title != "" {
		listing.Summary.CollectionPrimaryTitle = title
	}

	docs, err := h.client.CollectionMembers(ctx, collectionPID, h.pageRows)
	if err != nil {
		return nil, fmt.Errorf("enumerate collection %s: %w", collectionPID, err)
	}
	total = len(docs)
	if total == 0 {
		logger.Warn("collection has no members")
	}

	if h.limit > 0 && listing.AppendedCount() >= h.limit {
		logger.Info("append cap already satisfied by a prior run",
			logging.Int("cap", h.limit),
			logging.Int("appended", listing.AppendedCount()))
		if err := h.persist(listing, checkpoint, combined, total, true); err != nil {
			return nil, err
		}
		return h.result(run, listing, checkpoint, total, 0), nil
	}

	appendedThisRun := 0
	for i, doc := range docs {
		pid := strings.TrimSpace(doc.PID)
		if pid == "" || listing.Has(pid) {
			h.step(i+1, total)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, h.abort(listing, checkpoint, combined, total, err, logger)
		}

		itemLogger := logger.With(
			logging.String("pid", pid),
			logging.String(logging.FieldRequestID, uuid.NewString()))
		appended, err := h.processItem(ctx, itemLogger, listing, combined, pid, doc.PrimaryTitle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, h.abort(listing, checkpoint, combined, total, ctx.Err(), logger)
			}
			// Record a placeholder so the pid is not retried on resume;
			// the warning is the operator's cue to investigate.
			listing.Upsert(ItemRecord{
				ItemPID:        pid,
				PrimaryTitle:   doc.PrimaryTitle,
				FullItemAPIURL: h.client.ItemAPIURL(pid),
				FullStudioURL:  h.client.StudioItemURL(pid),
			})
			itemLogger.Warn("item failed; recorded placeholder entry", logging.Error(err))
		} else if appended {
			appendedThisRun++
		}

		if err := h.persist(listing, checkpoint, combined, total, false); err != nil {
			return nil, err
		}
		h.step(i+1, total)

		if h.limit > 0 && listing.AppendedCount() >= h.limit {
			itemLogger.Info("append cap reached; stopping early", logging.Int("cap", h.limit))
			break
		}
	}

	completed := true
	for _, doc := range docs {
		pid := strings.TrimSpace(doc.PID)
		if pid != "" && !listing.Has(pid) {
			completed = false
			break
		}
	}
	if err := h.persist(listing, checkpoint, combined, total, completed); err != nil {
		return nil, err
	}

	logger.Info("harvest pass finished",
		logging.Int("total_members", total),
		logging.Int("appended_this_run", appendedThisRun),
		logging.Int("appended_total", listing.AppendedCount()),
		logging.Bool("completed", completed))
	return h.result(run, listing, checkpoint, total, appendedThisRun), nil
}

// processItem resolves and appends one member's extracted text. Items
// without a text link of their own fall back to their direct children.
func (h *Harvester) processItem(ctx context.Context, logger *slog.Logger, listing *Listing, combined *CombinedWriter, pid, fallbackTitle string) (bool, error) {
	item, err := h.client.FetchItem(ctx, pid)
	if err != nil {
		return false, fmt.Errorf("fetch item %s: %w", pid, err)
	}

	rec := h.newRecord(item, fallbackTitle)
	link, ok := h.client.ResolveTextLink(item)
	if !ok {
		appended, status, err := h.processChildren(ctx, logger, listing, combined, item)
		if err != nil {
			return false, err
		}
		rec.Status = status
		listing.Upsert(rec)
		if status == "" {
			logger.Debug("no extracted text found")
		}
		return appended, nil
	}

	text, err := h.client.FetchText(ctx, link.URL)
	if err != nil {
		if bdr.IsForbidden(err) {
			logger.Info("extracted text is access-restricted")
			rec.Status = StatusForbidden
			listing.Upsert(rec)
			return false, nil
		}
		return false, fmt.Errorf("fetch text for %s: %w", pid, err)
	}

	rec.ExtractedTextFileSize = payloadSize(link.Size, text)
	if err := combined.Append(pid, text); err != nil {
		return false, err
	}
	listing.Upsert(rec)
	logger.Debug("appended extracted text", logging.Int64("size_bytes", *rec.ExtractedTextFileSize))
	return true, nil
}

// processChildren walks the item's direct children in order and settles
// the parent on the first child that yields text or is denied. Children
// the ledger already covers are never fetched again.
func (h *Harvester) processChildren(ctx context.Context, logger *slog.Logger, listing *Listing, combined *CombinedWriter, item *bdr.ItemDoc) (bool, string, error) {
	for _, childPID := range item.ChildPIDs() {
		if prev, ok := listing.Get(childPID); ok {
			if prev.Appended() {
				return false, StatusHandledViaChild, nil
			}
			continue
		}

		child, err := h.client.FetchItem(ctx, childPID)
		if err != nil {
			return false, "", fmt.Errorf("fetch child %s: %w", childPID, err)
		}
		link, ok := h.client.ResolveTextLink(child)
		if !ok {
			continue
		}

		text, err := h.client.FetchText(ctx, link.URL)
		if err != nil {
			if bdr.IsForbidden(err) {
				childRec := h.newRecord(child, "")
				childRec.Status = StatusForbidden
				listing.Upsert(childRec)
				logger.Info("child text is access-restricted", logging.String("child_pid", childPID))
				return false, StatusForbiddenViaChild, nil
			}
			return false, "", fmt.Errorf("fetch child text for %s: %w", childPID, err)
		}

		childRec := h.newRecord(child, "")
		childRec.ExtractedTextFileSize = payloadSize(link.Size, text)
		if err := combined.Append(child.PID, text); err != nil {
			return false, "", err
		}
		listing.Upsert(childRec)
		logger.Debug("appended extracted text via child",
			logging.String("child_pid", childPID),
			logging.Int64("size_bytes", *childRec.ExtractedTextFileSize))
		return true, StatusHandledViaChild, nil
	}
	return false, "", nil
}

func (h *Harvester) newRecord(item *bdr.ItemDoc, fallbackTitle string) ItemRecord {
	title := item.Title()
	if title == "" {
		title = fallbackTitle
	}
	studio := strings.TrimSpace(item.URI)
	if studio == "" {
		studio = h.client.StudioItemURL(item.PID)
	}
	return ItemRecord{
		ItemPID:        item.PID,
		PrimaryTitle:   title,
		FullItemAPIURL: h.client.ItemAPIURL(item.PID),
		FullStudioURL:  studio,
	}
}

// persist saves the listing first and the checkpoint second, both
// atomically. The checkpoint is derived from the listing, so this order
// means a crash between the two writes leaves the checkpoint stale rather
// than ahead of the ledger.
func (h *Harvester) persist(listing *Listing, checkpoint *Checkpoint, combined *CombinedWriter, totalMembers int, completed bool) error {
	listing.RecomputeSummary(combined.Path())
	if err := listing.Save(); err != nil {
		return err
	}
	return checkpoint.Save(listing, totalMembers, completed)
}

func (h *Harvester) abort(listing *Listing, checkpoint *Checkpoint, combined *CombinedWriter, total int, cause error, logger *slog.Logger) error {
	if err := h.persist(listing, checkpoint, combined, total, false); err != nil {
		logger.Error("persist on abort failed", logging.Error(err))
	}
	return cause
}

func (h *Harvester) step(done, total int) {
	if h.progress != nil {
		h.progress(done, total)
	}
}

func (h *Harvester) result(run *RunDir, listing *Listing, checkpoint *Checkpoint, total, appendedThisRun int) *Result {
	return &Result{
		RunDir:           run.Dir,
		RunName:          run.Name,
		Resumed:          run.Resumed,
		ResumedFrom:      run.ResumedFrom,
		TotalMembers:     total,
		Processed:        len(listing.Items),
		Appended:         appendedThisRun,
		TotalAppended:    listing.AppendedCount(),
		Counts:           checkpoint.Counts,
		Completed:        checkpoint.Completed,
		ListingPath:      run.ListingPath(),
		CombinedTextPath: run.CombinedTextPath(),
		CheckpointPath:   run.CheckpointPath(),
	}
}

// payloadSize prefers the size the repository declared for the datastream
// and falls back to the fetched byte count.
func payloadSize(declared *int64, text string) *int64 {
	if declared != nil {
		return declared
	}
	size := int64(len(text))
	return &size
}
