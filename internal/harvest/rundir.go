package harvest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bdrtools/internal/fileutil"
	"bdrtools/internal/logging"
)

const (
	runDirPrefix      = "run-"
	runDirTimeLayout  = "20060102T150405"
	maxCollisionBumps = 60
)

// SafePID renders a pid as a filesystem-safe fragment.
func SafePID(pid string) string {
	return strings.ReplaceAll(pid, ":", "_")
}

func runDirName(t time.Time, pid string) string {
	return runDirPrefix + t.UTC().Format(runDirTimeLayout) + "Z-" + SafePID(pid)
}

func listingFileName(pid string) string {
	return "listing_for_collection_pid-" + SafePID(pid) + ".json"
}

func combinedFileName(pid string) string {
	return "extracted_text_for_collection_pid-" + SafePID(pid) + ".txt"
}

func checkpointFileName(pid string) string {
	return "checkpoint_for_collection_pid-" + SafePID(pid) + ".json"
}

// RunDir is one timestamped, self-contained unit of harvest state: the
// listing, the combined text and the checkpoint all live inside it.
type RunDir struct {
	Dir            string
	Name           string
	CollectionPID  string
	Resumed        bool
	ResumedFrom    string
	PriorCreatedAt string
}

// ListingPath returns the absolute path of the run's listing file.
func (r *RunDir) ListingPath() string {
	return filepath.Join(r.Dir, listingFileName(r.CollectionPID))
}

// CombinedTextPath returns the absolute path of the run's combined file.
func (r *RunDir) CombinedTextPath() string {
	return filepath.Join(r.Dir, combinedFileName(r.CollectionPID))
}

// CheckpointPath returns the absolute path of the run's checkpoint file.
func (r *RunDir) CheckpointPath() string {
	return filepath.Join(r.Dir, checkpointFileName(r.CollectionPID))
}

// RelListingPath returns the listing path as <run-dir>/<file>.
func (r *RunDir) RelListingPath() string {
	return r.Name + "/" + listingFileName(r.CollectionPID)
}

// RelCombinedTextPath returns the combined-text path as <run-dir>/<file>.
func (r *RunDir) RelCombinedTextPath() string {
	return r.Name + "/" + combinedFileName(r.CollectionPID)
}

// PriorRun describes a resumable previous run directory.
type PriorRun struct {
	Dir        string
	Name       string
	Checkpoint *Checkpoint
}

// RunManager decides whether a prior run should be resumed and creates
// run directories under a fixed output directory.
type RunManager struct {
	outputDir string
	logger    *slog.Logger
	now       func() time.Time
}

// RunManagerOption adjusts RunManager construction.
type RunManagerOption func(*RunManager)

// WithRunLogger attaches a logger to the manager.
func WithRunLogger(logger *slog.Logger) RunManagerOption {
	return func(m *RunManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for run directory names.
func WithClock(now func() time.Time) RunManagerOption {
	return func(m *RunManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewRunManager returns a manager rooted at outputDir.
func NewRunManager(outputDir string, opts ...RunManagerOption) *RunManager {
	manager := &RunManager{
		outputDir: outputDir,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// FindLatestPriorRun inspects only the newest run directory for the
// collection. It is resumable when its checkpoint exists with
// completed == false and its listing file is present; anything else means
// a fresh run, so a directory superseded by a completed run is never
// picked up again.
func (m *RunManager) FindLatestPriorRun(collectionPID string) (*PriorRun, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan output directory: %w", err)
	}

	suffix := "-" + SafePID(collectionPID)
	newest := ""
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, runDirPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if name > newest {
			newest = name
		}
	}
	if newest == "" {
		return nil, nil
	}

	dir := filepath.Join(m.outputDir, newest)
	checkpoint, err := ReadCheckpoint(filepath.Join(dir, checkpointFileName(collectionPID)))
	if err != nil {
		m.logger.Warn("newest run directory has no usable checkpoint; starting fresh",
			logging.String("run_dir", newest), logging.Error(err))
		return nil, nil
	}
	if checkpoint.Completed {
		return nil, nil
	}
	if _, err := os.Stat(filepath.Join(dir, listingFileName(collectionPID))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("newest run directory has no listing; starting fresh",
				logging.String("run_dir", newest))
			return nil, nil
		}
		return nil, fmt.Errorf("stat prior listing: %w", err)
	}
	return &PriorRun{Dir: dir, Name: newest, Checkpoint: checkpoint}, nil
}

// CreateRun creates a fresh timestamped run directory. When prior is set,
// the prior listing and combined-text files are byte-copied into it before
// any harvesting starts, and the prior created_at is carried forward. A
// name collision in the same second bumps the stamp to the next second.
func (m *RunManager) CreateRun(collectionPID string, prior *PriorRun) (*RunDir, error) {
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stamp := m.now()
	var dir, name string
	for bumps := 0; ; bumps++ {
		name = runDirName(stamp, collectionPID)
		dir = filepath.Join(m.outputDir, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
		if bumps >= maxCollisionBumps {
			return nil, fmt.Errorf("create run directory: no unused name near %s", name)
		}
		stamp = stamp.Add(time.Second)
	}

	run := &RunDir{Dir: dir, Name: name, CollectionPID: collectionPID}
	if prior == nil {
		m.logger.Info("starting fresh run", logging.String("run_dir", name))
		return run, nil
	}

	if err := fileutil.CopyFile(filepath.Join(prior.Dir, listingFileName(collectionPID)), run.ListingPath()); err != nil {
		return nil, fmt.Errorf("copy forward listing: %w", err)
	}
	priorCombined := filepath.Join(prior.Dir, combinedFileName(collectionPID))
	if _, err := os.Stat(priorCombined); err == nil {
		if err := fileutil.CopyFile(priorCombined, run.CombinedTextPath()); err != nil {
			return nil, fmt.Errorf("copy forward combined text: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat prior combined text: %w", err)
	}

	run.Resumed = true
	run.ResumedFrom = prior.Name
	run.PriorCreatedAt = prior.Checkpoint.CreatedAt
	m.logger.Info("resuming prior run",
		logging.String("run_dir", name),
		logging.String("resumed_from", prior.Name),
		logging.Int("prior_processed", prior.Checkpoint.Counts.Processed))
	return run, nil
}

// RunInfo describes one run directory for inspection commands.
type RunInfo struct {
	Name         string
	Dir          string
	Checkpoint   *Checkpoint
	CombinedSize int64
}

// ListRuns returns the run directories under outputDir oldest first,
// optionally filtered to one collection. Directories without a readable
// checkpoint are skipped.
func ListRuns(outputDir, collectionPID string) ([]RunInfo, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan output directory: %w", err)
	}

	var runs []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), runDirPrefix) {
			continue
		}
		dir := filepath.Join(outputDir, entry.Name())
		matches, err := filepath.Glob(filepath.Join(dir, "checkpoint_for_collection_pid-*.json"))
		if err != nil || len(matches) == 0 {
			continue
		}
		checkpoint, err := ReadCheckpoint(matches[0])
		if err != nil {
			continue
		}
		if collectionPID != "" && checkpoint.CollectionPID != collectionPID {
			continue
		}
		info := RunInfo{Name: entry.Name(), Dir: dir, Checkpoint: checkpoint}
		if stat, err := os.Stat(filepath.Join(outputDir, filepath.FromSlash(checkpoint.CombinedTextPath))); err == nil {
			info.CombinedSize = stat.Size()
		}
		runs = append(runs, info)
	}
	return runs, nil
}
