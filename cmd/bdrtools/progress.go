package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/mattn/go-isatty"

	"bdrtools/internal/logging"
)

// progressLogEvery is the item interval between progress log lines when
// stderr is not a terminal.
const progressLogEvery = 25

// progressHandle renders a live tracker on a terminal and falls back to
// periodic log lines when stderr is redirected.
type progressHandle struct {
	label  string
	logger *slog.Logger

	writer  progress.Writer
	tracker *progress.Tracker

	lastLogged int
	closed     bool
}

func newProgressHandle(label string, logger *slog.Logger) *progressHandle {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &progressHandle{label: label, logger: logger}
	if stderrIsTerminal() {
		pw := progress.NewWriter()
		pw.SetOutputWriter(os.Stderr)
		pw.SetUpdateFrequency(200 * time.Millisecond)
		pw.SetTrackerLength(30)
		h.writer = pw
	}
	return h
}

// Step reports that done of total items have been handled. The tracker is
// created on the first call because totals are unknown until the member
// listing arrives.
func (h *progressHandle) Step(done, total int) {
	if h == nil || h.closed || total <= 0 {
		return
	}
	if h.writer == nil {
		h.logStep(done, total)
		return
	}
	if h.tracker == nil {
		h.tracker = &progress.Tracker{Message: h.label, Total: int64(total)}
		h.writer.AppendTracker(h.tracker)
		go h.writer.Render()
	}
	h.tracker.UpdateTotal(int64(total))
	h.tracker.SetValue(int64(done))
}

func (h *progressHandle) logStep(done, total int) {
	if done < total && done-h.lastLogged < progressLogEvery {
		return
	}
	h.lastLogged = done
	h.logger.Info(h.label,
		logging.Int("done", done),
		logging.Int("total", total))
}

// Close stops the renderer. Safe to call more than once; the summary output
// must not interleave with tracker redraws.
func (h *progressHandle) Close() {
	if h == nil || h.closed {
		return
	}
	h.closed = true
	if h.writer == nil {
		return
	}
	if h.tracker != nil {
		h.tracker.MarkAsDone()
	}
	h.writer.Stop()
	for i := 0; i < 20 && h.writer.IsRenderInProgress(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
