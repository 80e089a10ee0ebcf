package harvest

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	delimiterPrefix = "---|||start-of-pid:"
	delimiterSuffix = "|||---"
)

// Delimiter returns the block header line written before a pid's text in
// the combined file. This is the only structure in the file; consumers
// split on it, so its shape must stay stable.
func Delimiter(pid string) string {
	return delimiterPrefix + pid + delimiterSuffix + "\n"
}

// CombinedWriter appends extracted-text blocks to a run's combined file.
// The file is append-only; blocks already written are never revisited.
type CombinedWriter struct {
	path string
}

// NewCombinedWriter returns a writer for the combined file at path.
func NewCombinedWriter(path string) *CombinedWriter {
	return &CombinedWriter{path: path}
}

// Path returns the combined file's location.
func (w *CombinedWriter) Path() string {
	return w.path
}

// Ensure creates the combined file if it does not exist yet. Existing
// content is left untouched.
func (w *CombinedWriter) Ensure() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ensure combined file: %w", err)
	}
	return file.Close()
}

// Append writes one delimited block: the pid header, the text with its
// trailing newlines trimmed, and a single newline terminator.
func (w *CombinedWriter) Append(pid, text string) error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open combined file: %w", err)
	}
	defer file.Close()

	var block strings.Builder
	block.WriteString(Delimiter(pid))
	block.WriteString(strings.TrimRight(text, "\n"))
	block.WriteByte('\n')

	if _, err := file.WriteString(block.String()); err != nil {
		return fmt.Errorf("append combined text for %s: %w", pid, err)
	}
	return file.Close()
}

// Segment is one pid's block recovered from a combined text file.
type Segment struct {
	PID  string
	Text string
}

// SplitCombined parses a combined text file back into per-pid segments.
// Content before the first delimiter is ignored.
func SplitCombined(r io.Reader) ([]Segment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read combined file: %w", err)
	}

	var segments []Segment
	var current *Segment
	var lines []string
	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimRight(strings.Join(lines, "\n"), "\n")
		segments = append(segments, *current)
		current = nil
		lines = nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, delimiterPrefix) && strings.HasSuffix(line, delimiterSuffix) {
			flush()
			pid := strings.TrimSuffix(strings.TrimPrefix(line, delimiterPrefix), delimiterSuffix)
			current = &Segment{PID: pid}
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	flush()
	return segments, nil
}
