// Package sidefile appends records to per-job newline-delimited JSON files.
// It backs two paths: test-mode jobs, which never touch the store, and the
// durable fallback the gateway uses when a batch flush fails.
package sidefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
)

// Writer appends records for one job to <dir>/<job_id>.ndjson. The file is
// created lazily on the first append and opened append-only, so a crashed
// run's partial output survives.
type Writer struct {
	dir   string
	jobID string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewWriter prepares a writer for one job. The directory is created if
// missing; the file itself is not touched until the first Append.
func NewWriter(dir, jobID string) (*Writer, error) {
	if jobID == "" {
		return nil, fmt.Errorf("side file writer needs a job id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create side file dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, jobID: jobID}, nil
}

// Path returns the file this writer appends to.
func (w *Writer) Path() string {
	return filepath.Join(w.dir, w.jobID+".ndjson")
}

// Append writes one record as a single JSON line.
func (w *Writer) Append(rec dataset.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open side file %s: %w", w.Path(), err)
		}
		w.file = f
		w.enc = json.NewEncoder(f)
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("append record to %s: %w", w.Path(), err)
	}
	return nil
}

// Close flushes and closes the underlying file. Safe to call when nothing
// was ever appended.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.enc = nil
	if err != nil {
		return fmt.Errorf("close side file %s: %w", w.Path(), err)
	}
	return nil
}
