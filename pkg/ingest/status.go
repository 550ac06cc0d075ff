package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// statusDocument is the processing_status.json shape consumed by the
// shell wrapper driving batch runs.
type statusDocument struct {
	Status         string `json:"status"`
	RunID          string `json:"run_id"`
	TotalBooks     int    `json:"total_books"`
	Processed      int    `json:"processed"`
	Failed         int    `json:"failed"`
	LastUpdated    string `json:"last_updated"`
	EmbeddingModel string `json:"embedding_model"`
	Provider       string `json:"provider"`
}

// statusWriter maintains the status document during a run. Writes are
// atomic (temp file + rename) so the wrapper never observes a torn
// document. A writer with an empty path is a no-op.
type statusWriter struct {
	path   string
	logger hclog.Logger

	mu  sync.Mutex
	doc statusDocument
}

func newStatusWriter(path string, total int, provider, model string, logger hclog.Logger) *statusWriter {
	return &statusWriter{
		path:   path,
		logger: logger.Named("status"),
		doc: statusDocument{
			RunID:          uuid.NewString(),
			TotalBooks:     total,
			EmbeddingModel: model,
			Provider:       provider,
		},
	}
}

func (w *statusWriter) update(state string, processed, failed int) {
	if w == nil || w.path == "" {
		return
	}

	w.mu.Lock()
	w.doc.Status = state
	w.doc.Processed = processed
	w.doc.Failed = failed
	w.doc.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	doc := w.doc
	w.mu.Unlock()

	if err := writeJSONAtomic(w.path, doc); err != nil {
		// Status reporting must never fail the run.
		w.logger.Warn("failed to write status document", "path", w.path, "error", err)
	}
}

// writeFailedBooks writes the failed_books.json list.
func writeFailedBooks(path string, failed []FailedBook) error {
	return writeJSONAtomic(path, failed)
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadURLFile reads a URL list, one URL per line, ignoring blank
// lines.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list %s: %w", path, err)
	}
	return urls, nil
}
