// Package storage persists pool snapshots to local JSONL files. This is an
// optional observability export: the registry is never rebuilt from these
// files, market state always comes back from the sources on restart.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dexradar/internal/domain"
)

// SnapshotWriter appends one line per collection cycle to a per-day JSONL
// file under the data directory.
type SnapshotWriter struct {
	dataDir string
	mu      sync.Mutex
}

// snapshotLine is the on-disk record shape.
type snapshotLine struct {
	At    time.Time     `json:"at"`
	Count int           `json:"count"`
	Pools []domain.Pool `json:"pools"`
}

// NewSnapshotWriter creates a writer rooted at dataDir.
func NewSnapshotWriter(dataDir string) *SnapshotWriter {
	return &SnapshotWriter{dataDir: dataDir}
}

// Append writes one snapshot line. The file is opened per call so rotation
// at the day boundary needs no extra bookkeeping.
func (w *SnapshotWriter) Append(at time.Time, pools []domain.Pool) error {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return fmt.Errorf("storage: create data dir: %w", err)
	}

	path := filepath.Join(w.dataDir, "snapshots-"+at.UTC().Format("20060102")+".jsonl")

	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open snapshot file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(snapshotLine{At: at.UTC(), Count: len(pools), Pools: pools})
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("storage: write snapshot: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("storage: write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("storage: flush snapshot: %w", err)
	}
	return nil
}
