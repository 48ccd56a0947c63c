// Package queue persists documents that need manual review as a JSON array
// on disk.
package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// Entry is one document awaiting review. Field order is the on-disk key order.
type Entry struct {
	File           string                    `json:"file"`
	Timestamp      time.Time                 `json:"timestamp"`
	Confidence     float64                   `json:"confidence"`
	PartialResult  document.ExtractionResult `json:"partial_result"`
	FailureReasons []string                  `json:"failure_reasons"`
}

// Queue is the review queue file. Mutations within one process are
// serialized; writers in other processes must coordinate externally.
type Queue struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a queue stored at path. The file is created on first Enqueue.
func New(path string) *Queue {
	return &Queue{path: path, now: time.Now}
}

// Path returns the queue file location.
func (q *Queue) Path() string { return q.path }

// Enqueue appends e, stamping it with the current time when unset.
func (q *Queue) Enqueue(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.read()
	if err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = q.now()
	}
	if e.FailureReasons == nil {
		e.FailureReasons = []string{}
	}
	entries = append(entries, e)
	if err := q.write(entries); err != nil {
		return err
	}
	slog.Info("document queued for review", "file", e.File, "confidence", e.Confidence,
		"reasons", e.FailureReasons, "queue_size", len(entries))
	return nil
}

// List returns every entry; a missing file is an empty queue.
func (q *Queue) List() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read()
}

// Remove drops every entry for file and reports how many were removed.
func (q *Queue) Remove(file string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.read()
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.File != file {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := q.write(kept); err != nil {
		return 0, err
	}
	slog.Info("queue entries removed", "file", file, "removed", removed)
	return removed, nil
}

func (q *Queue) read() ([]Entry, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, document.NewError(document.ErrQueue, "read", "", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, document.NewError(document.ErrQueue, "decode", q.path, err)
	}
	return entries, nil
}

// write replaces the queue file through a sibling temp file and rename.
func (q *Queue) write(entries []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return document.NewError(document.ErrQueue, "encode", "", err)
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return document.NewError(document.ErrQueue, "mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return document.NewError(document.ErrQueue, "create temp", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return document.NewError(document.ErrQueue, "write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return document.NewError(document.ErrQueue, "sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return document.NewError(document.ErrQueue, "close", tmpName, err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		return document.NewError(document.ErrQueue, "rename", fmt.Sprintf("%s -> %s", tmpName, q.path), err)
	}
	committed = true
	return nil
}
