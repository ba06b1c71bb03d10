// Package watcher submits audio files to the job manager as they appear in
// a watched directory.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/raphaelgruber/scribe-go/internal/jobs"
	"github.com/raphaelgruber/scribe-go/internal/stt"
)

// settleDelay is how long a file must stop growing before it is considered
// fully written. Uploads and network copies trigger many write events.
const settleDelay = 2 * time.Second

// Submitter is the slice of the job manager the watcher needs.
type Submitter interface {
	Submit(sourcePath, filename string) (string, error)
}

// Watcher watches one directory for new audio files.
type Watcher struct {
	dir    string
	jobs   Submitter
	logger *slog.Logger
}

// New creates a watcher for dir.
func New(dir string, submitter Submitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, jobs: submitter, logger: logger}
}

// Run blocks until ctx is cancelled. Files already present at startup are
// submitted first, then filesystem events drive submission. Duplicate
// events for a stem with an active job are rejected by the manager and
// ignored here.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching for audio files", "dir", w.dir)
	w.submitExisting()

	// Pending files wait out the settle delay before submission.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if stt.CheckFormat(event.Name) != nil {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(pending, path)
				w.submit(path)
			}
		}
	}
}

// submitExisting picks up files that were already in the directory.
func (w *Watcher) submitExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("could not scan watch dir", "error", err)
		return
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if stt.CheckFormat(path) == nil {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	if len(paths) > 0 {
		w.logger.Info("found existing audio files", "count", len(paths))
	}
	for _, p := range paths {
		w.submit(p)
	}
}

func (w *Watcher) submit(path string) {
	id, err := w.jobs.Submit(path, filepath.Base(path))
	if err != nil {
		if errors.Is(err, jobs.ErrStemActive) {
			return // duplicate notification for an in-flight file
		}
		w.logger.Error("could not submit file", "file", path, "error", err)
		return
	}
	w.logger.Info("file submitted", "file", filepath.Base(path), "job_id", id)
}
