package target

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// File is the on-disk document at path §6.2 "targets.json": a JSON object
// holding the canonical-URL set the monitor engine watches.
type File struct {
	URLs      []string  `json:"urls"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Load reads and parses the targets file. A missing file is treated as an
// empty target set rather than an error, since the file is created lazily
// on first Save.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("target: read targets file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("target: parse targets file: %w", err)
	}
	return f, nil
}

// Save writes the targets file atomically via temp-file + rename, retrying a
// rename that fails because another process holds the destination open
// (§ DESIGN NOTES "atomic file writes").
func Save(path string, urls []string) error {
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)

	f := File{URLs: sorted, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("target: marshal targets file: %w", err)
	}

	return atomicWrite(path, data)
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by a rename, with a bounded retry for transient rename failures.
// If all attempts fail, it falls back to a sibling "<name>.fallback" file
// next to path rather than leaving a partial file in place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("target: create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("target: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("target: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("target: close temp file: %w", err)
	}

	var renameErr error
	for attempt := 0; attempt < 5; attempt++ {
		renameErr = os.Rename(tmpPath, path)
		if renameErr == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}

	fallback := path + ".fallback"
	if err := os.Rename(tmpPath, fallback); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("target: rename to %q failed after retries, fallback also failed: %w", path, renameErr)
	}
	return fmt.Errorf("target: rename to %q failed after retries, wrote %q instead: %w", path, fallback, renameErr)
}

// Watcher watches the targets file for external edits (the UI writing a new
// target list) and invokes onChange with the reloaded URL list (Load does
// not deduplicate it).
// Bursts of writes within the debounce window collapse into a single reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	log      *zap.SugaredLogger
	stopCh   chan struct{}
}

// NewWatcher creates a Watcher for path. Call Start to begin watching.
func NewWatcher(path string, debounce time.Duration, log *zap.SugaredLogger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("target: create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return nil, fmt.Errorf("target: create directory %q: %w", dir, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("target: watch directory %q: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{watcher: w, path: path, debounce: debounce, log: log, stopCh: make(chan struct{})}, nil
}

// Start runs the watch loop in a goroutine until Stop is called. onChange is
// invoked with the newly-loaded File each time the targets file changes.
func (w *Watcher) Start(onChange func(File)) {
	go func() {
		var pending *time.Timer
		fire := func() {
			f, err := Load(w.path)
			if err != nil {
				if w.log != nil {
					w.log.Warnw("targets file reload failed", "error", err)
				}
				return
			}
			onChange(f)
		}

		for {
			select {
			case <-w.stopCh:
				if pending != nil {
					pending.Stop()
				}
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(w.debounce, fire)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				if w.log != nil {
					w.log.Warnw("targets file watch error", "error", err)
				}
			}
		}
	}()
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}
