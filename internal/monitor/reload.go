package monitor

import (
	"time"

	"github.com/tomasbasham/twitcastrec/internal/target"
)

// WatchTargets starts a debounced fsnotify watch on the targets file and
// hot-reloads e.targets on every change, without requiring a restart.
func (e *Engine) WatchTargets(debounce time.Duration) (*target.Watcher, error) {
	w, err := target.NewWatcher(e.cfg.TargetsPath, debounce, e.log)
	if err != nil {
		return nil, err
	}
	w.Start(func(f target.File) {
		var normalized []string
		for _, raw := range f.URLs {
			t, err := target.Normalize(raw)
			if err != nil {
				continue
			}
			normalized = append(normalized, t.CanonicalURL)
		}
		e.mu.Lock()
		e.targets = normalized
		e.mu.Unlock()
	})
	return w, nil
}
