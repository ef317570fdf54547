package recorder

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// hlsDescriptorLine mirrors ytdlp's own destination-line pattern so the
// supervisor can detect the HLS-acquisition milestone purely from observed
// log lines, independent of the ytdlp package's internal parsing.
var hlsDescriptorLine = regexp.MustCompile(`(?i)\[download\]\s+Destination:`)

// supervisor runs alongside the download subprocess and enforces the two
// phase-aware timeouts described in §4.3.3: an HLS-acquisition deadline
// while STARTING, and a file-growth watchdog while RECORDING, plus an
// independent absolute cap (the absolute cap itself is applied by the
// caller via context.WithTimeout — see recorder.go's record()).
type supervisor struct {
	hlsTimeout   time.Duration
	stallTimeout time.Duration

	mu        sync.Mutex
	descriptorSeen bool

	stopCh chan struct{}
	once   sync.Once
}

func newSupervisor(hlsTimeout, stallTimeout time.Duration) *supervisor {
	return &supervisor{hlsTimeout: hlsTimeout, stallTimeout: stallTimeout, stopCh: make(chan struct{})}
}

// observeLine is called from the ytdlp log callback for every line of
// subprocess output.
func (s *supervisor) observeLine(line string) {
	if hlsDescriptorLine.MatchString(line) {
		s.mu.Lock()
		s.descriptorSeen = true
		s.mu.Unlock()
	}
}

func (s *supervisor) sawDescriptor() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptorSeen
}

// run enforces the HLS-acquisition timeout then switches to the file-growth
// watchdog once the descriptor has been seen. onTimeout(reason) is invoked
// exactly once if either timeout fires; outputFile returns the current
// primary output file path for size polling (empty until one exists).
//
// The supervisor is cancellable via stop() and never propagates its own
// cancellation as an error — it simply stops polling, matching §5's
// "supervisor and pulse tasks swallow cancellation silently."
func (s *supervisor) run(ctx context.Context, onTimeout func(reason string), outputFile func() string) {
	hlsDeadline := time.NewTimer(s.hlsTimeout)
	defer hlsDeadline.Stop()

	for !s.sawDescriptor() {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-hlsDeadline.C:
			onTimeout("hls_timeout")
			return
		case <-time.After(1 * time.Second):
		}
	}

	s.watchFileGrowth(ctx, onTimeout, outputFile)
}

func (s *supervisor) watchFileGrowth(ctx context.Context, onTimeout func(reason string), outputFile func() string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastSize int64 = -1
	var stalledSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			path := outputFile()
			if path == "" {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			size := info.Size()
			if size > lastSize {
				lastSize = size
				stalledSince = time.Time{}
				continue
			}
			if stalledSince.IsZero() {
				stalledSince = time.Now()
				continue
			}
			if time.Since(stalledSince) >= s.stallTimeout {
				onTimeout("file_stall_detected")
				return
			}
		}
	}
}

// stop cancels the supervisor's own polling loop. Safe to call multiple
// times.
func (s *supervisor) stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// primaryOutputFile returns the largest file currently in dir, a reasonable
// proxy for "the file actively being written" when yt-dlp produces
// multiple artifacts (thumbnail, info json, the media file itself).
func primaryOutputFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			bestSize = info.Size()
			best = filepath.Join(dir, e.Name())
		}
	}
	return best
}
