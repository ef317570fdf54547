package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tomasbasham/twitcastrec/internal/state"
)

func newTestWrapper(t *testing.T, maxConcurrent int64) *Wrapper {
	t.Helper()
	dir := t.TempDir()
	eventLog := state.NewEventLog(filepath.Join(dir, "wrapper_%s.jsonl"), 100)
	guiLog := state.NewEventLog(filepath.Join(dir, "gui%.0s.jsonl"), 100)
	t.Cleanup(func() {
		eventLog.Close()
		guiLog.Close()
	})
	registry := state.NewRegistry(eventLog)
	gui := state.NewGUIBridge(guiLog)
	return New(Config{MaxConcurrent: maxConcurrent}, nil, registry, eventLog, gui)
}

func TestStartRecordRejectsWhenShuttingDown(t *testing.T) {
	w := newTestWrapper(t, 1)
	w.shuttingDown = true

	result := w.StartRecord(context.Background(), StartRecordOptions{URL: "https://twitcasting.tv/c:a"})

	assert.False(t, result.OK)
	assert.Equal(t, "shutdown_in_progress", result.Reason)
	// Nothing should have been acquired, so the url remains free.
	assert.True(t, w.urlLocks.tryLock("https://twitcasting.tv/c:a"))
}

func TestStartRecordRejectsAlreadyRecordingURL(t *testing.T) {
	w := newTestWrapper(t, 1)
	url := "https://twitcasting.tv/c:a"

	assert.True(t, w.urlLocks.tryLock(url))
	defer w.urlLocks.release(url)

	result := w.StartRecord(context.Background(), StartRecordOptions{URL: url})

	assert.False(t, result.OK)
	assert.Equal(t, "url_already_recording", result.Reason)
	// The rejected attempt must not have released our still-held lock.
	assert.False(t, w.urlLocks.tryLock(url))
}

func TestStartRecordRejectsDuplicateJobID(t *testing.T) {
	w := newTestWrapper(t, 2)
	w.addActiveJob("job-1", &ActiveJob{Cancel: func() {}, StartedAt: time.Now()})
	defer w.removeActiveJob("job-1")

	result := w.StartRecord(context.Background(), StartRecordOptions{
		URL:   "https://twitcasting.tv/c:b",
		JobID: "job-1",
	})

	assert.False(t, result.OK)
	assert.Equal(t, "duplicate_job_id", result.Reason)
	// Both gates acquired along the way must have been released again.
	sem, err := w.processGate.acquire(context.Background(), w.ActiveCount)
	assert.NoError(t, err)
	w.processGate.release(sem)
}

func TestStartRecordEnforcesProcessCapacity(t *testing.T) {
	w := newTestWrapper(t, 1)

	// Simulate one job already holding the sole process-gate slot and
	// being reflected in the active-job count, so the gate's stale-rebuild
	// heuristic (activeJobs() == 0) doesn't kick in and mask a genuine
	// capacity timeout.
	holderSem, err := w.processGate.acquire(context.Background(), func() int { return 0 })
	assert.NoError(t, err)
	w.addActiveJob("holder", &ActiveJob{Cancel: func() {}, StartedAt: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := w.StartRecord(ctx, StartRecordOptions{URL: "https://twitcasting.tv/c:c", JobID: "new-job"})

	assert.False(t, result.OK)
	assert.Equal(t, "global_concurrency_timeout", result.Reason)

	w.removeActiveJob("holder")
	w.processGate.release(holderSem)

	// The url lock taken by the rejected attempt must have been released,
	// so a fresh acquire against the same url succeeds.
	assert.True(t, w.urlLocks.tryLock("https://twitcasting.tv/c:c"))
}

func TestShutdownCancelsActiveJobsAndWaits(t *testing.T) {
	w := newTestWrapper(t, 1)

	cancelled := make(chan struct{})
	w.addActiveJob("job-1", &ActiveJob{
		Cancel:    func() { close(cancelled) },
		StartedAt: time.Now(),
	})

	go func() {
		<-cancelled
		w.removeActiveJob("job-1")
	}()

	w.Shutdown(time.Second)

	select {
	case <-cancelled:
	default:
		t.Fatal("expected Shutdown to invoke the active job's cancel func")
	}
	assert.Equal(t, 0, w.ActiveCount())
	assert.True(t, w.isShuttingDown())
}

func TestEmergencyResetSkipsWhenJobsActive(t *testing.T) {
	w := newTestWrapper(t, 1)
	w.addActiveJob("job-1", &ActiveJob{Cancel: func() {}, StartedAt: time.Now()})
	defer w.removeActiveJob("job-1")

	before := w.processGate
	w.EmergencyReset()

	assert.Same(t, before, w.processGate, "gate must not be rebuilt while a job is active")
}

func TestEmergencyResetRebuildsGatesAndClearsLocks(t *testing.T) {
	w := newTestWrapper(t, 1)
	url := "https://twitcasting.tv/c:a"
	assert.True(t, w.urlLocks.tryLock(url))

	w.EmergencyReset()

	// The rebuilt lock set no longer remembers the held url.
	assert.True(t, w.urlLocks.tryLock(url))
	assert.Equal(t, 0, len(w.registry.All()))
}

func TestConfigureRebuildsProcessGate(t *testing.T) {
	w := newTestWrapper(t, 1)
	before := w.processGate
	w.Configure(4)

	assert.NotSame(t, before, w.processGate)
	assert.Equal(t, int64(4), w.cfg.MaxConcurrent)
}
