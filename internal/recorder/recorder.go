// Package recorder implements the Recorder Wrapper (§4.3): the concurrency
// and per-URL state core sitting between the Monitor Engine and the
// external download subprocess.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomasbasham/twitcastrec/internal/browser"
	"github.com/tomasbasham/twitcastrec/internal/cookie"
	"github.com/tomasbasham/twitcastrec/internal/state"
	"github.com/tomasbasham/twitcastrec/internal/storage"
	"github.com/tomasbasham/twitcastrec/internal/ytdlp"
)

// Config configures a Wrapper.
type Config struct {
	MaxConcurrent   int64
	OutputDir       string
	OutputTemplate  string
	CookiePath      string
	LatestCookiePointer string
	Quality         string
	YtdlpPath       string
	PageReferer     string
	HLSAcquireTimeout time.Duration
	FileStallTimeout  time.Duration
	AbsoluteCap       time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.HLSAcquireTimeout == 0 {
		c.HLSAcquireTimeout = 150 * time.Second
	}
	if c.FileStallTimeout == 0 {
		c.FileStallTimeout = 45 * time.Second
	}
	if c.AbsoluteCap == 0 {
		c.AbsoluteCap = 3600 * time.Second
	}
}

// ActiveJob uniformly represents a running record request: a cancel handle
// and its start time. This replaces the source implementation's mixed
// timestamp/task-handle map with one type.
type ActiveJob struct {
	Cancel    context.CancelFunc
	StartedAt time.Time
}

// Result is the normalized outcome of start_record (§4.3.4 step 9, §7).
type Result struct {
	OK          bool
	Success     bool
	OutputFiles []string
	Files       int
	JobID       string
	URL         string
	Reason      string
	RetryCount  int
}

// Wrapper is the Recorder Wrapper: the single source of truth for per-target
// recording state.
type Wrapper struct {
	cfg Config

	browser  *browser.Singleton
	registry *state.Registry
	eventLog *state.EventLog
	gui      *state.GUIBridge
	backup   *storage.Backup

	urlLocks     *urlLocks
	processGate  *capacityGate
	schedGates   sync.Map // scheduler key -> *capacityGate

	mu         sync.Mutex
	activeJobs map[string]*ActiveJob

	shuttingDown bool
}

// New constructs a Wrapper. browserSingleton, registry, eventLog and gui must
// be non-nil in production use; tests may pass stubs.
func New(cfg Config, browserSingleton *browser.Singleton, registry *state.Registry, eventLog *state.EventLog, gui *state.GUIBridge) *Wrapper {
	cfg.applyDefaults()
	return &Wrapper{
		cfg:         cfg,
		browser:     browserSingleton,
		registry:    registry,
		eventLog:    eventLog,
		gui:         gui,
		urlLocks:    newURLLocks(),
		processGate: newCapacityGate(cfg.MaxConcurrent),
		activeJobs:  make(map[string]*ActiveJob),
	}
}

// SetBackup wires an optional off-box backup channel for completed
// recordings. A nil backup (the default) disables it entirely.
func (w *Wrapper) SetBackup(backup *storage.Backup) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backup = backup
}

// Configure updates max_concurrent, rebuilding the process gate.
func (w *Wrapper) Configure(maxConcurrent int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg.MaxConcurrent = maxConcurrent
	w.processGate = newCapacityGate(maxConcurrent)
}

// ActiveCount returns the number of in-flight record requests.
func (w *Wrapper) ActiveCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.activeJobs)
}

// schedulerGate returns (creating if needed) the per-scheduler gate for key.
func (w *Wrapper) schedulerGate(key string) *capacityGate {
	if v, ok := w.schedGates.Load(key); ok {
		return v.(*capacityGate)
	}
	g := newCapacityGate(w.cfg.MaxConcurrent)
	actual, _ := w.schedGates.LoadOrStore(key, g)
	return actual.(*capacityGate)
}

// StartRecordOptions parameterizes StartRecord.
type StartRecordOptions struct {
	URL             string
	Duration        time.Duration
	JobID           string
	ForceLoginCheck bool
	SchedulerKey    string
	Metadata        map[string]string
}

// StartRecord is start_record (§4.3.4): acquires all three gates in order,
// runs the phase-aware supervisor alongside the download subprocess, and
// returns a normalized Result. It never returns an error for operational
// failures — those are reported via Result.Reason, per §7's "gate and state
// errors are recovered locally."
func (w *Wrapper) StartRecord(ctx context.Context, opts StartRecordOptions) Result {
	url := opts.URL
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if w.isShuttingDown() {
		return Result{OK: false, JobID: jobID, URL: url, Reason: "shutdown_in_progress"}
	}

	if !w.urlLocks.tryLock(url) {
		return Result{OK: false, JobID: jobID, URL: url, Reason: "url_already_recording"}
	}
	released := false
	releaseURLLock := func() {
		if !released {
			w.urlLocks.release(url)
			released = true
		}
	}
	defer releaseURLLock()

	procSem, err := w.processGate.acquire(ctx, w.ActiveCount)
	if err != nil {
		w.registry.SetState(url, state.StateIdle, state.PhaseIdle, "global_concurrency_timeout")
		return Result{OK: false, JobID: jobID, URL: url, Reason: "global_concurrency_timeout"}
	}
	procReleased := false
	releaseProc := func() {
		if !procReleased {
			w.processGate.release(procSem)
			procReleased = true
		}
	}
	defer releaseProc()

	schedKey := opts.SchedulerKey
	if schedKey == "" {
		schedKey = "default"
	}
	schedGate := w.schedulerGate(schedKey)
	schedSem, err := schedGate.acquire(ctx, w.ActiveCount)
	if err != nil {
		w.registry.SetState(url, state.StateIdle, state.PhaseIdle, "max_concurrent_timeout")
		return Result{OK: false, JobID: jobID, URL: url, Reason: "max_concurrent_timeout"}
	}
	schedReleased := false
	releaseSched := func() {
		if !schedReleased {
			schedGate.release(schedSem)
			schedReleased = true
		}
	}
	defer releaseSched()

	if w.hasActiveJob(jobID) {
		return Result{OK: false, JobID: jobID, URL: url, Reason: "duplicate_job_id"}
	}

	w.registry.SetState(url, state.StateStarting, state.PhaseStarting, "")
	w.eventLog.Emit(state.EventRecordingStart, map[string]any{"url": url, "job_id": jobID})

	recCtx, cancel := context.WithCancel(ctx)
	w.addActiveJob(jobID, &ActiveJob{Cancel: cancel, StartedAt: time.Now()})
	defer w.removeActiveJob(jobID)
	defer cancel()

	if opts.ForceLoginCheck {
		w.ensureLoginAndExport(recCtx, true)
	}

	if _, err := w.browser.EnsureHeadless(recCtx); err != nil {
		w.registry.SetState(url, state.StateError, state.PhaseError, "chrome_error:"+err.Error())
		w.gui.Stopped(url, jobID, "", false)
		return Result{OK: false, JobID: jobID, URL: url, Reason: "chrome_error:" + err.Error()}
	}

	result := w.record(recCtx, url, jobID, opts, "")

	if result.Reason != "" && ytdlp.IsJITRetryable(result.Reason) {
		result = w.jitRetry(recCtx, url, jobID, opts, result.Reason)
	}

	if result.OK {
		w.registry.SetState(url, state.StateIdle, state.PhaseIdle, "")
		w.backupRecording(jobID, result.OutputFiles)
	} else if result.Reason == "cancelled" {
		w.registry.SetState(url, state.StateIdle, state.PhaseIdle, "cancelled")
	} else {
		w.registry.SetState(url, state.StateError, state.PhaseError, result.Reason)
	}
	w.eventLog.Emit(state.EventRecordingResult, map[string]any{
		"url": url, "job_id": jobID, "ok": result.OK, "reason": result.Reason, "retry_count": result.RetryCount,
	})
	w.gui.Stopped(url, jobID, "", result.OK)

	return result
}

// backupRecording mirrors a completed recording's output files via the
// configured backup channel, best-effort: a failure here never changes the
// already-decided Result.
func (w *Wrapper) backupRecording(jobID string, files []string) {
	w.mu.Lock()
	backup := w.backup
	w.mu.Unlock()
	if backup == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := backup.Recording(ctx, jobID, files); err != nil {
			w.eventLog.Emit(state.EventBackupFailed, map[string]any{"job_id": jobID, "error": err.Error()})
		}
	}()
}

func (w *Wrapper) hasActiveJob(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.activeJobs[jobID]
	return ok
}

func (w *Wrapper) addActiveJob(jobID string, job *ActiveJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeJobs[jobID] = job
}

func (w *Wrapper) removeActiveJob(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeJobs, jobID)
}

func (w *Wrapper) isShuttingDown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shuttingDown
}

// record runs one attempt of the supervised download (no JIT retry logic —
// see jit.go). qualityOverride, when non-empty, wins over w.cfg.Quality —
// used by the JIT retry to force a neutral "best" on bad_format without
// mutating shared config.
func (w *Wrapper) record(ctx context.Context, url, jobID string, opts StartRecordOptions, qualityOverride string) Result {
	sup := newSupervisor(w.cfg.HLSAcquireTimeout, w.cfg.FileStallTimeout)
	defer sup.stop()

	w.registry.SetState(url, state.StateStarting, state.PhaseStarting, "")

	absoluteCap := w.cfg.AbsoluteCap
	if opts.Duration > 0 {
		absoluteCap = opts.Duration + 120*time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, absoluteCap)
	defer cancel()

	quality := w.cfg.Quality
	if qualityOverride != "" {
		quality = qualityOverride
	}

	outputDir := filepath.Join(w.cfg.OutputDir, jobID)
	invokeOpts := ytdlp.Options{
		BinaryPath:      w.cfg.YtdlpPath,
		PageURL:         url,
		HLSURL:          url,
		CookieJarPath:   w.cfg.CookiePath,
		OutputDir:       outputDir,
		OutputTemplate:  outputTemplateOrDefault(w.cfg.OutputTemplate),
		Quality:         quality,
		DurationSeconds: int(opts.Duration.Seconds()),
		ForceBestQuality: qualityOverride == "best",
	}

	reachedHLS := make(chan struct{}, 1)
	invokeOpts.LogCallback = func(stream, line string) {
		sup.observeLine(line)
		if sup.sawDescriptor() {
			select {
			case reachedHLS <- struct{}{}:
			default:
			}
		}
	}

	go sup.run(execCtx, func(reason string) {
		cancel()
		w.registry.SetState(url, state.StateError, state.PhaseError, reason)
		if reason == "hls_timeout" {
			w.eventLog.Emit(state.EventHLSTimeout, map[string]any{"url": url, "job_id": jobID})
		} else if reason == "file_stall_detected" {
			w.eventLog.Emit(state.EventFileStallDetected, map[string]any{"url": url, "job_id": jobID})
		}
	}, func() string {
		return primaryOutputFile(outputDir)
	})

	go func() {
		select {
		case <-reachedHLS:
			w.registry.SetState(url, state.StateRecording, state.PhaseRecording, "")
			w.gui.Started(url, jobID, "")
		case <-execCtx.Done():
		}
	}()

	ytRes, err := ytdlp.Invoke(execCtx, invokeOpts)

	if ctx.Err() != nil && execCtx.Err() == context.Canceled {
		return Result{JobID: jobID, URL: url, Reason: "cancelled"}
	}

	if err != nil {
		var execErr *ytdlp.ExecError
		if errors.As(err, &execErr) {
			reason := ytdlp.Classify(ytRes, execErr)
			return Result{JobID: jobID, URL: url, Reason: reason, OutputFiles: ytRes.OutputFiles, Files: len(ytRes.OutputFiles)}
		}
		if execCtx.Err() != nil {
			return Result{JobID: jobID, URL: url, Reason: "absolute_timeout"}
		}
		return Result{JobID: jobID, URL: url, Reason: fmt.Sprintf("recorder_exception:%v", err)}
	}

	return Result{
		OK:          true,
		Success:     true,
		JobID:       jobID,
		URL:         url,
		OutputFiles: ytRes.OutputFiles,
		Files:       len(ytRes.OutputFiles),
	}
}

func outputTemplateOrDefault(t string) string {
	if t == "" {
		return "%(title)s.%(ext)s"
	}
	return t
}

// ensureLoginAndExport delegates to the Browser Singleton and re-exports the
// cookie snapshot (§4.3 "ensure_login").
func (w *Wrapper) ensureLoginAndExport(ctx context.Context, force bool) bool {
	strength := w.browser.CheckLoginStatus(w.cfg.CookiePath)
	if strength == cookie.Strong && !force {
		return true
	}
	res, err := w.browser.GuidedLoginWizard(ctx, 180*time.Second)
	w.eventLog.Emit(state.EventLoginAttempt, map[string]any{"forced": force})
	if err != nil || res.TimedOut {
		w.eventLog.Emit(state.EventLoginResult, map[string]any{"ok": false})
		return false
	}
	if exportErr := w.browser.ExportCookies(ctx, w.cfg.CookiePath); exportErr == nil {
		cookie.WriteLatestPointer(w.cfg.LatestCookiePointer, w.cfg.CookiePath)
	}
	ok := res.Strength == cookie.Strong
	w.eventLog.Emit(state.EventLoginResult, map[string]any{"ok": ok, "strength": string(res.Strength)})
	return ok
}

// EnsureLogin is ensure_login(force) (§4.3), exposed for the Monitor
// Engine's AUTH_REQUIRED escalation.
func (w *Wrapper) EnsureLogin(ctx context.Context, force bool) bool {
	return w.ensureLoginAndExport(ctx, force)
}

// EnsureCompleteCookies is ensure_complete_cookies(force_refresh): re-exports
// and waits up to 5s for a session cookie to appear (§4.3.5).
func (w *Wrapper) EnsureCompleteCookies(ctx context.Context, forceRefresh bool) bool {
	if forceRefresh {
		if err := w.browser.ExportCookies(ctx, w.cfg.CookiePath); err != nil {
			return false
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cookies, err := cookie.ReadNetscape(w.cfg.CookiePath)
		if err == nil && cookie.HasSessionCookie(cookies) {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return false
}

// SetState is set_state, used by the Monitor Engine to publish capacity
// WAITING hints.
func (w *Wrapper) SetState(url string, s state.State) {
	w.registry.SetState(url, s, state.PhaseWaiting, "")
}

// GetRecordingStates is get_recording_states.
func (w *Wrapper) GetRecordingStates() map[string]state.TargetState {
	return w.registry.All()
}

// GetSystemHealth is get_system_health: the registry's counters and state
// counts. The Browser Singleton's context metrics are not included; they are
// read from browser.Singleton.Health.
func (w *Wrapper) GetSystemHealth(idleTargetCount int) state.Health {
	return w.registry.Health(idleTargetCount)
}

// EmergencyReset is emergency_reset (§4.3.6): a no-op (logged) if any job is
// active; otherwise rebuilds both gates, clears locks and states, and emits
// emergency_reset.
func (w *Wrapper) EmergencyReset() {
	if w.ActiveCount() > 0 {
		w.eventLog.Emit(state.EventEmergencyResetSkip, nil)
		return
	}
	w.mu.Lock()
	w.processGate = newCapacityGate(w.cfg.MaxConcurrent)
	w.urlLocks = newURLLocks()
	w.schedGates = sync.Map{}
	w.mu.Unlock()
	w.registry.Reset()
	w.eventLog.Emit(state.EventEmergencyReset, nil)
}

// Shutdown marks the wrapper as shutting down, cancels every active job, and
// waits for them to unwind.
func (w *Wrapper) Shutdown(waitFor time.Duration) {
	w.mu.Lock()
	w.shuttingDown = true
	jobs := make([]*ActiveJob, 0, len(w.activeJobs))
	for _, j := range w.activeJobs {
		jobs = append(jobs, j)
	}
	w.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}

	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if w.ActiveCount() == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
