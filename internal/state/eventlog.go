package state

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event names used across the recorder and monitor event logs (§4.5). Kept
// as a closed set of string constants so producers and the UI agree on
// spelling.
const (
	EventStateTransition    = "state_transition"
	EventRecordingStart     = "recording_start"
	EventRecordingResult    = "recording_result"
	EventRecordingCancelled = "recording_cancelled"
	EventHLSTimeout         = "hls_timeout"
	EventFileStallDetected  = "file_stall_detected"
	EventJITRetryStart      = "jit_retry_start"
	EventJITRetryResult     = "jit_retry_result"
	EventLoginAttempt       = "login_attempt"
	EventLoginResult        = "login_result"
	EventAuthRequiredGiveup = "auth_required_giveup"
	EventEmergencyReset     = "emergency_reset"
	EventEmergencyResetSkip = "emergency_reset_skipped"
	EventCookieExport       = "cookie_export"
	EventCookieVerifyWait   = "cookie_verify_wait"
	EventCapacityWait       = "capacity_wait"
	EventRecovery           = "recovery"
	EventRecoveryRestart    = "recovery_restart"
	EventDetectorCheck      = "detector_check"
	EventBackupFailed       = "backup_failed"
)

// EventLog is an append-only newline-delimited JSON log, rotated by
// lumberjack at a size cap with an additional day-boundary rotation check
// (lumberjack rotates on size alone).
type EventLog struct {
	mu      sync.Mutex
	logger  *lumberjack.Logger
	day     string
	pathFmt string
}

// NewEventLog opens an event log whose filename is derived from pathFmt, a
// fmt.Sprintf template taking the current date as "20060102" (e.g.
// "/data/wrapper_%s.jsonl"). maxMB caps a single file's size before
// lumberjack rotates it; per spec.md §4.5 this is 100. A log with a fixed
// name that never rotates by day (the GUI bridge log) can pass a template
// with no visible "%s", e.g. "monitor_gui_bridge%.0s.jsonl".
func NewEventLog(pathFmt string, maxMB int) *EventLog {
	day := time.Now().UTC().Format("20060102")
	return &EventLog{
		logger:  &lumberjack.Logger{Filename: fmt.Sprintf(pathFmt, day), MaxSize: maxMB, MaxBackups: 30, Compress: true},
		day:     day,
		pathFmt: pathFmt,
	}
}

// Emit appends one event line: {ts, event, ...payload fields}. payload may
// be nil. A nil *EventLog discards the event.
func (l *EventLog) Emit(event string, payload map[string]any) error {
	if l == nil {
		return nil
	}
	rec := map[string]any{"event": event}
	for k, v := range payload {
		rec[k] = v
	}
	return l.emitRecord(rec)
}

// emitRaw appends a line with only {ts, ...payload}, used by GUIBridge whose
// wire format has no "event" field.
func (l *EventLog) emitRaw(payload map[string]any) error {
	rec := map[string]any{}
	for k, v := range payload {
		rec[k] = v
	}
	return l.emitRecord(rec)
}

func (l *EventLog) emitRecord(rec map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rotateOnDayBoundary()

	rec["ts"] = time.Now().UTC().Unix()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("state: marshal event record: %w", err)
	}
	line = append(line, '\n')

	_, err = l.logger.Write(line)
	return err
}

// rotateOnDayBoundary re-points the underlying lumberjack logger at a new
// file when the UTC day has rolled over, since lumberjack itself only
// rotates on size. Must be called with l.mu held.
func (l *EventLog) rotateOnDayBoundary() {
	day := time.Now().UTC().Format("20060102")
	if day == l.day {
		return
	}
	l.logger.Close()
	l.day = day
	l.logger = &lumberjack.Logger{
		Filename:   fmt.Sprintf(l.pathFmt, day),
		MaxSize:    l.logger.MaxSize,
		MaxBackups: l.logger.MaxBackups,
		Compress:   l.logger.Compress,
	}
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger.Close()
}

// GUIBridge emits the two-line-per-recording bridge log consumed by the
// desktop UI: one on recording start, one on terminal state.
type GUIBridge struct {
	log *EventLog
}

// NewGUIBridge wraps an EventLog (typically pointed at
// monitor_gui_bridge.jsonl) as the GUI-bridge emitter.
func NewGUIBridge(log *EventLog) *GUIBridge {
	return &GUIBridge{log: log}
}

// Started records a GUI-STATE line with recording=true.
func (b *GUIBridge) Started(url, jobID, sessionID string) error {
	return b.log.emitRaw(map[string]any{
		"type":       "GUI-STATE",
		"recording":  true,
		"url":        url,
		"job_id":     jobID,
		"session_id": sessionID,
	})
}

// Stopped records a GUI-STATE line with recording=false and the outcome.
func (b *GUIBridge) Stopped(url, jobID, sessionID string, ok bool) error {
	return b.log.emitRaw(map[string]any{
		"type":       "GUI-STATE",
		"recording":  false,
		"url":        url,
		"job_id":     jobID,
		"session_id": sessionID,
		"ok":         ok,
	})
}
