package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// Registry is the Recorder Wrapper's authoritative map of canonical URL to
// TargetState, plus the counters get_system_health() reports. It is the
// single owner of Target State entries (§3 "Ownership").
type Registry struct {
	mu     sync.RWMutex
	states map[string]*TargetState
	log    *EventLog

	totalChecks    int64
	totalSuccesses int64
	totalErrors    int64
	recoveryCount  int64
}

// NewRegistry creates an empty Registry that emits state_transition events
// through log (which may be nil in tests that don't care about the log).
func NewRegistry(log *EventLog) *Registry {
	return &Registry{states: make(map[string]*TargetState), log: log}
}

// Get returns a copy of the TargetState for url, defaulting to IDLE/IDLE if
// unseen.
func (r *Registry) Get(url string) TargetState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ts, ok := r.states[url]; ok {
		return *ts
	}
	return TargetState{CanonicalURL: url, State: StateIdle, Phase: PhaseIdle}
}

// SetState transitions url to state/phase, recording the change and emitting
// a state_transition event. reason is optional context persisted on the
// TargetState and included in the event payload.
func (r *Registry) SetState(url string, s State, p Phase, reason string) {
	r.mu.Lock()
	ts, ok := r.states[url]
	if !ok {
		ts = &TargetState{CanonicalURL: url}
		r.states[url] = ts
	}
	prevState, prevPhase := ts.State, ts.Phase
	ts.State = s
	ts.Phase = p
	ts.UpdatedAt = time.Now()
	if reason != "" {
		ts.LastReason = reason
	}
	r.mu.Unlock()

	if r.log != nil && (prevState != s || prevPhase != p) {
		r.log.Emit(EventStateTransition, map[string]any{
			"url":        url,
			"from_state": string(prevState),
			"to_state":   string(s),
			"from_phase": string(prevPhase),
			"to_phase":   string(p),
			"reason":     reason,
		})
	}
}

// All returns a snapshot of every known TargetState, keyed by canonical URL
// (get_recording_states()).
func (r *Registry) All() map[string]TargetState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]TargetState, len(r.states))
	for k, v := range r.states {
		out[k] = *v
	}
	return out
}

// ActiveCount returns the number of URLs currently in an active state
// (STARTING or RECORDING) — invariant 1 in spec.md §8.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ts := range r.states {
		if ts.State.IsActive() {
			n++
		}
	}
	return n
}

// Reset clears every known TargetState (used by emergency_reset when no jobs
// are active).
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]*TargetState)
}

// IncChecks, IncSuccesses, IncErrors, IncRecoveries update the counters
// surfaced via Health.
func (r *Registry) IncChecks(n int64)     { atomic.AddInt64(&r.totalChecks, n) }
func (r *Registry) IncSuccesses(n int64)  { atomic.AddInt64(&r.totalSuccesses, n) }
func (r *Registry) IncErrors(n int64)     { atomic.AddInt64(&r.totalErrors, n) }
func (r *Registry) IncRecoveries(n int64) { atomic.AddInt64(&r.recoveryCount, n) }

// Health is the snapshot returned by get_system_health().
type Health struct {
	StateCounts    map[State]int `json:"state_counts"`
	TotalChecks    int64         `json:"total_checks"`
	TotalSuccesses int64         `json:"total_successes"`
	TotalErrors    int64         `json:"total_errors"`
	RecoveryCount  int64         `json:"recovery_count"`
}

// Health returns a snapshot of per-state counts over every known target plus
// running totals. idleTargetCount is the number of configured targets with no
// TargetState entry yet (counted as IDLE) — used so
// emergency_reset()'s invariant (state_counts.idle == len(targets)) holds
// even for targets never yet checked.
func (r *Registry) Health(idleTargetCount int) Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[State]int{
		StateIdle: idleTargetCount,
	}
	for _, ts := range r.states {
		counts[ts.State]++
	}

	return Health{
		StateCounts:    counts,
		TotalChecks:    atomic.LoadInt64(&r.totalChecks),
		TotalSuccesses: atomic.LoadInt64(&r.totalSuccesses),
		TotalErrors:    atomic.LoadInt64(&r.totalErrors),
		RecoveryCount:  atomic.LoadInt64(&r.recoveryCount),
	}
}
