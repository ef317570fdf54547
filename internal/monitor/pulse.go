package monitor

import (
	"context"
	"time"

	"github.com/tomasbasham/twitcastrec/internal/state"
)

// pulseLoop writes the heartbeat every 10s regardless of poll activity
// (§4.4.3), so long recordings never starve the UI's staleness check.
func (e *Engine) pulseLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.writeHeartbeat()
		}
	}
}

// watchdogLoop computes idle_seconds every 10s and triggers recovery when it
// exceeds idleRecoveryThreshold with no active jobs (§4.4.4).
func (e *Engine) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.idleSeconds() > idleRecoveryThreshold.Seconds() && e.wrapper.ActiveCount() == 0 {
				e.recover(ctx, "idle_watchdog")
			}
		}
	}
}

// recover implements the shared recovery routine used by both the
// consecutive-timeout escalation and the idle watchdog: reset counters,
// force a login refresh, and rebuild the wrapper's gates.
func (e *Engine) recover(ctx context.Context, trigger string) {
	e.setState(EngineRecovering)
	e.eventLog.Emit(state.EventRecovery, map[string]any{"trigger": trigger})

	e.consecutiveReset()
	e.wrapper.EnsureLogin(ctx, true)
	e.wrapper.EmergencyReset()
	e.registry.IncRecoveries(1)

	e.markActivity()
	e.setState(EngineRunning)
}
