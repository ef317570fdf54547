package monitor

import (
	"time"

	"github.com/tomasbasham/twitcastrec/internal/state"
)

// Stop is stop() (§4.4.5): idempotent. Signals the running loops, waits up
// to stopGracePeriod for active jobs to finish, shuts the wrapper down
// (which cancels any jobs still running), then writes a final heartbeat with
// active_jobs=0.
func (e *Engine) Stop() {
	if e.state() == EngineStopped || e.state() == EngineStopping {
		return
	}
	e.setState(EngineStopping)
	close(e.stopCh)

	deadline := time.Now().Add(stopGracePeriod)
	for time.Now().Before(deadline) {
		if e.wrapper.ActiveCount() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	e.wrapper.Shutdown(stopGracePeriod)

	health := e.GetHealthStatus()
	e.hbWriter.Write(state.Heartbeat{
		TS:             time.Now().Unix(),
		State:          string(EngineStopped),
		ActiveJobs:     0,
		Targets:        len(e.targetsSnapshot()),
		MaxConcurrent:  int(e.cfg.MaxConcurrent),
		TotalChecks:    health.TotalChecks,
		TotalSuccesses: health.TotalSuccesses,
		TotalErrors:    health.TotalErrors,
		RecoveryCount:  health.RecoveryCount,
		LastActivity:   time.Now().Unix(),
	})

	e.setState(EngineStopped)
	close(e.doneCh)
}
