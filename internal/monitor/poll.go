package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
	"github.com/tomasbasham/twitcastrec/internal/detector"
	"github.com/tomasbasham/twitcastrec/internal/recorder"
	"github.com/tomasbasham/twitcastrec/internal/state"
)

// pollLoop is the poll cycle (§4.4.1): every PollInterval, check every
// inactive target concurrently and dispatch whatever reports LIVE, subject
// to the wrapper's capacity.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if e.state() == EngineStopping {
				return
			}
			e.runCycle(ctx)
		}
	}
}

type checkOutcome struct {
	url    string
	result detector.Result
	err    error
}

// runCycle performs one poll cycle.
func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	e.reLoginAttempts = make(map[string]int)
	e.mu.Unlock()

	targets := e.targetsSnapshot()
	active := e.wrapper.GetRecordingStates()

	var pending []string
	for _, url := range targets {
		if ts, ok := active[url]; ok && ts.State.IsActive() {
			continue
		}
		pending = append(pending, url)
	}
	if len(pending) == 0 {
		e.writeHeartbeat()
		return
	}

	cookies, _ := cookie.ReadNetscape(e.cfg.CookiePath)

	outcomes := make([]checkOutcome, len(pending))
	var wg sync.WaitGroup
	for i, url := range pending {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, livenessCheckTimeout)
			defer cancel()
			res, err := e.det.Check(checkCtx, url, cookies)
			outcomes[i] = checkOutcome{url: url, result: res, err: err}
		}(i, url)
	}
	wg.Wait()

	var live []string
	for _, o := range outcomes {
		e.registry.IncChecks(1)
		if o.err != nil || o.result.Reason == detector.ReasonTimeout {
			e.handleTimeout()
			continue
		}
		e.consecutiveReset()

		switch o.result.Reason {
		case detector.ReasonLive:
			e.registry.IncSuccesses(1)
			live = append(live, o.url)
		case detector.ReasonAuthRequired:
			e.escalateAuthRequired(ctx, o.url)
		default:
			e.registry.IncSuccesses(1)
		}
		e.eventLog.Emit(state.EventDetectorCheck, map[string]any{
			"url": o.url, "reason": string(o.result.Reason), "method": string(o.result.Method),
		})
	}

	e.dispatch(ctx, live)
	e.markActivity()
	e.writeHeartbeat()
}

// dispatch starts recordings for live targets in iteration order, subject to
// max_concurrent; overflow targets are published as WAITING (§4.4.1 step 3).
func (e *Engine) dispatch(ctx context.Context, live []string) {
	for _, url := range live {
		if int64(e.wrapper.ActiveCount()) >= e.cfg.MaxConcurrent {
			e.wrapper.SetState(url, state.StateWaiting)
			e.eventLog.Emit(state.EventCapacityWait, map[string]any{"url": url})
			continue
		}

		recordCtx := context.Background()
		go func(url string) {
			e.wrapper.StartRecord(recordCtx, recorder.StartRecordOptions{URL: url})
		}(url)
	}
}

// handleTimeout increments the consecutive-timeout counter and triggers
// recovery once it reaches consecutiveTimeoutCap with no active jobs
// (§4.4.2).
func (e *Engine) handleTimeout() {
	e.mu.Lock()
	e.consecutiveTimeouts++
	n := e.consecutiveTimeouts
	e.mu.Unlock()

	if n >= consecutiveTimeoutCap && e.wrapper.ActiveCount() == 0 {
		e.recover(context.Background(), "consecutive_timeouts")
	}
}

func (e *Engine) consecutiveReset() {
	e.mu.Lock()
	e.consecutiveTimeouts = 0
	e.mu.Unlock()
}

// escalateAuthRequired is the AUTH_REQUIRED escalation path (§4.4.2): a
// forced login, a settle delay, a cookie re-export, and a single recheck,
// capped at maxReLoginPerCycle attempts per URL per cycle.
func (e *Engine) escalateAuthRequired(ctx context.Context, url string) {
	e.mu.Lock()
	attempts := e.reLoginAttempts[url]
	if attempts >= maxReLoginPerCycle {
		e.mu.Unlock()
		e.eventLog.Emit(state.EventAuthRequiredGiveup, map[string]any{"url": url})
		return
	}
	e.reLoginAttempts[url] = attempts + 1
	e.mu.Unlock()

	e.wrapper.EnsureLogin(ctx, true)

	select {
	case <-time.After(authEscalationSettle):
	case <-ctx.Done():
		return
	}

	e.wrapper.EnsureCompleteCookies(ctx, true)

	cookies, _ := cookie.ReadNetscape(e.cfg.CookiePath)
	checkCtx, cancel := context.WithTimeout(ctx, livenessCheckTimeout)
	defer cancel()
	res, err := e.det.Check(checkCtx, url, cookies)
	if err == nil && res.Reason == detector.ReasonLive {
		e.dispatch(ctx, []string{url})
	}
}
