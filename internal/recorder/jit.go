package recorder

import (
	"context"

	"github.com/tomasbasham/twitcastrec/internal/state"
)

// jitRetry performs the single permitted just-in-time retry (§4.3.5) after
// an early-fail reason: force a login refresh, wait for the cookie snapshot
// to regain a session cookie, and invoke the subprocess once more — forcing
// a neutral "best" quality if the original failure was bad_format.
func (w *Wrapper) jitRetry(ctx context.Context, url, jobID string, opts StartRecordOptions, firstReason string) Result {
	w.eventLog.Emit(state.EventJITRetryStart, map[string]any{"url": url, "job_id": jobID, "first_reason": firstReason})

	w.ensureLoginAndExport(ctx, true)
	w.EnsureCompleteCookies(ctx, true)

	quality := ""
	if firstReason == "bad_format" {
		quality = "best"
	}
	result := w.record(ctx, url, jobID, opts, quality)
	result.RetryCount = 1

	w.eventLog.Emit(state.EventJITRetryResult, map[string]any{"url": url, "job_id": jobID, "ok": result.OK, "reason": result.Reason})
	return result
}
