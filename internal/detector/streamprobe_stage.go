package detector

import (
	"context"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
	"github.com/tomasbasham/twitcastrec/internal/streamprobe"
)

const defaultStreamProbeTimeout = 15

// checkStreamProbe invokes the streaming-probe fallback (§4.2 stage 3),
// mapping its result onto the detector's Reason/Method vocabulary.
func (d *Detector) checkStreamProbe(ctx context.Context, url, movieID string, cookies []cookie.Cookie) (Result, error) {
	probeRes, err := d.probe.Probe(ctx, url, cookie.HeaderValue(cookies), d.cfg.UserAgent, url, defaultStreamProbeTimeout)
	if err != nil {
		return Result{Reason: ReasonNetworkError, Method: MethodStreamlink, Detail: err.Error()}, nil
	}

	switch probeRes.Reason {
	case streamprobe.ReasonLive:
		return Result{Reason: ReasonLive, Method: MethodStreamlink, MovieID: movieID}, nil
	case streamprobe.ReasonAuthRequired:
		return Result{Reason: ReasonAuthRequired, Method: MethodStreamlink, Detail: probeRes.Detail}, nil
	case streamprobe.ReasonNotFound:
		return Result{Reason: ReasonNotFound, Method: MethodStreamlink, Detail: probeRes.Detail}, nil
	default:
		return Result{Reason: ReasonNotLive, Method: MethodStreamlink, MovieID: movieID, Detail: probeRes.Detail}, nil
	}
}
