package detector

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// evalScript inspects globals, data attributes, inline script JSON, and any
// <video> element for a live flag and movie id (§4.2 stage 2).
const evalScript = `(() => {
  const out = {live: false, movieId: null};
  try {
    if (window.__NEXT_DATA__ || window.INITIAL_STATE) {
      const blob = JSON.stringify(window.__NEXT_DATA__ || window.INITIAL_STATE);
      if (/"is_?live"\s*:\s*true/i.test(blob) || /"onLive"\s*:\s*true/i.test(blob)) out.live = true;
      const m = blob.match(/"movie_id"\s*:\s*"?(\d+)"?/);
      if (m) out.movieId = m[1];
    }
    const el = document.querySelector('[data-is-live]');
    if (el && el.getAttribute('data-is-live') === 'true') out.live = true;
    const video = document.querySelector('video');
    if (video && video.src) out.live = true;
    if (!out.movieId) {
      const dm = document.querySelector('[data-movie-id]');
      if (dm) out.movieId = dm.getAttribute('data-movie-id');
    }
  } catch (e) {}
  return out;
})()`

type evalResult struct {
	Live    bool   `json:"live"`
	MovieID string `json:"movieId"`
}

// checkBrowser navigates the headless context to url, waits for the page to
// settle, and evaluates evalScript. priorMovieID carries a movie id found by
// an earlier stage forward if the page script doesn't find one itself.
func (d *Detector) checkBrowser(ctx context.Context, url, priorMovieID string) (Result, string, bool) {
	tabCtx, err := d.browser.EnsureHeadless(ctx)
	if err != nil {
		return Result{Reason: ReasonNetworkError, Method: MethodBrowser, Detail: err.Error()}, priorMovieID, priorMovieID != ""
	}

	var res evalResult
	var body string
	runErr := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(d.cfg.BrowserWaitAfter),
		chromedp.Evaluate(evalScript, &res),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	)
	if runErr != nil {
		return Result{Reason: ReasonNetworkError, Method: MethodBrowser, Detail: runErr.Error()}, priorMovieID, priorMovieID != ""
	}

	movieID := res.MovieID
	if movieID == "" {
		movieID = priorMovieID
	}

	if res.Live {
		return Result{Reason: ReasonLive, Method: MethodBrowser, MovieID: movieID}, movieID, true
	}

	if containsAny(strings.ToLower(body), gateMarkers) {
		return Result{Reason: ReasonAuthRequired, Method: MethodBrowser}, movieID, false
	}

	return Result{Reason: ReasonNotLive, Method: MethodBrowser, MovieID: movieID}, movieID, movieID != ""
}
