// Package detector implements the three-stage liveness detector (§4.2):
// an HTTP probe, a headless-browser probe, and a streaming-probe fallback,
// short-circuiting on the first LIVE or AUTH_REQUIRED verdict.
package detector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tomasbasham/twitcastrec/internal/browser"
	"github.com/tomasbasham/twitcastrec/internal/cookie"
	"github.com/tomasbasham/twitcastrec/internal/streamprobe"
)

// Reason is the closed set of liveness verdicts.
type Reason string

const (
	ReasonLive         Reason = "LIVE"
	ReasonNotLive      Reason = "NOT_LIVE"
	ReasonAuthRequired Reason = "AUTH_REQUIRED"
	ReasonNotFound     Reason = "NOT_FOUND"
	ReasonNetworkError Reason = "NETWORK_ERROR"
	ReasonTimeout      Reason = "TIMEOUT"
	ReasonInvalidURL   Reason = "INVALID_URL"
)

// Method records which stage produced the final verdict.
type Method string

const (
	MethodHTTP       Method = "http"
	MethodBrowser    Method = "browser"
	MethodStreamlink Method = "streamlink"
)

// Result is the outcome of Check.
type Result struct {
	IsLive          bool
	MovieID         string
	Reason          Reason
	Detail          string
	Method          Method
	CookieIncomplete bool
}

const maxBodyBytes = 512 * 1024

// gateMarkers are substrings/class names indicating a paywalled or
// membership-gated page (§4.2 stage 1, supplemented per SPEC_FULL.md §4 with
// the original implementation's broader gate vocabulary).
var gateMarkers = []string{
	"member-only",
	"members-only",
	"membership-required",
	"group-only",
	"tw-group-gate",
	"follower-only",
	"login-required",
	"tw-gate-required",
	"tw-membership-gate",
}

// liveMarkers are substrings indicating an in-progress broadcast.
var liveMarkers = []string{
	`"is_live":true`,
	`"isonlive":true`,
	`"onlive":true`,
	`data-is-live="true"`,
	`tw-player-container-live`,
	`live</span>`,
	`js-live-indicator`,
	`"islivebroadcast":true`,
}

var movieIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"movie_id"\s*:\s*"?(\d+)"?`),
	regexp.MustCompile(`data-movie-id="(\d+)"`),
	regexp.MustCompile(`/movie/(\d+)`),
}

var videoElement = regexp.MustCompile(`(?i)<video[\s>]`)

// Config configures the HTTP stage and downstream probes.
type Config struct {
	UserAgent        string
	StreamlinkPath   string
	HTTPTimeout      time.Duration
	BrowserWaitAfter time.Duration
}

// Detector runs the three-stage algorithm against a target URL.
type Detector struct {
	cfg     Config
	client  *http.Client
	browser *browser.Singleton
	probe   *streamprobe.Client
}

// New builds a Detector. browserSingleton and probeClient may be nil in
// tests that only exercise the HTTP stage.
func New(cfg Config, browserSingleton *browser.Singleton, probeClient *streamprobe.Client) *Detector {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.BrowserWaitAfter == 0 {
		cfg.BrowserWaitAfter = 2 * time.Second
	}
	return &Detector{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		browser: browserSingleton,
		probe:   probeClient,
	}
}

// Check runs the full algorithm against url, using cookies for the HTTP
// stage's Cookie header.
func (d *Detector) Check(ctx context.Context, url string, cookies []cookie.Cookie) (Result, error) {
	res, movieID, needsBrowser, err := d.checkHTTP(ctx, url, cookies)
	if err != nil {
		return res, err
	}
	if res.Reason == ReasonLive || res.Reason == ReasonAuthRequired {
		return res, nil
	}
	if !needsBrowser || d.browser == nil {
		return res, nil
	}

	browserRes, browserMovieID, confirmedMovieID := d.checkBrowser(ctx, url, movieID)
	if browserRes.Reason == ReasonLive || browserRes.Reason == ReasonAuthRequired {
		return browserRes, nil
	}
	if !confirmedMovieID || d.probe == nil {
		return browserRes, nil
	}

	return d.checkStreamProbe(ctx, url, browserMovieID, cookies)
}

func (d *Detector) checkHTTP(ctx context.Context, url string, cookies []cookie.Cookie) (Result, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+cacheBuster(), nil)
	if err != nil {
		return Result{Reason: ReasonNetworkError, Detail: err.Error(), Method: MethodHTTP}, "", false, nil
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Referer", url)
	if len(cookies) > 0 {
		req.Header.Set("Cookie", cookie.HeaderValue(cookies))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Reason: ReasonTimeout, Detail: err.Error(), Method: MethodHTTP}, "", false, nil
		}
		return Result{Reason: ReasonNetworkError, Detail: err.Error(), Method: MethodHTTP}, "", false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{
			Reason:           ReasonAuthRequired,
			Method:           MethodHTTP,
			CookieIncomplete: !cookie.HasSessionCookie(cookies),
			Detail:           fmt.Sprintf("http %d", resp.StatusCode),
		}, "", false, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return Result{Reason: ReasonNotFound, Method: MethodHTTP}, "", false, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	lower := strings.ToLower(string(body))

	if containsAny(lower, gateMarkers) {
		return Result{
			Reason:           ReasonAuthRequired,
			Method:           MethodHTTP,
			CookieIncomplete: !cookie.HasSessionCookie(cookies),
		}, "", false, nil
	}

	if containsAny(lower, liveMarkers) || videoElement.MatchString(string(body)) {
		movieID := extractMovieID(string(body))
		return Result{Reason: ReasonLive, Method: MethodHTTP, MovieID: movieID}, movieID, false, nil
	}

	movieID := extractMovieID(string(body))
	return Result{Reason: ReasonNotLive, Method: MethodHTTP, MovieID: movieID}, movieID, movieID != "", nil
}

func cacheBuster() string {
	return "?_=" + strconv.FormatInt(time.Now().Unix(), 10)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func extractMovieID(body string) string {
	for _, re := range movieIDPatterns {
		if m := re.FindStringSubmatch(body); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}
