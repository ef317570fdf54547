// Package browser implements the process-wide Browser Singleton (§4.1): at
// most one headless and one visible chromedp context, with cookie migration
// between them, health checks with one-shot recovery, and a guided login
// wizard.
package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
)

// Mode identifies which context is "current".
type Mode string

const (
	ModeHeadless Mode = "headless"
	ModeVisible  Mode = "visible"
)

// contextState mirrors the original chrome_pool.py's ContextState enum,
// tracked per mode for get_system_health() visibility.
type contextState string

const (
	stateIdle      contextState = "idle"
	stateRecording contextState = "recording"
	stateLogin     contextState = "login"
	stateError     contextState = "error"
)

// ErrUnavailable is returned by any Singleton operation that fails; callers
// treat it as retryable once (§4.1 "Failure model").
var ErrUnavailable = errors.New("browser: unavailable")

// Config configures context creation.
type Config struct {
	UserDataDir string
	UserAgent   string
	ViewportW   int64
	ViewportH   int64
	Locale      string
	Timezone    string
	Domain      string // cookie-export domain filter, e.g. "twitcasting.tv"
	LoginURL    string
	AccountURL  string

	// CookiePath, when set, is where GuidedLoginWizard persists the cookie
	// snapshot immediately after a confirmed login (§4.1 "Guided login"),
	// ahead of the caller's own post-login export.
	CookiePath string
}

// ctxHandle bundles a chromedp context with its teardown and bookkeeping.
type ctxHandle struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	createdAt time.Time
	state     contextState
	reuse     int
	errors    int
}

func (h *ctxHandle) close() {
	if h == nil {
		return
	}
	if h.cancelTab != nil {
		h.cancelTab()
	}
	if h.cancelAlloc != nil {
		h.cancelAlloc()
	}
}

// Metrics is the subset of per-context bookkeeping exposed to health
// queries, grounded on original_source/chrome_pool.py's ContextMetrics.
type Metrics struct {
	CreatedAt time.Time
	ReuseCount int
	ErrorCount int
	State      string
}

// Singleton owns at most one headless and one visible context. Mode
// switching is serialized by mu, matching §5 "Shared resources": "switching
// is serialized by an internal async lock inside the singleton."
type Singleton struct {
	cfg Config
	log *zap.SugaredLogger

	mu       sync.Mutex
	headless *ctxHandle
	visible  *ctxHandle
	current  Mode
}

// New creates a Singleton. No browser process is started until the first
// EnsureHeadless/EnsureVisible call.
func New(cfg Config, log *zap.SugaredLogger) *Singleton {
	if cfg.ViewportW == 0 || cfg.ViewportH == 0 {
		cfg.ViewportW, cfg.ViewportH = 1280, 720
	}
	return &Singleton{cfg: cfg, log: log}
}

// EnsureHeadless returns a healthy headless context, creating or recreating
// it as needed. A freshly created context migrates cookies from the visible
// context first if one is live (§4.1 "Mode switching"), mirroring
// EnsureVisible's headless->visible migration in the other direction — this
// is what lets a just-completed GuidedLoginWizard's session survive into the
// headless context the liveness detector and recording precondition check
// actually use.
func (s *Singleton) EnsureHeadless(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.headless != nil && s.healthCheck(s.headless) {
		s.headless.reuse++
		s.current = ModeHeadless
		return s.headless.tabCtx, nil
	}

	var migrated []*network.Cookie
	if s.visible != nil && s.healthCheck(s.visible) {
		cookies, err := fetchCookies(s.visible.tabCtx)
		if err == nil {
			migrated = cookies
		} else if s.log != nil {
			s.log.Warnw("cookie fetch before mode switch failed", "error", err)
		}
	}

	h, err := s.createWithRecovery(ctx, true)
	if err != nil {
		return nil, err
	}

	if len(migrated) > 0 {
		if err := addCookies(h.tabCtx, migrated); err != nil && s.log != nil {
			s.log.Warnw("cookie migration into headless context failed", "error", err)
		}
	}

	old := s.headless
	s.headless = h
	s.current = ModeHeadless
	old.close()

	return h.tabCtx, nil
}

// EnsureVisible returns a healthy visible context, migrating cookies from the
// headless context first if one is live (§4.1 "Mode switching").
func (s *Singleton) EnsureVisible(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visible != nil && s.healthCheck(s.visible) {
		s.visible.reuse++
		s.current = ModeVisible
		return s.visible.tabCtx, nil
	}

	var migrated []*network.Cookie
	if s.headless != nil && s.healthCheck(s.headless) {
		cookies, err := fetchCookies(s.headless.tabCtx)
		if err == nil {
			migrated = cookies
		} else if s.log != nil {
			s.log.Warnw("cookie fetch before mode switch failed", "error", err)
		}
	}

	h, err := s.createWithRecovery(ctx, false)
	if err != nil {
		return nil, err
	}

	if len(migrated) > 0 {
		if err := addCookies(h.tabCtx, migrated); err != nil && s.log != nil {
			s.log.Warnw("cookie migration into visible context failed", "error", err)
		}
	}

	// createWithRecovery returns only a context whose viewport emulation
	// succeeded. The handle closed here is the previous visible context; the
	// headless context the cookies were migrated from is left open.
	old := s.visible
	s.visible = h
	s.current = ModeVisible
	old.close()

	return h.tabCtx, nil
}

// migrateVisibleIntoFreshHeadless forces a new headless context seeded with
// cookies, replacing any existing one unconditionally. Unlike EnsureHeadless
// (which only migrates when it happens to need to recreate the context),
// this is called right after a confirmed login so the next EnsureHeadless
// call never races a headless profile that pre-dates the login.
func (s *Singleton) migrateVisibleIntoFreshHeadless(ctx context.Context, cookies []*network.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.createWithRecovery(ctx, true)
	if err != nil {
		return err
	}

	if len(cookies) > 0 {
		if err := addCookies(h.tabCtx, cookies); err != nil {
			h.close()
			return fmt.Errorf("browser: seed cookies into fresh headless context: %w", err)
		}
	}

	old := s.headless
	s.headless = h
	old.close()
	return nil
}

// createWithRecovery creates a context, retrying once on failure per the
// Browser Singleton's recovery policy. A second consecutive failure whose
// error matches the "send on a closed channel" shape triggers an emergency
// restart (stop-sleep-relaunch) before a final attempt.
func (s *Singleton) createWithRecovery(ctx context.Context, headless bool) (*ctxHandle, error) {
	h, err := s.create(ctx, headless)
	if err == nil {
		return h, nil
	}
	if s.log != nil {
		s.log.Warnw("browser context creation failed, recovering", "headless", headless, "error", err)
	}

	h, err2 := s.create(ctx, headless)
	if err2 == nil {
		return h, nil
	}

	if isClosedChannelShape(err2) {
		if s.log != nil {
			s.log.Errorw("emergency browser restart", "error", err2)
		}
		s.emergencyRestart()
		h, err3 := s.create(ctx, headless)
		if err3 == nil {
			return h, nil
		}
		return nil, fmt.Errorf("%w: emergency restart failed: %v", ErrUnavailable, err3)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err2)
}

// create launches a fresh allocator+tab context in the requested mode.
func (s *Singleton) create(parent context.Context, headless bool) (*ctxHandle, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserDataDir(s.userDataDir(headless)),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)

	// Suppress chromedp's internal error logging for CDP events it cannot
	// unmarshal, mirroring internal/capture/capture.go's WithLogf/WithErrorf
	// no-op suppression — these arise from Chrome/cdproto version skew and
	// are harmless.
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...any) {}),
		chromedp.WithErrorf(func(string, ...any) {}),
		chromedp.WithDebugf(func(string, ...any) {}),
	)

	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(s.cfg.ViewportW, s.cfg.ViewportH)); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser: create context: %w", err)
	}

	return &ctxHandle{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		createdAt:   time.Now(),
		state:       stateIdle,
	}, nil
}

func (s *Singleton) userDataDir(headless bool) string {
	sub := "visible"
	if headless {
		sub = "headless"
	}
	return filepath.Join(s.cfg.UserDataDir, sub)
}

// healthCheck implements §4.1: alive iff a lightweight page evaluation
// completes within 2s. Errors increment the handle's error counter.
func (s *Singleton) healthCheck(h *ctxHandle) bool {
	if h == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(h.tabCtx, 2*time.Second)
	defer cancel()

	var result int
	err := chromedp.Run(ctx, chromedp.Evaluate(`1+1`, &result))
	if err != nil || result != 2 {
		h.errors++
		return false
	}
	return true
}

// emergencyRestart tears down every context and waits before the caller
// retries creation, per §4.1's "stop the driver entirely, sleep 1s, relaunch".
func (s *Singleton) emergencyRestart() {
	s.headless.close()
	s.visible.close()
	s.headless = nil
	s.visible = nil
	time.Sleep(1 * time.Second)
}

// isClosedChannelShape reports whether err looks like chromedp's
// characteristic failure when the underlying driver process has already
// exited ("send on closed channel" panics surfaced as errors by the CDP
// transport).
func isClosedChannelShape(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "closed channel") || strings.Contains(msg, "context canceled")
}

// ExportCookies writes a domain-filtered Netscape snapshot from the current
// mode's context to path.
func (s *Singleton) ExportCookies(ctx context.Context, path string) error {
	s.mu.Lock()
	h := s.headless
	if s.current == ModeVisible && s.visible != nil {
		h = s.visible
	}
	s.mu.Unlock()

	if h == nil {
		return fmt.Errorf("%w: no active context", ErrUnavailable)
	}

	cookies, err := fetchCookies(h.tabCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []cookie.Cookie
	for _, c := range cookies {
		if s.cfg.Domain != "" && !strings.Contains(c.Domain, s.cfg.Domain) {
			continue
		}
		out = append(out, cookie.Cookie{
			Domain:     c.Domain,
			IncludeSub: strings.HasPrefix(c.Domain, "."),
			Path:       c.Path,
			Secure:     c.Secure,
			Expires:    int64(c.Expires),
			Name:       c.Name,
			Value:      c.Value,
		})
	}

	return cookie.WriteNetscape(path, out)
}

// CheckLoginStatus inspects the persisted cookie jar at path without
// launching a context (§4.1). A missing file classifies as None.
func (s *Singleton) CheckLoginStatus(path string) cookie.Strength {
	cookies, err := cookie.ReadNetscape(path)
	if err != nil {
		return cookie.None
	}
	return cookie.Classify(cookies)
}

func fetchCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		c, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = c
		return nil
	}))
	return cookies, err
}

func addCookies(ctx context.Context, cookies []*network.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}
