package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
)

// LoginResult is returned by GuidedLoginWizard.
type LoginResult struct {
	Strength cookie.Strength
	TimedOut bool
}

// GuidedLoginWizard opens the visible context on the login page and waits up
// to timeout for the user to complete authentication, detected by the
// appearance of a primary session cookie (§4.1 "Guided login"). A 3s grace
// period is applied before the first check to let the initial navigation and
// any redirect chain settle, then the session cookie is polled every second.
func (s *Singleton) GuidedLoginWizard(ctx context.Context, timeout time.Duration) (LoginResult, error) {
	tabCtx, err := s.EnsureVisible(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	if err := chromedp.Run(tabCtx, chromedp.Navigate(s.cfg.LoginURL)); err != nil {
		return LoginResult{}, fmt.Errorf("browser: navigate to login page: %w", err)
	}

	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return LoginResult{}, ctx.Err()
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		cookies, err := fetchCookies(tabCtx)
		if err == nil && cookie.HasSessionCookie(toCookieSlice(cookies)) {
			return s.finishLogin(ctx, tabCtx)
		}

		if time.Now().After(deadline) {
			return LoginResult{TimedOut: true, Strength: cookie.None}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return LoginResult{}, ctx.Err()
		}
	}
}

// finishLogin confirms the session survives navigation away from the login
// page (§4.1 "Guided login"): once the login page shows a session cookie,
// navigate to the account page and wait up to 10s for a primary session
// cookie (_twitcasting_session, or tc_ss as an equivalent strong signal) to
// still be present there. A cookie that only ever appeared on the login page
// is not trusted. On confirmation the snapshot is persisted and migrated
// into a fresh headless context, so the recording precondition check and the
// liveness detector's browser stage see the logged-in session immediately
// rather than racing the stale pre-login headless profile.
func (s *Singleton) finishLogin(ctx context.Context, tabCtx context.Context) (LoginResult, error) {
	if err := chromedp.Run(tabCtx, chromedp.Navigate(s.cfg.AccountURL)); err != nil {
		return LoginResult{}, fmt.Errorf("browser: navigate to account page: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	var latest []*network.Cookie
	for {
		cookies, err := fetchCookies(tabCtx)
		if err == nil {
			latest = cookies
			if cookie.HasSessionCookie(toCookieSlice(cookies)) {
				break
			}
		}
		if time.Now().After(deadline) {
			return LoginResult{TimedOut: true, Strength: cookie.Classify(toCookieSlice(latest))}, nil
		}
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return LoginResult{}, ctx.Err()
		}
	}

	strength := cookie.Classify(toCookieSlice(latest))

	if s.cfg.CookiePath != "" {
		if err := s.ExportCookies(ctx, s.cfg.CookiePath); err != nil && s.log != nil {
			s.log.Warnw("persist storage state after login failed", "error", err)
		}
	}

	if err := s.migrateVisibleIntoFreshHeadless(ctx, latest); err != nil && s.log != nil {
		s.log.Warnw("cookie migration into headless context after login failed", "error", err)
	}

	return LoginResult{Strength: strength}, nil
}

func rank(s cookie.Strength) int {
	switch s {
	case cookie.Strong:
		return 2
	case cookie.Weak:
		return 1
	default:
		return 0
	}
}

func toCookieSlice(cookies []*network.Cookie) []cookie.Cookie {
	out := make([]cookie.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, cookie.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure})
	}
	return out
}
