package session

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// VerifyResult distinguishes why a session check passed or failed.
// Both failure outcomes mean "not authenticated"; they differ only for
// diagnostics.
type VerifyResult int

const (
	// VerifyAuthenticated means the authenticated-UI indicator appeared.
	VerifyAuthenticated VerifyResult = iota

	// VerifyLoginRedirect means the service bounced us to its login page.
	VerifyLoginRedirect

	// VerifyIndicatorMissing means the indicator never appeared and the
	// final URL gave no explicit explanation.
	VerifyIndicatorMissing
)

// Authenticated reports whether the result indicates a usable session.
func (r VerifyResult) Authenticated() bool {
	return r == VerifyAuthenticated
}

// ManualLoginFunc notifies the surrounding application that a human
// must complete authentication in the visible browser window. It may
// block until the human is done; AutoReauth detects completion by
// polling independently.
type ManualLoginFunc func(ctx context.Context, page playwright.Page, serviceID string)

const (
	defaultReauthCeiling = 300 * time.Second
	reauthPollInterval   = 5 * time.Second
	verifyProbeTimeout   = 10 * time.Second
)

// Verify navigates to the service's canonical URL and waits up to
// timeout for its authenticated-UI indicator.
func (s *Store) Verify(page playwright.Page, serviceID string, timeout time.Duration) VerifyResult {
	prof, ok := s.catalog.Lookup(serviceID)
	if !ok {
		s.log.Warnf("No profile for %s, cannot verify session", serviceID)
		return VerifyIndicatorMissing
	}

	if _, err := page.Goto(prof.BaseURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		s.log.Errorf("Session verification navigation failed for %s: %v", serviceID, err)
		return VerifyIndicatorMissing
	}

	_, err := page.WaitForSelector(prof.AuthIndicator, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err == nil {
		s.log.Infof("Session verified for %s", serviceID)
		return VerifyAuthenticated
	}

	if prof.LoginURL != "" && strings.Contains(page.URL(), prof.LoginURL) {
		s.log.Infof("Redirected to login page for %s", serviceID)
		return VerifyLoginRedirect
	}

	s.log.Warnf("Auth indicator not found for %s", serviceID)
	return VerifyIndicatorMissing
}

// AutoReauth re-establishes authentication for a service. If the
// current session verifies it returns true immediately. Otherwise the
// stale record is invalidated and, when a manual-login notifier is
// supplied, AutoReauth blocks — polling Verify every 5s up to a 300s
// ceiling — until the human finishes or the ceiling elapses. On
// success a fresh session is saved from the page's context. With no
// notifier, failure is immediate.
func (s *Store) AutoReauth(ctx context.Context, page playwright.Page, serviceID string, manualLogin ManualLoginFunc) bool {
	s.log.Infof("Attempting re-authentication for %s", serviceID)

	if s.Verify(page, serviceID, verifyProbeTimeout).Authenticated() {
		return true
	}

	s.Invalidate(serviceID)

	if manualLogin == nil {
		return false
	}

	s.log.Infof("Manual login required for %s", serviceID)

	// The callback must not outlive this wait, whichever way it ends.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go manualLogin(ctx, page, serviceID)

	deadline := s.now().Add(s.reauthCeiling())
	for s.now().Before(deadline) {
		if err := s.sleepFn(ctx, reauthPollInterval); err != nil {
			s.log.Warnf("Re-authentication for %s cancelled: %v", serviceID, err)
			return false
		}
		if !s.now().Before(deadline) {
			break
		}

		if s.Verify(page, serviceID, verifyProbeTimeout).Authenticated() {
			state, err := SnapshotContext(page.Context())
			if err != nil {
				s.log.Errorf("Failed to snapshot new session for %s: %v", serviceID, err)
				return false
			}
			if err := s.Save(serviceID, state); err != nil {
				s.log.Errorf("Failed to save new session for %s: %v", serviceID, err)
				return false
			}
			s.log.Infof("Manual login completed for %s", serviceID)
			return true
		}
	}

	s.log.Errorf("Manual login timed out for %s", serviceID)
	return false
}

// SnapshotContext extracts the persistable authentication state from a
// live browser context.
func SnapshotContext(bctx playwright.BrowserContext) (State, error) {
	cookies, err := bctx.Cookies()
	if err != nil {
		return State{}, err
	}

	state := State{Cookies: make([]Cookie, 0, len(cookies))}
	for _, c := range cookies {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		state.Cookies = append(state.Cookies, cookie)
	}
	return state, nil
}

// Apply rehydrates a browser context with the stored cookie set.
func (st *State) Apply(bctx playwright.BrowserContext) error {
	if len(st.Cookies) == 0 {
		return nil
	}

	cookies := make([]playwright.OptionalCookie, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		switch c.SameSite {
		case "Strict":
			cookie.SameSite = playwright.SameSiteAttributeStrict
		case "Lax":
			cookie.SameSite = playwright.SameSiteAttributeLax
		case "None":
			cookie.SameSite = playwright.SameSiteAttributeNone
		}
		cookies = append(cookies, cookie)
	}
	return bctx.AddCookies(cookies)
}

// reauthCeiling returns the manual-login ceiling, honouring a test override.
func (s *Store) reauthCeiling() time.Duration {
	if s.ceiling > 0 {
		return s.ceiling
	}
	return defaultReauthCeiling
}

// sleepFn suspends for d or until ctx is cancelled.
func (s *Store) sleepFn(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
