// Package conversation drives a full prompt/response exchange against
// one service: locate the input, fill it, dispatch, wait for the
// response to finish streaming, and extract its text. Failures are
// classified and counted; the caller only ever sees a response string
// and a success flag.
package conversation

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ktsuji/chatdrive/pkg/logging"
	"github.com/ktsuji/chatdrive/pkg/profile"
	"github.com/ktsuji/chatdrive/pkg/selector"
	"github.com/ktsuji/chatdrive/pkg/session"
)

// State tracks where a handler is in its send/await/extract cycle.
type State string

const (
	StateUninitialized    State = "uninitialized"
	StateAuthenticated    State = "authenticated"
	StateFailed           State = "failed"
	StateInputReady       State = "input_ready"
	StateAwaitingResponse State = "awaiting_response"
	StateResponseReady    State = "response_ready"
	StateTimedOut         State = "timed_out"
	StateDone             State = "done"
)

const (
	inputProbeTimeout        = 10 * time.Second
	sendButtonTimeout        = 3 * time.Second
	defaultResponseTimeout   = 120 * time.Second
	defaultNavigationTimeout = 30 * time.Second
	reauthProbeInterval      = 5 * time.Second
)

// Browser is the slice of the browser manager a handler needs: page
// creation, resilient navigation, and access to the session store.
type Browser interface {
	CreatePage(ctx context.Context, serviceID string, url string) (playwright.Page, error)
	SafeGoto(ctx context.Context, page playwright.Page, url string, timeout time.Duration, waitUntil *playwright.WaitUntilState) bool
	SessionStore() *session.Store
}

// Handler runs conversations against a single service. One in-flight
// exchange per handler; concurrent handlers for different services are
// independent.
type Handler struct {
	service  string
	browser  Browser
	resolver *selector.Resolver
	store    *session.Store
	catalog  *profile.Catalog
	log      *logging.Logger

	page  playwright.Page
	state State

	stats  ProcessingStats
	errors *errorLog

	responseTimeout time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewHandler builds a handler for serviceID on top of the given
// browser. The resolver must share the catalog so selector chains and
// interaction strategies agree.
func NewHandler(serviceID string, browser Browser, resolver *selector.Resolver, catalog *profile.Catalog) *Handler {
	log, _ := logging.NewLogger("conversation")
	return &Handler{
		service:         serviceID,
		browser:         browser,
		resolver:        resolver,
		store:           browser.SessionStore(),
		catalog:         catalog,
		log:             log,
		state:           StateUninitialized,
		errors:          newErrorLog(),
		responseTimeout: defaultResponseTimeout,
		now:             time.Now,
		sleep:           sleepCtx,
	}
}

// State reports the handler's position in the conversation cycle.
func (h *Handler) State() State {
	return h.state
}

// Initialize opens the service page and establishes authentication.
// When the input element is missing it hands the page to AutoReauth,
// whose callback blocks until a human completes the login in the
// visible window. Returns false when authentication cannot be
// established.
func (h *Handler) Initialize(ctx context.Context) bool {
	prof, ok := h.catalog.Lookup(h.service)
	if !ok {
		h.log.Errorf("Unknown service %s", h.service)
		h.fail(errNavigation, "unknown service "+h.service)
		return false
	}

	page, err := h.browser.CreatePage(ctx, h.service, prof.BaseURL)
	if err != nil {
		h.log.Errorf("Failed to create page for %s: %v", h.service, err)
		h.fail(errNavigation, err.Error())
		return false
	}
	h.page = page

	if h.loggedIn(page) {
		h.state = StateAuthenticated
		h.log.Infof("Initialized %s handler", h.service)
		return true
	}

	h.log.Warnf("Not logged in to %s, starting re-authentication", h.service)
	if !h.store.AutoReauth(ctx, page, h.service, h.manualLoginCallback) {
		h.fail(errAuthRequired, "re-authentication failed for "+h.service)
		return false
	}

	h.state = StateAuthenticated
	h.log.Infof("Initialized %s handler", h.service)
	return true
}

// loggedIn treats a visible input element as proof of an
// authenticated UI. Any input candidate counts, so the whole chain is
// raced instead of walked in order.
func (h *Handler) loggedIn(page playwright.Page) bool {
	service, generic := h.catalog.Selectors(h.service, profile.RoleInput)
	_, found := h.resolver.Race(page, append(service, generic...), inputProbeTimeout)
	return found
}

// manualLoginCallback polls for the authenticated UI while a human
// logs in. AutoReauth owns the deadline; this loop just watches.
func (h *Handler) manualLoginCallback(ctx context.Context, page playwright.Page, serviceID string) {
	h.log.Infof("Manual login required for %s, waiting for the browser window", serviceID)
	for {
		if h.loggedIn(page) {
			h.log.Infof("Login detected for %s", serviceID)
			return
		}
		if err := h.sleep(ctx, reauthProbeInterval); err != nil {
			return
		}
	}
}

// SendPrompt runs the full exchange and returns the response text.
// Every attempt raises the request total; only a completed extraction
// counts as success and folds its latency into the running average.
// After the first classified failure exactly one recovery is tried
// (reload the canonical URL, re-verify authentication) before giving
// up with ("", false). It never returns an error.
func (h *Handler) SendPrompt(ctx context.Context, text string) (string, bool) {
	if h.page == nil {
		h.fail(errNavigation, "no page open for "+h.service)
		h.log.Errorf("Prompt rejected for %s: handler has no page", h.service)
		return "", false
	}

	for attempt := 0; attempt < 2; attempt++ {
		h.stats.recordAttempt()
		started := h.now()

		response, kind, ok := h.attempt(ctx, text)
		if ok {
			h.stats.recordSuccess(h.now().Sub(started))
			h.state = StateDone
			return response, true
		}

		h.errors.record(kind, "prompt failed in state "+string(h.state), h.now())
		h.log.Errorf("Prompt failed for %s (%s)", h.service, kind)

		if attempt == 0 && !h.recover(ctx) {
			break
		}
	}

	h.state = StateFailed
	return "", false
}

// attempt walks one pass of the state machine and reports the failure
// kind when a stage does not complete.
func (h *Handler) attempt(ctx context.Context, text string) (string, string, bool) {
	input, found := h.resolver.Find(h.page, h.service, profile.RoleInput, inputProbeTimeout)
	if !found {
		h.state = StateFailed
		return "", errElementNotFound, false
	}
	h.state = StateInputReady

	if !h.resolver.Fill(h.page, input, text, h.service) {
		h.state = StateFailed
		return "", errInput, false
	}

	if !h.dispatch(ctx) {
		h.state = StateFailed
		return "", errInput, false
	}

	h.state = StateAwaitingResponse
	if !h.resolver.AwaitResponseComplete(ctx, h.page, h.service, h.responseTimeout) {
		h.state = StateTimedOut
		return "", errResponseTimeout, false
	}

	response, ok := h.extractResponse(h.page)
	if !ok {
		h.state = StateFailed
		return "", errElementNotFound, false
	}

	h.state = StateResponseReady
	return response, "", true
}

// dispatch sends the filled prompt. SendMethod chooses between the
// send button and the keyboard; "either" prefers the button and falls
// back to Enter when no button shows up in time.
func (h *Handler) dispatch(ctx context.Context) bool {
	strategy := h.catalog.Strategy(h.service)

	useButton := strategy.SendMethod != profile.SendKeyboardEnter
	if useButton {
		button, found := h.resolver.Find(h.page, h.service, profile.RoleSendButton, sendButtonTimeout)
		if found {
			if err := button.Click(); err != nil {
				h.log.Warnf("Send button click failed for %s: %v", h.service, err)
				return false
			}
		} else if strategy.SendMethod == profile.SendClickButton {
			return false
		} else {
			useButton = false
		}
	}
	if !useButton {
		if err := h.page.Keyboard().Press("Enter"); err != nil {
			h.log.Warnf("Enter dispatch failed for %s: %v", h.service, err)
			return false
		}
	}

	if delay := strategy.PostSendDelay.Std(); delay > 0 {
		if err := h.sleep(ctx, delay); err != nil {
			return false
		}
	}
	return true
}

// recover reloads the canonical URL and re-verifies authentication.
// Called at most once per SendPrompt.
func (h *Handler) recover(ctx context.Context) bool {
	h.log.Infof("Attempting error recovery for %s", h.service)

	prof, ok := h.catalog.Lookup(h.service)
	if !ok {
		return false
	}
	if !h.browser.SafeGoto(ctx, h.page, prof.BaseURL, defaultNavigationTimeout, nil) {
		h.errors.record(errNavigation, "recovery reload failed", h.now())
		return false
	}
	if !h.loggedIn(h.page) {
		h.errors.record(errAuthRequired, "recovery found no authenticated UI", h.now())
		return false
	}
	h.state = StateAuthenticated
	return true
}

// Statistics reports counters, the error summary, and the success
// rate. With no requests yet the rate is 0.
func (h *Handler) Statistics() Statistics {
	return Statistics{
		Service:     h.service,
		Errors:      h.errors.snapshot(),
		Processing:  h.stats,
		SuccessRate: successRate(h.stats),
	}
}

func (h *Handler) fail(kind, message string) {
	h.state = StateFailed
	h.errors.record(kind, message, h.now())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
