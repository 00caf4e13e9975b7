// Package selector locates UI elements on conversational service pages
// using ordered fallback chains, so that a single selector going stale
// after a UI redesign degrades the chain instead of breaking the driver.
package selector

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ktsuji/chatdrive/pkg/logging"
	"github.com/ktsuji/chatdrive/pkg/profile"
)

// Resolver resolves element roles to live page elements through the
// profile catalog's selector chains.
type Resolver struct {
	catalog *profile.Catalog
	log     *logging.Logger

	// pollInterval drives AwaitResponseComplete's signal checks and
	// settleDelay is the fixed-delay signal's wait; both are
	// overridable in tests.
	pollInterval time.Duration
	settleDelay  time.Duration
}

// NewResolver creates a resolver backed by the given catalog.
func NewResolver(catalog *profile.Catalog) *Resolver {
	log, _ := logging.NewLogger("selector")
	return &Resolver{
		catalog:      catalog,
		log:          log,
		pollInterval: time.Second,
		settleDelay:  2 * time.Second,
	}
}

// Strategy returns the interaction strategy for a service, falling
// back to the generic default for unknown services.
func (r *Resolver) Strategy(serviceID string) profile.Strategy {
	return r.catalog.Strategy(serviceID)
}

// Find locates the element for a role on a page. Service-specific
// candidates are tried in order, each bounded by timeout and required
// to be visible; the first match wins and no further candidates are
// attempted. Only when the service chain is exhausted does the generic
// cross-service chain get the same treatment. A miss is a negative
// result, not an error: the caller decides whether absence is fatal.
func (r *Resolver) Find(page playwright.Page, serviceID string, role profile.Role, timeout time.Duration) (playwright.ElementHandle, bool) {
	service, generic := r.catalog.Selectors(serviceID, role)

	for _, sel := range service {
		r.log.Debugf("Trying selector for %s.%s: %s", serviceID, role, sel)
		if el, ok := r.waitVisible(page, sel, timeout); ok {
			r.log.Infof("Found %s.%s using selector: %s", serviceID, role, sel)
			return el, true
		}
	}

	for _, sel := range generic {
		r.log.Debugf("Trying generic selector for %s: %s", role, sel)
		if el, ok := r.waitVisible(page, sel, timeout); ok {
			r.log.Infof("Found %s.%s using generic selector: %s", serviceID, role, sel)
			return el, true
		}
	}

	r.log.Warnf("Could not find element: %s.%s", serviceID, role)
	return nil, false
}

// Race starts bounded visibility waits for every candidate selector
// concurrently and returns the first to resolve. Losing waits are
// abandoned to run out their own timeouts; they only read the page,
// so letting them finish is harmless. Use this where several
// independent signals indicate the same condition and latency matters
// more than which one fires.
func (r *Resolver) Race(page playwright.Page, candidates []string, overallTimeout time.Duration) (playwright.ElementHandle, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	results := make(chan playwright.ElementHandle, len(candidates))
	for _, sel := range candidates {
		go func(sel string) {
			if el, ok := r.waitVisible(page, sel, overallTimeout); ok {
				results <- el
				return
			}
			results <- nil
		}(sel)
	}

	timer := time.NewTimer(overallTimeout)
	defer timer.Stop()

	for remaining := len(candidates); remaining > 0; remaining-- {
		select {
		case el := <-results:
			if el != nil {
				return el, true
			}
		case <-timer.C:
			return nil, false
		}
	}
	return nil, false
}

// waitVisible waits for one selector to become visible within timeout.
func (r *Resolver) waitVisible(page playwright.Page, sel string, timeout time.Duration) (playwright.ElementHandle, bool) {
	el, err := page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil || el == nil {
		return nil, false
	}
	return el, true
}
