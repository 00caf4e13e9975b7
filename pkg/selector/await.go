package selector

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ktsuji/chatdrive/pkg/profile"
)

// probeTimeout bounds each individual signal micro-check.
const probeTimeout = time.Second

// AwaitResponseComplete polls the page at a fixed interval until the
// service's response-completion signal fires or timeout elapses. A
// timeout is a negative result, not an error.
func (r *Resolver) AwaitResponseComplete(ctx context.Context, page playwright.Page, serviceID string, timeout time.Duration) bool {
	strategy := r.Strategy(serviceID)
	deadline := time.Now().Add(timeout)

	if strategy.ResponseSignal == profile.SignalFixedDelay {
		return r.sleepUntil(ctx, r.settleDelay)
	}

	for time.Now().Before(deadline) {
		if r.checkSignal(page, serviceID, strategy.ResponseSignal) {
			return true
		}
		if !r.sleepUntil(ctx, r.pollInterval) {
			return false
		}
	}

	r.log.Warnf("Response detection timed out for %s", serviceID)
	return false
}

// checkSignal runs one signal-specific micro-check.
func (r *Resolver) checkSignal(page playwright.Page, serviceID string, signal profile.ResponseSignal) bool {
	switch signal {
	case profile.SignalBusyIndicatorGone:
		// The stop/busy control disappears once generation finishes.
		_, busy := r.Find(page, serviceID, profile.RoleStopButton, probeTimeout)
		return !busy

	case profile.SignalInputReenabled:
		el, ok := r.Find(page, serviceID, profile.RoleInput, probeTimeout)
		if !ok {
			return false
		}
		enabled, err := el.IsEnabled()
		return err == nil && enabled

	case profile.SignalSpinnerGone:
		chain, generic := r.catalog.Selectors(serviceID, profile.RoleLoadingIndicator)
		for _, sel := range append(chain, generic...) {
			if el, err := page.QuerySelector(sel); err == nil && el != nil {
				return false
			}
		}
		return true

	default:
		return false
	}
}

// sleepUntil suspends for d, reporting false when ctx is cancelled first.
func (r *Resolver) sleepUntil(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
