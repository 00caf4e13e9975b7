package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// SafeGoto navigates with retries. Only transport-level failures count
// against the retry budget: an HTTP error status still means the
// navigation reached the server, so it is logged and treated as
// success. Returns false once all attempts are spent.
func (m *Manager) SafeGoto(ctx context.Context, page playwright.Page, url string, timeout time.Duration, waitUntil *playwright.WaitUntilState) bool {
	if waitUntil == nil {
		waitUntil = playwright.WaitUntilStateDomcontentloaded
	}

	op := func() (bool, error) {
		resp, err := page.Goto(url, playwright.PageGotoOptions{
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
			WaitUntil: waitUntil,
		})
		if err != nil {
			return false, fmt.Errorf("navigation to %s failed: %w", describeURL(url), err)
		}
		if resp != nil && resp.Status() >= 400 {
			m.log.Warnf("Navigation to %s returned HTTP %d", describeURL(url), resp.Status())
		}
		return true, nil
	}

	ok, err := ExecuteWithRetry(ctx, op, navigationRetries, time.Second, 2.0, m.log)
	if err != nil {
		m.log.Errorf("Navigation to %s gave up: %v", describeURL(url), err)
		return false
	}
	return ok
}
