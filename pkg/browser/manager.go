package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"

	"github.com/ktsuji/chatdrive/pkg/logging"
	"github.com/ktsuji/chatdrive/pkg/session"
)

// Manager owns the shared browser process and the per-service isolated
// contexts and pages carved out of it. Contexts are never shared
// across services: each gets its own cookie and storage jar.
type Manager struct {
	opts    Options
	store   *session.Store
	log     *logging.Logger
	blocked []glob.Glob

	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	contexts    map[string]playwright.BrowserContext
	pages       map[string]playwright.Page
	tempDirs    []string
	initialized bool
}

// NewManager creates a browser manager. The session store is consulted
// when contexts are created and fed when they are torn down.
func NewManager(opts Options, store *session.Store) (*Manager, error) {
	opts.withDefaults()

	blocked := make([]glob.Glob, 0, len(opts.BlockedDomains))
	for _, pattern := range opts.BlockedDomains {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked domain pattern %q: %w", pattern, err)
		}
		blocked = append(blocked, g)
	}

	log, _ := logging.NewLogger("browser")

	return &Manager{
		opts:     opts,
		store:    store,
		log:      log,
		blocked:  blocked,
		contexts: make(map[string]playwright.BrowserContext),
		pages:    make(map[string]playwright.Page),
	}, nil
}

// Initialize starts the shared browser process with fingerprint-
// reducing launch arguments. When UseLocalProfile is set, selected
// state files from the local Chrome profile are copied into an
// ephemeral directory first; each copy is best-effort and a failed
// file never aborts initialization.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  m.log.Writer(),
		Stderr:  m.log.Writer(),
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	args := append([]string(nil), launchArgs...)
	if m.opts.UseLocalProfile {
		if tempProfile, ok := m.copyLocalProfile(); ok {
			m.tempDirs = append(m.tempDirs, tempProfile.dir)
			args = append(args,
				fmt.Sprintf("--user-data-dir=%s", tempProfile.dir),
				fmt.Sprintf("--profile-directory=%s", tempProfile.name),
			)
		}
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(m.opts.Headless),
		Args:              args,
		IgnoreDefaultArgs: []string{"--enable-automation"},
	})
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			m.log.Warnf("Failed to stop playwright after launch failure: %v", stopErr)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.pw = pw
	m.browser = browser
	m.initialized = true
	m.log.Infof("Browser manager initialized")
	return nil
}

// CreateContext allocates the isolated context for a service: fixed
// viewport and user agent, the stealth init script, request
// interception, and — unless restoreSession is false — the stored
// session cookies.
func (m *Manager) CreateContext(serviceID string, restoreSession bool) (playwright.BrowserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createContextLocked(serviceID, restoreSession)
}

func (m *Manager) createContextLocked(serviceID string, restoreSession bool) (playwright.BrowserContext, error) {
	if !m.initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}
	if bctx, ok := m.contexts[serviceID]; ok {
		return bctx, nil
	}

	bctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
		UserAgent:         playwright.String(m.opts.UserAgent),
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context for %s: %w", serviceID, err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		if closeErr := bctx.Close(); closeErr != nil {
			m.log.Warnf("Failed to close context for %s: %v", serviceID, closeErr)
		}
		return nil, fmt.Errorf("failed to add init script for %s: %w", serviceID, err)
	}

	if err := bctx.Route("**/*", m.interceptRequest); err != nil {
		if closeErr := bctx.Close(); closeErr != nil {
			m.log.Warnf("Failed to close context for %s: %v", serviceID, closeErr)
		}
		return nil, fmt.Errorf("failed to set up request interception for %s: %w", serviceID, err)
	}

	if restoreSession {
		if state, ok := m.store.Restore(serviceID); ok {
			if err := state.Apply(bctx); err != nil {
				m.log.Warnf("Failed to apply stored session for %s: %v", serviceID, err)
			}
		}
	}

	m.contexts[serviceID] = bctx
	m.log.Infof("Created context for %s", serviceID)
	return bctx, nil
}

// interceptRequest aborts requests for blocked resource types and
// glob-matched domains and passes everything else through.
func (m *Manager) interceptRequest(route playwright.Route) {
	request := route.Request()

	resourceType := request.ResourceType()
	for _, blocked := range m.opts.BlockedResources {
		if resourceType == blocked {
			if err := route.Abort(); err != nil {
				m.log.Debugf("Failed to abort %s request: %v", resourceType, err)
			}
			return
		}
	}

	url := request.URL()
	for _, g := range m.blocked {
		if g.Match(url) {
			if err := route.Abort(); err != nil {
				m.log.Debugf("Failed to abort request to %s: %v", url, err)
			}
			return
		}
	}

	if err := route.Continue(); err != nil {
		m.log.Debugf("Failed to continue request to %s: %v", request.URL(), err)
	}
}

// CreatePage opens a page in the service's context, creating the
// context lazily, and optionally navigates to url. Diagnostic
// observers forward page errors and console noise into the log.
func (m *Manager) CreatePage(ctx context.Context, serviceID string, url string) (playwright.Page, error) {
	m.mu.Lock()
	bctx, err := m.createContextLocked(serviceID, true)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	page, err := bctx.NewPage()
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create page for %s: %w", serviceID, err)
	}
	m.pages[serviceID] = page
	m.mu.Unlock()

	page.OnPageError(func(err error) {
		m.log.Errorf("Page error in %s: %v", serviceID, err)
	})
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if t := msg.Type(); t == "error" || t == "warning" {
			m.log.Warnf("Console %s in %s: %s", t, serviceID, msg.Text())
		}
	})

	if url != "" {
		if ok := m.SafeGoto(ctx, page, url, DefaultNavigationTimeout, nil); !ok {
			m.log.Warnf("Initial navigation to %s failed for %s", url, serviceID)
		}
	}

	m.log.Infof("Created page for %s", serviceID)
	return page, nil
}

// Page returns the currently open page for a service.
func (m *Manager) Page(serviceID string) (playwright.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[serviceID]
	return page, ok
}

// SessionStore exposes the store so composing components can verify
// and re-establish authentication on the pages this manager owns.
func (m *Manager) SessionStore() *session.Store {
	return m.store
}

// SaveAllSessions snapshots every open context into the session store.
// Failures are logged per service and do not stop the sweep.
func (m *Manager) SaveAllSessions() {
	m.mu.Lock()
	contexts := make(map[string]playwright.BrowserContext, len(m.contexts))
	for id, bctx := range m.contexts {
		contexts[id] = bctx
	}
	m.mu.Unlock()

	for serviceID, bctx := range contexts {
		state, err := session.SnapshotContext(bctx)
		if err != nil {
			m.log.Errorf("Failed to snapshot session for %s: %v", serviceID, err)
			continue
		}
		if err := m.store.Save(serviceID, state); err != nil {
			m.log.Errorf("Failed to save session for %s: %v", serviceID, err)
		}
	}
}

// Cleanup persists open sessions and releases everything in strict
// order: pages, then contexts, then the browser process, then the
// playwright driver, then ephemeral profile copies. Each step is
// best-effort and proceeds past failures; calling Cleanup twice is
// safe.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = false
	m.mu.Unlock()

	m.SaveAllSessions()

	m.mu.Lock()
	defer m.mu.Unlock()

	for serviceID, page := range m.pages {
		if err := page.Close(); err != nil {
			m.log.Warnf("Failed to close page for %s: %v", serviceID, err)
		}
		delete(m.pages, serviceID)
	}

	for serviceID, bctx := range m.contexts {
		if err := bctx.Close(); err != nil {
			m.log.Warnf("Failed to close context for %s: %v", serviceID, err)
		}
		delete(m.contexts, serviceID)
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.log.Warnf("Failed to close browser: %v", err)
		}
		m.browser = nil
	}

	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			m.log.Warnf("Failed to stop playwright: %v", err)
		}
		m.pw = nil
	}

	m.removeTempDirsLocked()
	m.log.Infof("Browser manager cleanup completed")
}

// Status is a read-only snapshot of the manager's open resources and
// per-service session validity.
type Status struct {
	BrowserActive bool                            `json:"browser_active"`
	Contexts      []string                        `json:"contexts"`
	Pages         []string                        `json:"pages"`
	Sessions      map[string]session.RecordStatus `json:"sessions"`
}

// Status reports the current state for observability and tests.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	contexts := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		contexts = append(contexts, id)
	}
	sort.Strings(contexts)

	pages := make([]string, 0, len(m.pages))
	for id := range m.pages {
		pages = append(pages, id)
	}
	sort.Strings(pages)

	return Status{
		BrowserActive: m.browser != nil,
		Contexts:      contexts,
		Pages:         pages,
		Sessions:      m.store.Status(),
	}
}

// describeURL trims a URL for log lines.
func describeURL(url string) string {
	if i := strings.Index(url, "?"); i > 0 {
		return url[:i]
	}
	return url
}
