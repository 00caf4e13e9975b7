package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/chatdrive/pkg/profile"
	"github.com/ktsuji/chatdrive/pkg/selector"
	"github.com/ktsuji/chatdrive/pkg/session"
)

// fakeElement satisfies playwright.ElementHandle for the methods the
// handler and resolver touch.
type fakeElement struct {
	playwright.ElementHandle

	mu      sync.Mutex
	filled  []string
	clicked int

	enabled bool
	html    string
	fillErr error
}

func (e *fakeElement) Fill(value string, options ...playwright.ElementHandleFillOptions) error {
	if e.fillErr != nil {
		return e.fillErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled = append(e.filled, value)
	return nil
}

func (e *fakeElement) Type(value string, options ...playwright.ElementHandleTypeOptions) error {
	return nil
}

func (e *fakeElement) Click(options ...playwright.ElementHandleClickOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clicked++
	return nil
}

func (e *fakeElement) IsEnabled() (bool, error) {
	return e.enabled, nil
}

func (e *fakeElement) InnerHTML() (string, error) {
	return e.html, nil
}

type fakeKeyboard struct {
	playwright.Keyboard

	mu      sync.Mutex
	pressed []string
}

func (k *fakeKeyboard) Press(key string, options ...playwright.KeyboardPressOptions) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pressed = append(k.pressed, key)
	return nil
}

func (k *fakeKeyboard) keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.pressed...)
}

// fakePage resolves selectors out of a mutable map; everything else
// fails immediately instead of waiting.
type fakePage struct {
	playwright.Page

	mu       sync.Mutex
	elements map[string]*fakeElement
	keyboard *fakeKeyboard
}

func newFakePage(elements map[string]*fakeElement) *fakePage {
	return &fakePage{elements: elements, keyboard: &fakeKeyboard{}}
}

func (p *fakePage) lookup(selector string) (*fakeElement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return el, ok
}

func (p *fakePage) set(selector string, el *fakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = el
}

func (p *fakePage) WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error) {
	if el, ok := p.lookup(selector); ok {
		return el, nil
	}
	return nil, errors.New("timeout waiting for selector")
}

func (p *fakePage) QuerySelector(selector string, options ...playwright.PageQuerySelectorOptions) (playwright.ElementHandle, error) {
	if el, ok := p.lookup(selector); ok {
		return el, nil
	}
	return nil, nil
}

func (p *fakePage) QuerySelectorAll(selector string) ([]playwright.ElementHandle, error) {
	if el, ok := p.lookup(selector); ok {
		return []playwright.ElementHandle{el}, nil
	}
	return nil, nil
}

func (p *fakePage) Keyboard() playwright.Keyboard {
	return p.keyboard
}

func (p *fakePage) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	return nil, nil
}

// fakeBrowser satisfies Browser without a real browser process.
type fakeBrowser struct {
	page      *fakePage
	store     *session.Store
	createErr error

	gotoCalls int
	gotoOK    bool
	onGoto    func()
}

func (b *fakeBrowser) CreatePage(ctx context.Context, serviceID string, url string) (playwright.Page, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	return b.page, nil
}

func (b *fakeBrowser) SafeGoto(ctx context.Context, page playwright.Page, url string, timeout time.Duration, waitUntil *playwright.WaitUntilState) bool {
	b.gotoCalls++
	if b.onGoto != nil {
		b.onGoto()
	}
	return b.gotoOK
}

func (b *fakeBrowser) SessionStore() *session.Store {
	return b.store
}

func testCatalog(strategy profile.Strategy) *profile.Catalog {
	return &profile.Catalog{
		Profiles: map[string]profile.Profile{
			"alpha": {
				ID:      "alpha",
				BaseURL: "https://alpha.test",
				Selectors: map[profile.Role][]string{
					profile.RoleInput:             {"#input"},
					profile.RoleSendButton:        {"#send"},
					profile.RoleResponseContainer: {"#response"},
				},
				Strategy: strategy,
			},
		},
		Generic: map[profile.Role][]string{
			profile.RoleInput: {"#any-composer"},
		},
	}
}

func happyStrategy() profile.Strategy {
	return profile.Strategy{
		InputMethod:    profile.InputDirectSet,
		ClearMethod:    profile.ClearSelectAllDelete,
		SendMethod:     profile.SendEither,
		PostSendDelay:  0,
		ResponseSignal: profile.SignalInputReenabled,
	}
}

func newTestHandler(t *testing.T, catalog *profile.Catalog, page *fakePage) (*Handler, *fakeBrowser) {
	t.Helper()
	store, err := session.NewStore(t.TempDir(), catalog)
	require.NoError(t, err)
	b := &fakeBrowser{page: page, store: store, gotoOK: true}
	h := NewHandler("alpha", b, selector.NewResolver(catalog), catalog)
	return h, b
}

func TestInitializeWithVisibleInput(t *testing.T) {
	page := newFakePage(map[string]*fakeElement{
		"#input": {enabled: true},
	})
	h, _ := newTestHandler(t, testCatalog(happyStrategy()), page)

	ok := h.Initialize(context.Background())

	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, h.State())
}

func TestInitializeAuthenticatedViaGenericCandidate(t *testing.T) {
	// The auth probe races the whole input chain, so a generic
	// cross-service candidate is as good as a service-specific one.
	page := newFakePage(map[string]*fakeElement{
		"#any-composer": {enabled: true},
	})
	h, _ := newTestHandler(t, testCatalog(happyStrategy()), page)

	ok := h.Initialize(context.Background())

	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, h.State())
}

func TestInitializePageCreationFails(t *testing.T) {
	h, b := newTestHandler(t, testCatalog(happyStrategy()), newFakePage(map[string]*fakeElement{}))
	b.createErr = errors.New("browser gone")

	ok := h.Initialize(context.Background())

	require.False(t, ok)
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, 1, h.Statistics().Errors.ErrorTypes["navigation_failure"])
}

func TestSendPromptWithoutPage(t *testing.T) {
	h, b := newTestHandler(t, testCatalog(happyStrategy()), newFakePage(map[string]*fakeElement{}))

	response, ok := h.SendPrompt(context.Background(), "ping")

	require.False(t, ok)
	assert.Empty(t, response)
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, 0, b.gotoCalls, "no recovery without a page")

	stats := h.Statistics()
	assert.Equal(t, 0, stats.Processing.TotalRequests)
	assert.Equal(t, 1, stats.Errors.ErrorTypes["navigation_failure"])
}

func TestSendPromptHappyPath(t *testing.T) {
	input := &fakeElement{enabled: true}
	page := newFakePage(map[string]*fakeElement{
		"#input":    input,
		"#send":     {},
		"#response": {html: "<p>Hello <b>world</b></p>"},
	})
	h, _ := newTestHandler(t, testCatalog(happyStrategy()), page)
	require.True(t, h.Initialize(context.Background()))

	response, ok := h.SendPrompt(context.Background(), "ping")

	require.True(t, ok)
	assert.Equal(t, "Hello world", response)
	assert.Equal(t, StateDone, h.State())
	assert.Contains(t, input.filled, "ping")

	stats := h.Statistics()
	assert.Equal(t, 1, stats.Processing.TotalRequests)
	assert.Equal(t, 1, stats.Processing.SuccessfulRequests)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestSendPromptFallsBackToKeyboardEnter(t *testing.T) {
	page := newFakePage(map[string]*fakeElement{
		"#input":    {enabled: true},
		"#response": {html: "done"},
	})
	h, _ := newTestHandler(t, testCatalog(happyStrategy()), page)
	require.True(t, h.Initialize(context.Background()))

	_, ok := h.SendPrompt(context.Background(), "ping")

	require.True(t, ok)
	assert.Contains(t, page.keyboard.keys(), "Enter")
}

func TestSendPromptButtonRequiredButMissing(t *testing.T) {
	strategy := happyStrategy()
	strategy.SendMethod = profile.SendClickButton
	page := newFakePage(map[string]*fakeElement{
		"#input":    {enabled: true},
		"#response": {html: "done"},
	})
	h, b := newTestHandler(t, testCatalog(strategy), page)
	b.gotoOK = true
	require.True(t, h.Initialize(context.Background()))

	_, ok := h.SendPrompt(context.Background(), "ping")

	require.False(t, ok)
	assert.Equal(t, 2, h.Statistics().Errors.ErrorTypes["input_failure"],
		"both the initial attempt and the post-recovery retry should fail on dispatch")
}

func TestSendPromptSingleRecoveryThenGiveUp(t *testing.T) {
	// Input missing at first; the recovery reload brings it back but
	// it rejects the fill, so the retry fails too.
	page := newFakePage(map[string]*fakeElement{})
	h, b := newTestHandler(t, testCatalog(happyStrategy()), page)
	h.page = page
	b.onGoto = func() {
		page.set("#input", &fakeElement{enabled: true, fillErr: errors.New("readonly")})
	}

	response, ok := h.SendPrompt(context.Background(), "ping")

	require.False(t, ok)
	assert.Empty(t, response)
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, 1, b.gotoCalls, "recovery reloads exactly once")

	stats := h.Statistics()
	assert.Equal(t, 2, stats.Processing.TotalRequests)
	assert.Equal(t, 0, stats.Processing.SuccessfulRequests)
	assert.Equal(t, 1, stats.Errors.ErrorTypes["element_not_found"])
	assert.Equal(t, 1, stats.Errors.ErrorTypes["input_failure"])
}

func TestSendPromptRecoveryReloadFails(t *testing.T) {
	page := newFakePage(map[string]*fakeElement{})
	h, b := newTestHandler(t, testCatalog(happyStrategy()), page)
	h.page = page
	b.gotoOK = false

	response, ok := h.SendPrompt(context.Background(), "ping")

	require.False(t, ok)
	assert.Empty(t, response)
	assert.Equal(t, 1, b.gotoCalls)
	assert.Equal(t, 1, h.Statistics().Processing.TotalRequests,
		"no retry after a failed recovery")
	assert.Equal(t, 1, h.Statistics().Errors.ErrorTypes["navigation_failure"])
}
