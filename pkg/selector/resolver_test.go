package selector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/chatdrive/pkg/profile"
)

// fakeElement satisfies playwright.ElementHandle for the handful of
// methods the resolver touches.
type fakeElement struct {
	playwright.ElementHandle
	id string

	mu      sync.Mutex
	filled  []string
	typed   []string
	clicked int

	enabled bool
	fillErr error
	typeErr error
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
	if e.typeErr != nil {
		return e.typeErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typed = append(e.typed, value)
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

// fakeKeyboard records pressed keys.
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

// fakePage simulates selector resolution: selectors present in the
// elements map resolve immediately, everything else times out.
type fakePage struct {
	playwright.Page
	elements map[string]*fakeElement
	keyboard *fakeKeyboard

	mu        sync.Mutex
	attempted []string

	evaluateErr error
	evaluated   []string
}

func newFakePage(elements map[string]*fakeElement) *fakePage {
	return &fakePage{elements: elements, keyboard: &fakeKeyboard{}}
}

func (p *fakePage) WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error) {
	p.mu.Lock()
	p.attempted = append(p.attempted, selector)
	p.mu.Unlock()

	if el, ok := p.elements[selector]; ok {
		return el, nil
	}
	return nil, errors.New("timeout waiting for selector")
}

func (p *fakePage) QuerySelector(selector string, options ...playwright.PageQuerySelectorOptions) (playwright.ElementHandle, error) {
	if el, ok := p.elements[selector]; ok {
		return el, nil
	}
	return nil, nil
}

func (p *fakePage) Keyboard() playwright.Keyboard {
	return p.keyboard
}

func (p *fakePage) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, expression)
	if p.evaluateErr != nil {
		return nil, p.evaluateErr
	}
	return nil, nil
}

func (p *fakePage) attempts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attempted...)
}

func alphaCatalog() *profile.Catalog {
	return &profile.Catalog{
		Profiles: map[string]profile.Profile{
			"alpha": {
				ID:      "alpha",
				BaseURL: "https://alpha.test",
				Selectors: map[profile.Role][]string{
					profile.RoleInput:      {"#s1", "#s2"},
					profile.RoleSendButton: {"#send"},
				},
				Strategy: profile.DefaultStrategy(),
			},
		},
		Generic: map[profile.Role][]string{
			profile.RoleInput: {"#generic-input"},
		},
	}
}

func newTestResolver(catalog *profile.Catalog) *Resolver {
	r := NewResolver(catalog)
	r.pollInterval = 5 * time.Millisecond
	r.settleDelay = 5 * time.Millisecond
	return r
}

func TestFindAbsentRoleReturnsNotFound(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(nil)

	el, ok := r.Find(page, "alpha", profile.Role("no-such-role"), 50*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, el)
	assert.Empty(t, page.attempts(), "no selector should have been attempted")
}

func TestFindShortCircuitsOnServiceMatch(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	// S1 never matches, S2 does; the generic fallback also would.
	page := newFakePage(map[string]*fakeElement{
		"#s2":            {id: "s2"},
		"#generic-input": {id: "generic"},
	})

	el, ok := r.Find(page, "alpha", profile.RoleInput, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "s2", el.(*fakeElement).id)
	assert.Equal(t, []string{"#s1", "#s2"}, page.attempts(),
		"generic fallback must not be attempted after a service match")
}

func TestFindFallsThroughToGeneric(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(map[string]*fakeElement{
		"#generic-input": {id: "generic"},
	})

	el, ok := r.Find(page, "alpha", profile.RoleInput, 50*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "generic", el.(*fakeElement).id)
	assert.Equal(t, []string{"#s1", "#s2", "#generic-input"}, page.attempts())
}

func TestFindUnknownServiceUsesGenericOnly(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(map[string]*fakeElement{
		"#generic-input": {id: "generic"},
	})

	el, ok := r.Find(page, "mystery", profile.RoleInput, 50*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "generic", el.(*fakeElement).id)
	assert.Equal(t, []string{"#generic-input"}, page.attempts())
}

func TestFindExhaustedReturnsNotFound(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(nil)

	el, ok := r.Find(page, "alpha", profile.RoleInput, 50*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, el)
}

func TestRaceReturnsFirstMatch(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(map[string]*fakeElement{
		"#winner": {id: "winner"},
	})

	el, ok := r.Race(page, []string{"#loser-1", "#winner", "#loser-2"}, time.Second)
	require.True(t, ok)
	assert.Equal(t, "winner", el.(*fakeElement).id)
}

func TestRaceNoMatch(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	page := newFakePage(nil)

	el, ok := r.Race(page, []string{"#a", "#b"}, 50*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, el)
}

func TestRaceEmptyCandidates(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	_, ok := r.Race(newFakePage(nil), nil, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestStrategyUnknownServiceDefault(t *testing.T) {
	r := newTestResolver(alphaCatalog())
	assert.Equal(t, profile.DefaultStrategy(), r.Strategy("mystery"))
}
