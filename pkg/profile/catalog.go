package profile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog is the lookup table driving every other component: one
// Profile per service plus generic cross-service fallback selector
// chains tried when a service has no chain for a role or all of its
// candidates fail.
type Catalog struct {
	Profiles map[string]Profile `yaml:"profiles"`
	Generic  map[Role][]string  `yaml:"generic"`
}

// Lookup returns the profile for a service id.
func (c *Catalog) Lookup(serviceID string) (Profile, bool) {
	p, ok := c.Profiles[serviceID]
	return p, ok
}

// Selectors returns the service-specific selector chain for a role.
// The second slice is the generic fallback chain for the same role;
// either may be empty.
func (c *Catalog) Selectors(serviceID string, role Role) (service, generic []string) {
	if p, ok := c.Profiles[serviceID]; ok {
		service = p.Selectors[role]
	}
	generic = c.Generic[role]
	return service, generic
}

// Strategy returns the interaction strategy for a service, falling
// back to DefaultStrategy for unknown services.
func (c *Catalog) Strategy(serviceID string) Strategy {
	if p, ok := c.Profiles[serviceID]; ok {
		return p.Strategy
	}
	return DefaultStrategy()
}

// Load reads a YAML catalog file and merges it over the built-in
// defaults. Profiles in the file replace same-id defaults wholesale;
// generic chains in the file replace same-role defaults.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var overlay Catalog
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	catalog := DefaultCatalog()
	for id, p := range overlay.Profiles {
		if p.ID == "" {
			p.ID = id
		}
		catalog.Profiles[id] = p
	}
	for role, chain := range overlay.Generic {
		catalog.Generic[role] = chain
	}
	return catalog, nil
}

// DefaultCatalog returns the built-in profiles for the services this
// driver knows about. Selector chains are ordered most-specific first;
// later entries are looser heuristics that survive UI churn.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Profiles: map[string]Profile{
			"chatgpt": {
				ID:            "chatgpt",
				BaseURL:       "https://chat.openai.com",
				LoginURL:      "https://chat.openai.com/auth/login",
				AuthIndicator: `textarea[data-testid="textbox"]`,
				Selectors: map[Role][]string{
					RoleInput: {
						`role=textbox[name*="Send a message"]`,
						`textarea[data-testid="textbox"]`,
						`textarea[placeholder*="Send a message"]`,
						`div[contenteditable="true"][data-placeholder*="Send"]`,
						`textarea#prompt-textarea`,
					},
					RoleSendButton: {
						`button[data-testid="send-button"]`,
						`button[aria-label*="Send message"]`,
						`button:has-text("Send")`,
					},
					RoleResponseContainer: {
						`div[data-message-author-role="assistant"]`,
						`div.agent-turn`,
						`div[class*="message"][class*="assistant"]`,
					},
					RoleStopButton: {
						`button[data-testid="stop-button"]`,
						`button[aria-label="Stop generating"]`,
						`button:has-text("Stop")`,
					},
					RoleModelSelector: {
						`button[data-testid="model-switcher-button"]`,
						`button:has-text("GPT-")`,
					},
				},
				Strategy: Strategy{
					InputMethod:    InputDirectSet,
					ClearMethod:    ClearSelectAllDelete,
					SendMethod:     SendClickButton,
					PostSendDelay:  Duration(time.Second),
					ResponseSignal: SignalBusyIndicatorGone,
				},
			},
			"claude": {
				ID:            "claude",
				BaseURL:       "https://claude.ai",
				LoginURL:      "https://claude.ai/login",
				AuthIndicator: `div[contenteditable="true"]`,
				Selectors: map[Role][]string{
					RoleInput: {
						`div[contenteditable="true"][placeholder*="Talk to Claude"]`,
						`textarea[placeholder*="Start a conversation"]`,
						`div.ProseMirror[contenteditable="true"]`,
						`div[role="textbox"]`,
					},
					RoleSendButton: {
						`button[aria-label="Send Message"]`,
						`button:has(svg[class*="send"])`,
						`button[type="submit"]:visible`,
					},
					RoleResponseContainer: {
						`div[data-test-render-type="message"]`,
						`div.message-content`,
						`div[class*="assistant-message"]`,
					},
					RoleModelSelector: {
						`button[aria-label*="Model"]`,
						`button:has-text("Claude")`,
					},
				},
				Strategy: Strategy{
					InputMethod:    InputCharByChar,
					ClearMethod:    ClearSelectAllDelete,
					SendMethod:     SendEither,
					PostSendDelay:  Duration(500 * time.Millisecond),
					ResponseSignal: SignalInputReenabled,
				},
			},
			"gemini": {
				ID:            "gemini",
				BaseURL:       "https://gemini.google.com",
				LoginURL:      "https://gemini.google.com",
				AuthIndicator: `div[contenteditable="true"]`,
				Selectors: map[Role][]string{
					RoleInput: {
						`div[contenteditable="true"][aria-label*="prompt"]`,
						`textarea[placeholder*="Enter a prompt"]`,
						`div.ql-editor[contenteditable="true"]`,
						`rich-textarea[label*="prompt"]`,
					},
					RoleSendButton: {
						`button[aria-label*="Send"]`,
						`button[mattooltip*="Send"]`,
						`button:has(mat-icon:has-text("send"))`,
					},
					RoleResponseContainer: {
						`model-response`,
						`div[class*="model-response"]`,
						`message-content[participant="MODEL"]`,
					},
					RoleLoadingIndicator: {
						`.loading-indicator`,
					},
					RoleModelSelector: {
						`button:has-text("Gemini")`,
						`mat-select[aria-label*="model"]`,
					},
				},
				Strategy: Strategy{
					InputMethod:    InputCharByChar,
					ClearMethod:    ClearNative,
					SendMethod:     SendClickButton,
					PostSendDelay:  Duration(time.Second),
					ResponseSignal: SignalSpinnerGone,
				},
			},
			"genspark": {
				ID:            "genspark",
				BaseURL:       "https://www.genspark.ai",
				LoginURL:      "https://www.genspark.ai/signin",
				AuthIndicator: `textarea`,
				Selectors: map[Role][]string{
					RoleInput: {
						`textarea[placeholder*="Ask"]`,
						`textarea`,
					},
					RoleSendButton: {
						`button[type="submit"]`,
						`button[aria-label*="Send"]`,
					},
					RoleResponseContainer: {
						`div[class*="response"]`,
						`div[class*="answer"]`,
					},
				},
				Strategy: DefaultStrategy(),
			},
			"aistudio": {
				ID:            "aistudio",
				BaseURL:       "https://aistudio.google.com",
				LoginURL:      "https://aistudio.google.com",
				AuthIndicator: `div.prompt-textarea`,
				Selectors: map[Role][]string{
					RoleInput: {
						`div.prompt-textarea`,
						`textarea[aria-label*="prompt"]`,
						`div[contenteditable="true"]`,
					},
					RoleSendButton: {
						`button[aria-label*="Run"]`,
						`button[type="submit"]`,
					},
					RoleResponseContainer: {
						`div[class*="model-turn"]`,
						`div[class*="response"]`,
					},
				},
				Strategy: DefaultStrategy(),
			},
		},
		Generic: map[Role][]string{
			RoleInput: {
				`textarea:visible`,
				`div[contenteditable="true"]:visible`,
				`input[type="text"]:visible`,
			},
			RoleSendButton: {
				`button:visible:not([disabled])`,
				`div[role="button"]:visible`,
			},
		},
	}
}
