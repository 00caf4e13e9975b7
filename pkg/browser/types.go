package browser

import "time"

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Options configures the shared browser process and the contexts
// allocated from it.
type Options struct {
	// Headless controls whether the browser runs without a visible
	// window. Manual login requires a headed browser.
	Headless bool

	// UseLocalProfile copies selected state files from a real local
	// Chrome profile into an ephemeral directory at startup.
	UseLocalProfile bool

	// ProfileName is the local Chrome profile to copy from.
	ProfileName string

	// Viewport is the fixed viewport applied to every context.
	Viewport *Viewport

	// UserAgent is the fixed user agent applied to every context.
	UserAgent string

	// BlockedResources are request resource types aborted by the
	// interceptor. This is a bandwidth and latency optimization, not a
	// security boundary.
	BlockedResources []string

	// BlockedDomains are glob patterns of URLs aborted by the
	// interceptor.
	BlockedDomains []string
}

// Default values for browser configuration.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultProfileName    = "Default"
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultNavigationTimeout bounds a single navigation attempt.
	DefaultNavigationTimeout = 30 * time.Second

	// navigationRetries is how many times SafeGoto attempts a navigation.
	navigationRetries = 3
)

// DefaultBlockedResources are the resource types aborted by default.
func DefaultBlockedResources() []string {
	return []string{"image", "font", "media"}
}

// DefaultBlockedDomains are the URL patterns aborted by default:
// trackers and analytics that slow page loads without affecting the
// conversation UI.
func DefaultBlockedDomains() []string {
	return []string{
		"*analytics.*",
		"*googletagmanager.*",
		"*facebook.*",
		"*doubleclick.*",
	}
}

// withDefaults fills unset options in place.
func (o *Options) withDefaults() {
	if o.ProfileName == "" {
		o.ProfileName = DefaultProfileName
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.BlockedResources == nil {
		o.BlockedResources = DefaultBlockedResources()
	}
	if o.BlockedDomains == nil {
		o.BlockedDomains = DefaultBlockedDomains()
	}
}
