package browser

// launchArgs reduce the browser's automation fingerprint and disable
// background throttling that stalls completion detection on hidden
// pages.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--disable-features=IsolateOrigins,site-per-process",
	"--disable-notifications",
	"--disable-geolocation",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
}

// stealthScript runs before any page script in every context and
// overrides the runtime properties automation detectors probe for.
// Best effort only: sophisticated defenses are out of scope.
const stealthScript = `
// Override navigator.webdriver — headless launches set it to true
Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined
});

// Headless Chromium ships an empty plugin list
Object.defineProperty(navigator, 'plugins', {
    get: () => [
        {
            0: {type: "application/x-google-chrome-pdf", suffixes: "pdf"},
            description: "Portable Document Format",
            filename: "internal-pdf-viewer",
            length: 1,
            name: "Chrome PDF Plugin"
        }
    ]
});

Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en']
});

// Permissions API: notifications queries must mirror the Notification
// global instead of rejecting like an automated profile does
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications' ?
        Promise.resolve({ state: Notification.permission }) :
        originalQuery(parameters)
);
`
