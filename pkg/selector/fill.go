package selector

import (
	"github.com/atotto/clipboard"
	"github.com/playwright-community/playwright-go"

	"github.com/ktsuji/chatdrive/pkg/profile"
)

// typeDelayMs spaces out keystrokes for services whose editors drop
// programmatic value changes unless they look typed.
const typeDelayMs = 50.0

// Fill clears the element and enters text using the service's
// interaction strategy. It reports success; failures are logged and
// absorbed here rather than thrown past this boundary.
func (r *Resolver) Fill(page playwright.Page, element playwright.ElementHandle, text string, serviceID string) bool {
	strategy := r.Strategy(serviceID)

	if err := r.clear(page, element, strategy.ClearMethod); err != nil {
		r.log.Errorf("Failed to clear input for %s: %v", serviceID, err)
		return false
	}

	var err error
	switch strategy.InputMethod {
	case profile.InputCharByChar:
		err = element.Type(text, playwright.ElementHandleTypeOptions{
			Delay: playwright.Float(typeDelayMs),
		})
	case profile.InputClipboardPaste:
		err = r.pasteText(page, element, text)
	default: // profile.InputDirectSet
		err = element.Fill(text)
	}

	if err != nil {
		r.log.Errorf("Failed to input text for %s: %v", serviceID, err)
		return false
	}
	return true
}

// clear removes any existing text from the element.
func (r *Resolver) clear(page playwright.Page, element playwright.ElementHandle, method profile.ClearMethod) error {
	switch method {
	case profile.ClearNative:
		return element.Fill("")
	default: // profile.ClearSelectAllDelete
		if err := element.Click(); err != nil {
			return err
		}
		if err := page.Keyboard().Press("ControlOrMeta+a"); err != nil {
			return err
		}
		return page.Keyboard().Press("Delete")
	}
}

// pasteText loads text onto a clipboard and pastes it into the
// element. The in-page clipboard API is preferred: the text travels as
// a structured evaluate argument, so it is serialized safely no matter
// what it contains. Headed browsers that refuse clipboard writes
// outside a user gesture fall back to the OS clipboard.
func (r *Resolver) pasteText(page playwright.Page, element playwright.ElementHandle, text string) error {
	if _, err := page.Evaluate("text => navigator.clipboard.writeText(text)", text); err != nil {
		r.log.Debugf("In-page clipboard write failed, using OS clipboard: %v", err)
		if err := clipboard.WriteAll(text); err != nil {
			return err
		}
	}

	if err := element.Click(); err != nil {
		return err
	}
	return page.Keyboard().Press("ControlOrMeta+v")
}
