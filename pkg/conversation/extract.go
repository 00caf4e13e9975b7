package conversation

import (
	"strings"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/net/html"

	"github.com/ktsuji/chatdrive/pkg/profile"
)

// extractResponse pulls the newest response container off the page and
// flattens its markup into clean text. Candidate selectors are tried
// in catalog order; the last match of the first selector that yields
// any is taken as the newest response.
func (h *Handler) extractResponse(page playwright.Page) (string, bool) {
	service, generic := h.catalog.Selectors(h.service, profile.RoleResponseContainer)

	for _, sel := range append(service, generic...) {
		containers, err := page.QuerySelectorAll(sel)
		if err != nil || len(containers) == 0 {
			continue
		}

		latest := containers[len(containers)-1]
		raw, err := latest.InnerHTML()
		if err != nil {
			h.log.Warnf("Failed to read response container for %s: %v", h.service, err)
			continue
		}
		return flattenHTML(raw), true
	}

	h.log.Warnf("No response containers found for %s", h.service)
	return "", false
}

// flattenHTML reduces a markup fragment to readable text: scripts,
// styles, and similar noise are dropped, block-level elements become
// line breaks, and blank lines are squeezed out.
func flattenHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	var builder strings.Builder
	flattenNode(doc, &builder)

	return squeezeLines(builder.String())
}

func flattenNode(n *html.Node, builder *strings.Builder) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode && isNoiseElement(strings.ToLower(n.Data)) {
		return
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
				builder.WriteString(" ")
			}
			builder.WriteString(text)
		}
		return
	}

	if n.Type == html.ElementNode && strings.ToLower(n.Data) == "br" {
		builder.WriteString("\n")
		return
	}

	block := n.Type == html.ElementNode && isBlockElement(strings.ToLower(n.Data))
	if block && builder.Len() > 0 {
		builder.WriteString("\n")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(c, builder)
	}

	if block {
		builder.WriteString("\n")
	}
}

func squeezeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isNoiseElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "svg", "button":
		return true
	}
	return false
}

func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "tr", "blockquote", "pre":
		return true
	}
	return false
}
