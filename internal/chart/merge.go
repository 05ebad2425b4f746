package chart

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackHeading introduces charts whose anchor heading is missing.
const FallbackHeading = "### Data Visualization"

// Markup returns the markdown figure for a chart image.
func Markup(description, url string) string {
	return fmt.Sprintf("\n\n![%s](%s)\n\n*Figure: %s*\n\n", description, url, description)
}

// NormalizeAnchor prefixes anchors lacking heading markup with "### ".
func NormalizeAnchor(anchor string) string {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" || strings.HasPrefix(anchor, "#") {
		return anchor
	}
	return "### " + anchor
}

// Merge inserts the figure for url into content at the end of the block
// under anchor: before the next heading of the same or a higher level, or at
// the end of content. The anchor heading is matched exactly first, then
// case-insensitively. When it cannot be found the figure is appended under
// FallbackHeading. An empty url leaves content unchanged.
func Merge(content, anchor, description, url string) string {
	if url == "" {
		return content
	}
	markup := Markup(description, url)

	anchor = NormalizeAnchor(anchor)
	if anchor == "" {
		return appendFallback(content, markup)
	}

	loc := findHeading(content, anchor, false)
	if loc == nil {
		loc = findHeading(content, anchor, true)
	}
	if loc == nil {
		return appendFallback(content, markup)
	}

	level := len(anchor) - len(strings.TrimLeft(anchor, "#"))
	next := regexp.MustCompile(fmt.Sprintf(`(?m)^#{1,%d}[ \t]`, level))

	end := len(content)
	rest := content[loc[1]:]
	if m := next.FindStringIndex(rest); m != nil {
		end = loc[1] + m[0]
	}

	before := strings.TrimRight(content[:end], " \t\n")
	after := strings.TrimLeft(content[end:], "\n")
	return before + markup + after
}

func findHeading(content, anchor string, foldCase bool) []int {
	flags := "(?m)"
	if foldCase {
		flags = "(?mi)"
	}
	re := regexp.MustCompile(flags + `^` + regexp.QuoteMeta(anchor) + `[ \t]*$`)
	return re.FindStringIndex(content)
}

func appendFallback(content, markup string) string {
	return strings.TrimRight(content, " \t\n") + "\n\n---\n\n" + FallbackHeading + markup
}
