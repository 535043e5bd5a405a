package sqlgate

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlMarkers = []string{"<pre", "<code", "<p>", "<p ", "<div", "<span", "<html", "<body", "<br"}

	htmlTagPattern   = regexp.MustCompile(`(?i)</?(?:pre|code|p|div|span|html|head|body|br)(?:\s[^>]*)?/?>`)
	fencedSQLPattern = regexp.MustCompile("(?is)```[ \\t]*(?:sql\\b)?(.*?)```")
	openFencePattern = regexp.MustCompile("(?is)```[ \\t]*(?:sql\\b)?(.*)$")
	labelLinePattern = regexp.MustCompile(`(?im)^[ \t]*(?:question|sqlquery)[ \t]*:.*$`)
)

const trimSet = "` \t\n\v\f\r"

// Extract pulls a single candidate statement out of free-form model output.
// It never fails; in the worst case the trimmed input is returned.
func Extract(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := raw
	if hasHTMLMarkers(text) {
		text = StripHTML(text)
	}
	if match := fencedSQLPattern.FindStringSubmatch(text); match != nil {
		text = match[1]
	} else if loc := openFencePattern.FindStringSubmatchIndex(text); loc != nil {
		// unterminated fence, usually a truncated completion; a dangling
		// closer after the statement keeps what precedes it
		if body := text[loc[2]:loc[3]]; strings.Trim(body, trimSet) != "" {
			text = body
		} else {
			text = text[:loc[0]]
		}
	}
	text = StripLabelLines(text)
	return strings.Trim(text, trimSet)
}

// StripHTML removes the fixed set of wrapper tags a model tends to echo and
// decodes entities, keeping inner text as-is.
func StripHTML(text string) string {
	stripped := htmlTagPattern.ReplaceAllString(text, "")
	return html.UnescapeString(stripped)
}

// StripLabelLines drops "question:" and "sqlquery:" preamble lines.
func StripLabelLines(text string) string {
	return labelLinePattern.ReplaceAllString(text, "")
}

func hasHTMLMarkers(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range htmlMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
