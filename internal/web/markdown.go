package web

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
)

// renderMarkdown converts a model answer to HTML for the chat view.
// Answers frequently contain tables and code blocks, so markdown is
// rendered rather than shown raw. Goldmark escapes raw HTML by
// default, which keeps model output from injecting markup.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		// Fall back to escaped plain text.
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
