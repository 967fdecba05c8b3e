package export

import (
	"html"
	"strings"
)

// ContentToHTML converts manuscript plain text to HTML. Blank lines split
// paragraphs; single newlines inside a paragraph become line breaks.
func ContentToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var sb strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(line))
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.Join(lines, "<br>"))
		sb.WriteString("</p>")
	}
	return sb.String()
}
