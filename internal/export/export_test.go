package export

import (
	"strings"
	"testing"
)

func TestContentToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    "  \n \n ",
			expected: "",
		},
		{
			name:     "single paragraph",
			input:    "It was a dark and stormy night.",
			expected: "<p>It was a dark and stormy night.</p>",
		},
		{
			name:     "two paragraphs",
			input:    "First paragraph.\n\nSecond paragraph.",
			expected: "<p>First paragraph.</p><p>Second paragraph.</p>",
		},
		{
			name:     "line break inside paragraph",
			input:    "Line one\nLine two",
			expected: "<p>Line one<br>Line two</p>",
		},
		{
			name:     "windows line endings",
			input:    "First.\r\n\r\nSecond.",
			expected: "<p>First.</p><p>Second.</p>",
		},
		{
			name:     "html is escaped",
			input:    "a <b>bold</b> claim & more",
			expected: "<p>a &lt;b&gt;bold&lt;/b&gt; claim &amp; more</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentToHTML(tt.input)
			if got != tt.expected {
				t.Errorf("ContentToHTML() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRenderManuscriptHTML(t *testing.T) {
	data := TemplateData{
		Title:       "The Long Voyage",
		Author:      "A. Writer",
		Genres:      []string{"Adventure", "Historical"},
		Description: "A tale of the sea.",
		ContentHTML: "<p>Opening lines.</p>",
		Chapters: []TemplateChapter{
			{Label: "Chapter One", ContentHTML: "<p>It begins.</p>"},
			{Label: "Chapter Two", ContentHTML: "<p>It continues.</p>"},
		},
	}

	html, err := RenderManuscriptHTML(data)
	if err != nil {
		t.Fatalf("RenderManuscriptHTML failed: %v", err)
	}

	for _, want := range []string{
		"The Long Voyage",
		"A. Writer",
		"Adventure, Historical",
		"A tale of the sea.",
		"<p>Opening lines.</p>",
		"Chapter One",
		"<p>It begins.</p>",
		"Chapter Two",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered manuscript missing %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"The Long Voyage", "The-Long-Voyage"},
		{"weird/chars:here?", "weirdcharshere"},
		{"", "manuscript"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
