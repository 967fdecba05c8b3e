package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var manuscriptTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower":    strings.ToLower,
		"join":     strings.Join,
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/manuscript.html")
	if err != nil {
		// Fallback to built-in template if file not found
		manuscriptTemplate = template.Must(template.New("manuscript").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	manuscriptTemplate = template.Must(template.New("manuscript").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for manuscript template rendering
type TemplateData struct {
	Title       string
	Author      string
	Genres      []string
	Description string
	ContentHTML template.HTML
	Chapters    []TemplateChapter
}

// TemplateChapter holds one chapter for the template
type TemplateChapter struct {
	Label       string
	ContentHTML template.HTML
}

// RenderManuscriptHTML renders the manuscript template with provided data
func RenderManuscriptHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := manuscriptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.7; max-width: 700px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .chapter { page-break-before: always; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}}{{if .Genres}} | {{join .Genres ", "}}{{end}}</div>
  {{if .Description}}<p><em>{{.Description}}</em></p>{{end}}
  <div>{{.ContentHTML | safeHTML}}</div>
  {{range .Chapters}}
  <div class="chapter">
    <h2>{{.Label}}</h2>
    <div>{{.ContentHTML | safeHTML}}</div>
  </div>
  {{end}}
</body>
</html>`
