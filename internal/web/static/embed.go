// Package static holds the embedded dashboard templates.
package static

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Dashboard parses the dashboard page template.
func Dashboard() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/dashboard.html")
}
