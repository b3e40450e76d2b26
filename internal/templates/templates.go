// Package templates renders the HTML pages shown in the browser at the end
// of the authorization redirect
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"
)

//go:embed html/*.html
var content embed.FS

// Templates manages the HTML templates
type Templates struct {
	complete *template.Template
	error    *template.Template
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	// Load complete page template
	if t.complete, err = template.ParseFS(content, "html/layout.html", "html/complete.html"); err != nil {
		return nil, &TemplateError{Message: "parsing complete page", Cause: err}
	}

	// Load error page template
	if t.error, err = template.ParseFS(content, "html/layout.html", "html/error.html"); err != nil {
		return nil, &TemplateError{Message: "parsing error page", Cause: err}
	}

	return t, nil
}

// CompleteData holds data for the completion page
type CompleteData struct {
	Message string

	// Summary is the redacted token summary
	Summary string
}

// RenderComplete renders the completion page with status 200
func (t *Templates) RenderComplete(w http.ResponseWriter, data CompleteData) error {
	return t.render(w, t.complete, http.StatusOK, data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Title    string
	Message  string
	RetryURL string

	// Status defaults to 400
	Status int
}

// RenderError renders the error page
func (t *Templates) RenderError(w http.ResponseWriter, data ErrorData) error {
	status := data.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	return t.render(w, t.error, status, data)
}

// render executes into a buffer first so a failing template never leaves a
// half-written page behind
func (t *Templates) render(w http.ResponseWriter, tmpl *template.Template, status int, data interface{}) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return &TemplateError{Message: "rendering page", Cause: err}
	}

	sw := t.NewSafeWriter(w)
	sw.SetStatusCode(status)
	if _, err := io.Copy(sw, &buf); err != nil {
		return &TemplateError{Message: "writing page", Cause: err}
	}
	return nil
}
