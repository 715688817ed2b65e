// Package render performs the logic-less parameter substitution that turns a
// catalog template body into servable HTML.
package render

import (
	"bytes"
	"fmt"
	"text/template"
)

// Params are the only values a form template may interpolate: the submission
// callback URL and a JSON string of the request identifiers.
type Params struct {
	ActionURL      string
	SubmissionData string
}

// Renderer substitutes Params into a template body. Implementations must be
// purely textual; templates carry no executable logic.
type Renderer interface {
	Render(templateBody string, params Params) (string, error)
}

// TemplateRenderer renders with text/template. html/template is deliberately
// not used: its contextual escaping would rewrite the injected JSON blob, and
// the template bodies are trusted operator-owned files, not user input.
type TemplateRenderer struct{}

func NewTemplateRenderer() TemplateRenderer { return TemplateRenderer{} }

func (TemplateRenderer) Render(templateBody string, params Params) (string, error) {
	tmpl, err := template.New("form").Option("missingkey=error").Parse(templateBody)
	if err != nil {
		return "", fmt.Errorf("parse form template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render form template: %w", err)
	}
	return buf.String(), nil
}
