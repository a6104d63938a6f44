// Package templates holds the dashboard page and the fragments patched into
// it over SSE.
package templates

import (
	"context"
	"embed"
	"html/template"
	"strings"

	"github.com/a-h/templ"
)

//go:embed html/*.gohtml
var files embed.FS

var views = template.Must(template.ParseFS(files, "html/*.gohtml"))

// view exposes a named html/template as a templ component.
func view(name string, data any) templ.Component {
	return templ.FromGoHTML(views.Lookup(name), data)
}

// RenderString renders c into a string, for datastar element patches.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf strings.Builder
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
