package critical

import (
	"strings"
	"text/template"
)

var inlineTemplate = template.Must(template.New("critical-inline").Parse(
	`<style id="critical-css">{{.CSS}}</style>
<link rel="preload" href="{{.Href}}" as="style" onload="this.onload=null;this.rel='stylesheet'">
<noscript><link rel="stylesheet" href="{{.Href}}"></noscript>
`))

// InlineHTML renders the delivery fragment: the minified bundle inlined in a
// <style> block plus an async loader for the full stylesheet with a
// <noscript> fallback.
func InlineHTML(minified, stylesheetHref string) (string, error) {
	var b strings.Builder
	err := inlineTemplate.Execute(&b, struct {
		CSS  string
		Href string
	}{
		// A literal closing tag would end the style element early.
		CSS:  strings.ReplaceAll(minified, "</style", `<\/style`),
		Href: template.HTMLEscapeString(stylesheetHref),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
