package tour

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	titlePolicy = bluemonday.StrictPolicy()
	bodyPolicy  = bodyHTMLPolicy()
)

// Step bodies may carry light inline formatting; titles are plain text.
func bodyHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "code", "br", "p", "ul", "ol", "li")
	return p
}

// Sanitize strips markup a tour file must not inject into the host page.
func Sanitize(c Content) Content {
	c.Title = strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(c.Title)))
	c.Body = strings.TrimSpace(bodyPolicy.Sanitize(c.Body))
	return c
}
