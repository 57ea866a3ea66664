package render

import (
	"bytes"
	"html/template"

	"github.com/starford/lifeline/internal/lifeline"
)

// Item and group content is XHTML placed inside the surface's
// foreignObject, so void elements are self-closed.
var (
	itemTmpl = template.Must(template.New("item").Parse(
		`<div class="lt-item-content">` +
			`<span class="lt-title">{{.Title}}</span>` +
			`{{if .Thumbnails}}{{range .Images}}<img class="lt-thumb" src="{{.}}" alt=""/>{{end}}{{end}}` +
			`{{range .Tags}}<span class="lt-tag">{{.}}</span>{{end}}` +
			`</div>`))
	groupTmpl = template.Must(template.New("group").Parse(
		`<div class="lt-group-label">{{.Label}}</div>`))
)

type itemData struct {
	lifeline.Interval
	Thumbnails bool
}

// contentRenderer renders the content of one element. It caches its last
// output and is disposed when the surface releases the element or the
// adapter unmounts.
type contentRenderer struct {
	ref      ElementRef
	last     string
	renders  int
	disposed bool
}

func (c *contentRenderer) renderItem(iv lifeline.Interval, thumbnails bool) string {
	var buf bytes.Buffer
	if err := itemTmpl.Execute(&buf, itemData{Interval: iv, Thumbnails: thumbnails}); err != nil {
		return c.last
	}
	c.last = buf.String()
	c.renders++
	return c.last
}

func (c *contentRenderer) renderGroup(g lifeline.Group) string {
	var buf bytes.Buffer
	if err := groupTmpl.Execute(&buf, g); err != nil {
		return c.last
	}
	c.last = buf.String()
	c.renders++
	return c.last
}

func (c *contentRenderer) dispose() {
	c.disposed = true
	c.last = ""
}
