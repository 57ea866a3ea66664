package svg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
)

const (
	lanePadding = 6.0
	itemGap     = 4.0
	minItemPx   = 3.0
	xhtmlNS     = "http://www.w3.org/1999/xhtml"
)

const baseStyle = `.lt-timeline { font-family: sans-serif; }
.lt-axis line { stroke: #d0d0d0; }
.lt-axis text { fill: #555; }
.lt-lane { fill: none; stroke: #e6e6e6; }
.lt-label-bg { fill: #fafafa; }
.lt-item rect { stroke: rgba(0, 0, 0, 0.2); }
.lt-item.lt-open rect { stroke-dasharray: 4 2; }
.lt-item.lt-selected rect { stroke: #1a73e8; stroke-width: 2; }
.lt-now { stroke: #d93025; stroke-width: 1; }
`

// draw lays out the visible items and replaces the frame. Called with mu
// held. A container that lost its size keeps the previous frame.
func (s *Surface) draw() {
	width, height := s.container.Size()
	if width <= 0 || height <= 0 {
		return
	}
	o := s.opts
	sc := scale{w: s.window, x0: float64(o.LabelWidth), x1: float64(width)}
	lanes := s.layout(lifeline.Visible(s.items, s.window), sc)

	docHeight := float64(height)
	if len(lanes) > 0 {
		last := lanes[len(lanes)-1]
		if bottom := last.y + last.h; bottom > docHeight {
			docHeight = bottom
		}
	}

	drawn := make(map[render.ElementRef]struct{})
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" id="%s" class="lt-timeline" width="%d" height="%.0f" viewBox="0 0 %d %.0f" font-size="%d"%s>
<defs>
<style>
%s%s</style>
</defs>
`, escapeXML(s.container.ID()), width, docHeight, width, docHeight, o.FontSize,
		s.colorStyle(), baseStyle, o.Styles.Stylesheet())

	s.drawAxis(&b, sc, docHeight)
	for _, ln := range lanes {
		s.drawLane(&b, ln, float64(width), drawn)
	}
	if now := o.Now(); !now.Before(s.window.Start) && !now.After(s.window.End) {
		x := sc.x(now)
		fmt.Fprintf(&b, `<line class="lt-now" x1="%.1f" y1="%d" x2="%.1f" y2="%.0f"/>`+"\n",
			x, o.AxisHeight, x, docHeight)
	}
	b.WriteString("</svg>\n")
	s.frame = []byte(b.String())

	for ref := range s.shown {
		if _, ok := drawn[ref]; !ok {
			s.tpl.Release(ref)
		}
	}
	s.shown = drawn
}

// layout groups visible items into lanes. Without groups every item shares
// one unlabeled lane; with groups, items of unknown groups are not drawn.
func (s *Surface) layout(visible []lifeline.Interval, sc scale) []lane {
	var lanes []lane
	index := make(map[int]int)
	if len(s.groups) == 0 {
		lanes = []lane{{}}
	} else {
		for i, g := range s.groups {
			lanes = append(lanes, lane{group: g})
			index[g.ID] = i
		}
	}

	for _, iv := range visible {
		li := 0
		if len(s.groups) > 0 {
			var ok bool
			if li, ok = index[iv.GroupID]; !ok {
				continue
			}
		}
		x0, x1 := sc.x(iv.Start), sc.x(iv.End)
		w := x1 - x0
		if w < minItemPx {
			w = minItemPx
		}
		lanes[li].items = append(lanes[li].items, placed{iv: iv, x: x0, w: w})
	}

	y := float64(s.opts.AxisHeight)
	for i := range lanes {
		lanes[i].rows = stack(lanes[i].items, itemGap)
		lanes[i].y = y
		lanes[i].h = float64(lanes[i].rows*s.opts.RowHeight) + 2*lanePadding
		y += lanes[i].h
	}
	return lanes
}

func (s *Surface) drawAxis(b *strings.Builder, sc scale, docHeight float64) {
	b.WriteString(`<g class="lt-axis">` + "\n")
	for _, t := range ticks(s.window) {
		x := sc.x(t.at)
		fmt.Fprintf(b, `<line x1="%.1f" y1="%d" x2="%.1f" y2="%.0f"/><text x="%.1f" y="%d">%s</text>`+"\n",
			x, s.opts.AxisHeight-6, x, docHeight, x+3, s.opts.AxisHeight-10, escapeXML(t.label))
	}
	b.WriteString("</g>\n")
}

func (s *Surface) drawLane(b *strings.Builder, ln lane, width float64, drawn map[render.ElementRef]struct{}) {
	o := s.opts
	labelW := float64(o.LabelWidth)
	class := "lt-lane"
	if ln.group.ID > 0 {
		class += " " + render.GroupClass(ln.group.ID)
	}
	fmt.Fprintf(b, `<g class="%s" data-group="%d">`+"\n", class, ln.group.ID)
	fmt.Fprintf(b, `<rect class="lt-label-bg" x="0" y="%.1f" width="%.0f" height="%.1f"/>`,
		ln.y, labelW, ln.h)
	fmt.Fprintf(b, `<rect class="lt-lane" x="%.0f" y="%.1f" width="%.0f" height="%.1f"/>`+"\n",
		labelW, ln.y, width-labelW, ln.h)

	if ln.group.ID > 0 {
		ref := render.GroupRef(ln.group.ID)
		drawn[ref] = struct{}{}
		content := s.tpl.GroupContent(ref, ln.group)
		s.writeContent(b, content, ln.group.Label, 4, ln.y+lanePadding, labelW-8, float64(o.RowHeight))
	}

	for _, p := range ln.items {
		ref := render.ItemRef(p.iv.ID)
		drawn[ref] = struct{}{}
		y := ln.y + lanePadding + float64(p.row*o.RowHeight)
		h := float64(o.RowHeight) - 4

		cls := "lt-item " + render.GroupClass(p.iv.GroupID)
		if p.iv.HasOpenEnd {
			cls += " lt-open"
		}
		if _, ok := s.selected[p.iv.ID]; ok {
			cls += " lt-selected"
		}
		fmt.Fprintf(b, `<g class="%s" data-id="%s"><title>%s</title>`,
			cls, escapeXML(p.iv.ID), escapeXML(p.iv.Title))
		fmt.Fprintf(b, `<rect class="%s" x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="3"/>`,
			render.GroupClass(p.iv.GroupID), p.x, y, p.w, h)
		s.writeContent(b, s.tpl.ItemContent(ref, p.iv), p.iv.Title, p.x+3, y, p.w-6, h)
		b.WriteString("</g>\n")
	}
	b.WriteString("</g>\n")
}

// writeContent emits templated XHTML with a plain-text fallback truncated to
// the available width.
func (s *Surface) writeContent(b *strings.Builder, content, fallback string, x, y, w, h float64) {
	if w <= 0 {
		return
	}
	text := truncate(fallback, w, s.opts.FontSize)
	b.WriteString("<switch>")
	if content != "" {
		fmt.Fprintf(b, `<foreignObject x="%.1f" y="%.1f" width="%.1f" height="%.1f" requiredExtensions="%s"><div xmlns="%s" class="lt-content">%s</div></foreignObject>`,
			x, y, w, h, xhtmlNS, xhtmlNS, content)
	}
	fmt.Fprintf(b, `<text x="%.1f" y="%.1f">%s</text>`, x, y+h/2+float64(s.opts.FontSize)/3, escapeXML(text))
	b.WriteString("</switch>")
}

// colorStyle publishes the group color properties of the container on the
// root element so that the registry rules can resolve them.
func (s *Surface) colorStyle() string {
	var decls []string
	for _, g := range s.groups {
		name := render.GroupColorProperty(g.ID)
		if v, ok := s.container.Property(name); ok {
			decls = append(decls, name+": "+v)
		}
	}
	if len(decls) == 0 {
		return ""
	}
	sort.Strings(decls)
	return ` style="` + escapeXML(strings.Join(decls, "; ")) + `"`
}

// truncate shortens s to fit px at the given font size, counting East Asian
// wide runes twice. Glyphs are assumed to be 0.6 em wide on average.
func truncate(s string, px float64, fontSize int) string {
	cols := int(px / (float64(fontSize) * 0.6))
	if cols <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= cols {
		return s
	}
	if cols == 1 {
		return "…"
	}
	return runewidth.Truncate(s, cols, "…")
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
