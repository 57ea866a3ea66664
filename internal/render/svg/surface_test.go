package svg

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
)

var fixedNow = time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type recordingTemplater struct {
	released []render.ElementRef
}

func (r *recordingTemplater) ItemContent(_ render.ElementRef, iv lifeline.Interval) string {
	return "<b>" + iv.Title + "</b>"
}

func (r *recordingTemplater) GroupContent(_ render.ElementRef, g lifeline.Group) string {
	return "<i>" + g.Label + "</i>"
}

func (r *recordingTemplater) Release(ref render.ElementRef) {
	r.released = append(r.released, ref)
}

func newSurface(t *testing.T, tpl render.Templater) *Surface {
	t.Helper()
	s, err := New(render.NewBox("tl", 1000, 300), tpl,
		WithClock(func() time.Time { return fixedNow }),
		WithStyleRegistry(render.NewStyleRegistry()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sample() []lifeline.Interval {
	return []lifeline.Interval{
		{ID: "A", GroupID: 1, Title: "First job", Start: day(2024, 1, 1), End: day(2024, 1, 2)},
		{ID: "B", GroupID: 2, Title: "Lisbon", Start: day(2024, 6, 1), End: fixedNow, HasOpenEnd: true},
		{ID: "old", GroupID: 1, Title: "School", Start: day(2010, 9, 1), End: day(2014, 6, 30)},
	}
}

func sampleGroups() []lifeline.Group {
	return []lifeline.Group{
		{ID: 1, Label: "Career", Color: lifeline.DefaultPalette.Color(0)},
		{ID: 2, Label: "Travel", Color: lifeline.DefaultPalette.Color(1)},
	}
}

func TestNew_RejectsUnusableContainer(t *testing.T) {
	tpl := &recordingTemplater{}
	if _, err := New(nil, tpl); err == nil {
		t.Error("nil container accepted")
	}
	if _, err := New(render.NewBox("tl", 0, 300), tpl); err == nil {
		t.Error("zero width accepted")
	}
	if _, err := New(render.NewBox("tl", 100, -1), tpl); err == nil {
		t.Error("negative height accepted")
	}
	if _, err := New(render.NewBox("tl", 100, 100), nil); err == nil {
		t.Error("nil templater accepted")
	}
}

func TestSurface_DrawsOnlyVisibleItems(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	s.SetGroups(sampleGroups())
	s.ReplaceItems(sample())
	s.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)})

	frame := string(s.Frame())
	for _, want := range []string{`data-id="A"`, `data-id="B"`, "lt-item lt-group-2 lt-open", "<b>Lisbon</b>", "<i>Career</i>"} {
		if !strings.Contains(frame, want) {
			t.Errorf("frame lacks %q", want)
		}
	}
	if strings.Contains(frame, `data-id="old"`) {
		t.Error("item outside the window was drawn")
	}
	if !strings.Contains(frame, ">Jan 2024<") {
		t.Error("expected monthly axis labels for a one-year window")
	}
	if !strings.Contains(frame, `class="lt-now"`) {
		t.Error("now marker missing")
	}
}

func TestSurface_ReleasesElementsThatLeave(t *testing.T) {
	tpl := &recordingTemplater{}
	s := newSurface(t, tpl)
	s.ReplaceItems(sample())
	s.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)})
	tpl.released = nil

	s.SetWindow(lifeline.Window{Start: day(2024, 2, 1), End: day(2024, 2, 28)})
	if len(tpl.released) != 2 {
		t.Errorf("released = %v, want A and B", tpl.released)
	}

	tpl.released = nil
	s.Destroy()
	if len(tpl.released) != 0 {
		t.Errorf("nothing was shown, yet Destroy released %v", tpl.released)
	}
}

func TestSurface_DestroyReleasesShown(t *testing.T) {
	tpl := &recordingTemplater{}
	s := newSurface(t, tpl)
	s.SetGroups(sampleGroups())
	s.ReplaceItems(sample())
	s.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)})
	tpl.released = nil

	s.Destroy()
	if len(tpl.released) != 4 {
		t.Errorf("released = %v, want 2 items and 2 groups", tpl.released)
	}
	s.ReplaceItems(sample())
	if s.Frame() != nil {
		t.Error("destroyed surface drew a frame")
	}
}

func TestSurface_SelectNotifies(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	s.ReplaceItems(sample())
	s.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)})

	var got []string
	calls := 0
	s.OnSelect(func(ids []string) {
		calls++
		got = ids
		// Listeners may call back into the surface.
		_ = s.Window()
	})

	s.Select([]string{"A", "missing", "A"})
	if calls != 1 || len(got) != 1 || got[0] != "A" {
		t.Fatalf("calls = %d got = %v", calls, got)
	}
	if !strings.Contains(string(s.Frame()), "lt-selected") {
		t.Error("selected class missing")
	}

	s.Select(nil)
	if len(got) != 0 || len(s.Selected()) != 0 {
		t.Errorf("selection not cleared: %v", got)
	}
}

func TestSurface_ReplaceDropsStaleSelection(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	s.ReplaceItems(sample())
	s.Select([]string{"A"})
	s.ReplaceItems(sample()[1:])
	if len(s.Selected()) != 0 {
		t.Errorf("selected = %v", s.Selected())
	}
}

func TestSurface_PanZoomNotifyButSetWindowDoesNot(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	var windows []lifeline.Window
	s.OnRangeChange(func(w lifeline.Window) { windows = append(windows, w) })

	start := lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 1, 11)}
	s.SetWindow(start)
	if len(windows) != 0 {
		t.Fatal("programmatic SetWindow notified the range listener")
	}

	s.Pan(24 * time.Hour)
	s.Zoom(2)
	if len(windows) != 2 {
		t.Fatalf("notifications = %d, want 2", len(windows))
	}
	if !windows[0].Start.Equal(day(2024, 1, 2)) {
		t.Errorf("pan start = %v", windows[0].Start)
	}
	if windows[1].Span() != 20*24*time.Hour {
		t.Errorf("zoom span = %v", windows[1].Span())
	}
	if !s.Window().Equal(windows[1]) {
		t.Error("surface window differs from the notified one")
	}
}

func TestSurface_InvalidWindowIgnored(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	before := s.Window()
	s.SetWindow(lifeline.Window{Start: day(2024, 2, 1), End: day(2024, 1, 1)})
	if !s.Window().Equal(before) {
		t.Error("reversed window was applied")
	}
}

func TestSurface_UpsertKeepsOthers(t *testing.T) {
	s := newSurface(t, &recordingTemplater{})
	s.ReplaceItems(sample())
	s.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)})
	changed := sample()[0]
	changed.Title = "Promoted"
	s.UpsertItems([]lifeline.Interval{changed})

	frame := string(s.Frame())
	if !strings.Contains(frame, "Promoted") || !strings.Contains(frame, "Lisbon") {
		t.Error("upsert lost or did not apply content")
	}
	if strings.Contains(frame, "First job") {
		t.Error("old title still drawn")
	}
}

func TestSurface_WithAdapterColors(t *testing.T) {
	reg := render.NewStyleRegistry()
	a := render.NewAdapter(Factory(WithClock(func() time.Time { return fixedNow }), WithStyleRegistry(reg)),
		render.WithStyles(reg))
	box := render.NewBox("life", 900, 240)
	if err := a.Mount(box); err != nil {
		t.Fatal(err)
	}
	if err := a.UpdateGroups(sampleGroups()); err != nil {
		t.Fatal(err)
	}
	if err := a.UpdateItems(sample()); err != nil {
		t.Fatal(err)
	}
	if err := a.SetWindow(lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)}); err != nil {
		t.Fatal(err)
	}

	framer, ok := a.Surface().(render.Framer)
	if !ok {
		t.Fatal("svg surface is not a Framer")
	}
	frame := string(framer.Frame())
	if !strings.Contains(frame, "--lt-group-1-color: "+lifeline.DefaultPalette.Color(0)) {
		t.Errorf("group color property missing from root style")
	}
	if !strings.Contains(frame, ".lt-group-2 { fill: var(--lt-group-2-color)") {
		t.Error("group rule missing from stylesheet")
	}
	if !strings.Contains(frame, `class="lt-title">Lisbon</span>`) {
		t.Error("templated item content missing")
	}
	if a.Renderers() != 4 {
		t.Errorf("renderers = %d, want 4", a.Renderers())
	}

	box.Resize(1200, 240)
	if !strings.Contains(string(framer.Frame()), `width="1200"`) {
		t.Error("resize did not redraw")
	}

	if err := a.Unmount(); err != nil {
		t.Fatal(err)
	}
	if a.Renderers() != 0 || reg.Len() != 0 {
		t.Errorf("after unmount renderers = %d rules = %d", a.Renderers(), reg.Len())
	}
}

func TestStack_OverlapsGetRows(t *testing.T) {
	items := []placed{
		{iv: lifeline.Interval{ID: "a"}, x: 0, w: 100},
		{iv: lifeline.Interval{ID: "b"}, x: 50, w: 100},
		{iv: lifeline.Interval{ID: "c"}, x: 120, w: 10},
		{iv: lifeline.Interval{ID: "d"}, x: 60, w: 10},
	}
	rows := stack(items, 4)
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}
	got := map[string]int{}
	for _, p := range items {
		got[p.iv.ID] = p.row
	}
	if got["a"] != 0 || got["b"] != 1 || got["d"] != 2 || got["c"] != 0 {
		t.Errorf("rows = %v", got)
	}
	if stack(nil, 4) != 1 {
		t.Error("an empty lane still takes one row")
	}
}

func TestTicks_Granularity(t *testing.T) {
	tests := []struct {
		name  string
		w     lifeline.Window
		first string
		count int
	}{
		{"day", lifeline.Window{Start: day(2024, 3, 1), End: day(2024, 3, 2)}, "00:00", 5},
		{"week", lifeline.Window{Start: day(2024, 3, 4), End: day(2024, 3, 10)}, "Mar 4", 7},
		{"quarter", lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 3, 31)}, "Jan 1", 13},
		{"year", lifeline.Window{Start: day(2024, 1, 1), End: day(2024, 12, 31)}, "Jan 2024", 12},
		{"decade", lifeline.Window{Start: day(2010, 1, 1), End: day(2019, 12, 31)}, "2010", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ticks(tt.w)
			if len(got) != tt.count {
				t.Fatalf("ticks = %d, want %d", len(got), tt.count)
			}
			if got[0].label != tt.first {
				t.Errorf("first = %q, want %q", got[0].label, tt.first)
			}
		})
	}
}

func TestTruncate_DisplayWidth(t *testing.T) {
	if got := truncate("Career", 200, 12); got != "Career" {
		t.Errorf("short label changed: %q", got)
	}
	got := truncate("Moving to a new country", 50, 12)
	if runewidth.StringWidth(got) > 6 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncated = %q", got)
	}
	wide := truncate("東京で働く日々", 50, 12)
	if runewidth.StringWidth(wide) > 6 {
		t.Errorf("wide truncated = %q (width %d)", wide, runewidth.StringWidth(wide))
	}
	if truncate("x", 1, 12) != "" {
		t.Error("no room should give empty text")
	}
}

func TestEscapeXML(t *testing.T) {
	if got := escapeXML(`<a href="x">&'`); got != "&lt;a href=&quot;x&quot;&gt;&amp;&apos;" {
		t.Errorf("escapeXML = %q", got)
	}
}
