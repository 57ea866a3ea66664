package lifeline

import (
	"fmt"
	"time"
)

// Window is the visible time range, bounds inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects zero bounds and windows whose end precedes their start.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: zero bound", ErrInvalidWindow)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow,
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Span returns End - Start.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// Pan shifts both bounds by d.
func (w Window) Pan(d time.Duration) Window {
	return Window{Start: w.Start.Add(d), End: w.End.Add(d)}
}

// maxZoomHalf bounds half a zoomed window, far below the Duration range.
const maxZoomHalf = 100 * 365 * 24 * time.Hour

// Zoom scales the window around its center. A factor below 1 zooms in.
// Non-positive factors leave the window unchanged. Zooming out stops at a
// window of about two centuries.
func (w Window) Zoom(factor float64) Window {
	if factor <= 0 {
		return w
	}
	var half time.Duration
	switch f := float64(w.Span()) * factor / 2; {
	case f >= float64(maxZoomHalf):
		half = maxZoomHalf
	case f < float64(time.Millisecond):
		half = time.Millisecond
	default:
		half = time.Duration(f)
	}
	center := w.Start.Add(w.Span() / 2)
	return Window{Start: center.Add(-half), End: center.Add(half)}
}

// Equal reports whether both bounds are the same instants.
func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

// Visible returns the intervals intersecting w, in their original order.
func Visible(intervals []Interval, w Window) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Intersects(w) {
			out = append(out, iv)
		}
	}
	return out
}

// View keeps the full interval set and the subset visible in the current
// window. Every recompute is an in-memory filter.
//
// View is not safe for concurrent use; owners serialize access.
type View struct {
	all     []Interval
	byID    map[string]int
	window  Window
	visible []Interval
}

// NewView builds a view over intervals showing w.
func NewView(intervals []Interval, w Window) *View {
	v := &View{window: w}
	v.Replace(intervals)
	return v
}

// Replace swaps the full set, as after a refetch, and recomputes.
func (v *View) Replace(intervals []Interval) {
	v.all = append([]Interval(nil), intervals...)
	v.byID = make(map[string]int, len(intervals))
	for i, iv := range intervals {
		v.byID[iv.ID] = i
	}
	v.recompute()
}

// SetWindow moves the window and recomputes. It reports whether the
// window actually changed.
func (v *View) SetWindow(w Window) bool {
	if v.window.Equal(w) {
		return false
	}
	v.window = w
	v.recompute()
	return true
}

// Update replaces intervals that share an id with one in updates. Unknown ids
// are ignored. It returns the intervals that were replaced.
func (v *View) Update(updates []Interval) []Interval {
	var applied []Interval
	for _, iv := range updates {
		i, ok := v.byID[iv.ID]
		if !ok {
			continue
		}
		v.all[i] = iv
		applied = append(applied, iv)
	}
	if len(applied) > 0 {
		v.recompute()
	}
	return applied
}

// Window returns the current window.
func (v *View) Window() Window { return v.window }

// All returns the full set.
func (v *View) All() []Interval { return v.all }

// Visible returns the subset intersecting the current window.
func (v *View) Visible() []Interval { return v.visible }

// VisibleIn filters the full set against w without moving the view.
func (v *View) VisibleIn(w Window) []Interval { return Visible(v.all, w) }

// Lookup finds an interval in the full set by id.
func (v *View) Lookup(id string) (Interval, bool) {
	i, ok := v.byID[id]
	if !ok {
		return Interval{}, false
	}
	return v.all[i], true
}

func (v *View) recompute() {
	v.visible = Visible(v.all, v.window)
}
