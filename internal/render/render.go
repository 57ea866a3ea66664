// Package render binds the windowed view to a stateful render surface and
// owns everything the surface acquires: the container observer, per-element
// content renderers and shared group style rules.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
)

var (
	// ErrNotMounted is returned by adapter operations before Mount or after
	// Unmount.
	ErrNotMounted = errors.New("render: not mounted")
	// ErrSurfaceInit wraps a surface construction failure.
	ErrSurfaceInit = errors.New("render: surface init failed")
)

// ElementRef identifies one rendered element (an item box or a group label)
// for the lifetime of its content renderer.
type ElementRef string

// ItemRef returns the element reference of an interval.
func ItemRef(id string) ElementRef { return ElementRef("item:" + id) }

// GroupRef returns the element reference of a group label.
func GroupRef(id int) ElementRef { return ElementRef(fmt.Sprintf("group:%d", id)) }

// Templater produces element content on demand. The surface calls it while
// drawing and releases references it no longer displays.
type Templater interface {
	ItemContent(ref ElementRef, iv lifeline.Interval) string
	GroupContent(ref ElementRef, g lifeline.Group) string
	Release(ref ElementRef)
}

// SelectFunc receives the selected interval ids; empty means cleared.
type SelectFunc func(ids []string)

// RangeFunc receives the window after a user pan or zoom.
type RangeFunc func(w lifeline.Window)

// Surface is a stateful timeline canvas.
type Surface interface {
	// ReplaceItems swaps the whole item set.
	ReplaceItems(items []lifeline.Interval)
	// UpsertItems replaces items by id, keeping their identity.
	UpsertItems(items []lifeline.Interval)
	// SetGroups sets the lanes. Nil clears them.
	SetGroups(groups []lifeline.Group)
	// SetWindow moves the visible range without notifying range listeners.
	SetWindow(w lifeline.Window)
	Window() lifeline.Window
	OnSelect(fn SelectFunc)
	OnRangeChange(fn RangeFunc)
	Redraw()
	Destroy()
}

// Interactive is implemented by surfaces that accept user gestures.
type Interactive interface {
	Select(ids []string)
	Pan(d time.Duration)
	Zoom(factor float64)
}

// Framer is implemented by surfaces that keep their last rendered output.
type Framer interface {
	Frame() []byte
}

// SurfaceFactory constructs a surface inside a container.
type SurfaceFactory func(c Container, t Templater) (Surface, error)
