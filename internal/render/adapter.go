package render

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/lifeline/internal/lifeline"
)

// Adapter binds one Surface to one Container and tracks every resource the
// binding acquires so that Unmount can release all of it.
//
// The zero value is not usable; call NewAdapter.
type Adapter struct {
	factory SurfaceFactory
	styles  *StyleRegistry
	logger  *slog.Logger

	mu         sync.Mutex
	container  Container
	surface    Surface
	disconnect func()
	groupIDs   map[int]struct{} // style rules held by this adapter

	// thumbnails is read from template callbacks, which may run while mu
	// is held.
	thumbnails atomic.Bool

	// renderMu guards the sub-renderer map. The surface calls back into the
	// adapter while mu is held, so the map has its own lock.
	renderMu  sync.Mutex
	renderers map[ElementRef]*contentRenderer

	listenMu sync.Mutex
	onSelect SelectFunc
	onRange  RangeFunc
}

var _ Templater = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithStyles uses reg instead of DefaultStyles.
func WithStyles(reg *StyleRegistry) AdapterOption {
	return func(a *Adapter) {
		if reg != nil {
			a.styles = reg
		}
	}
}

// WithAdapterLogger sets the adapter's logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithThumbnails sets whether item content shows image thumbnails.
func WithThumbnails(on bool) AdapterOption {
	return func(a *Adapter) { a.thumbnails.Store(on) }
}

// NewAdapter creates an unmounted adapter building surfaces with factory.
func NewAdapter(factory SurfaceFactory, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		factory:   factory,
		styles:    DefaultStyles,
		logger:    slog.Default(),
		groupIDs:  make(map[int]struct{}),
		renderers: make(map[ElementRef]*contentRenderer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mount constructs the surface inside c and starts observing c's size.
// Mounting an already mounted adapter is a no-op. If the surface cannot be
// built, everything acquired so far is released and the error wraps
// ErrSurfaceInit.
func (a *Adapter) Mount(c Container) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface != nil {
		return nil
	}
	if c == nil {
		return fmt.Errorf("%w: nil container", ErrSurfaceInit)
	}

	disconnect := c.Observe(func(_, _ int) { a.redraw() })
	surface, err := a.factory(c, a)
	if err != nil {
		disconnect()
		a.disposeRenderers()
		a.logger.Error("render: mount failed",
			slog.String("container", c.ID()),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrSurfaceInit, err)
	}

	surface.OnSelect(func(ids []string) {
		a.listenMu.Lock()
		fn := a.onSelect
		a.listenMu.Unlock()
		if fn != nil {
			fn(ids)
		}
	})
	surface.OnRangeChange(func(w lifeline.Window) {
		a.listenMu.Lock()
		fn := a.onRange
		a.listenMu.Unlock()
		if fn != nil {
			fn(w)
		}
	})

	a.container = c
	a.surface = surface
	a.disconnect = disconnect
	a.logger.Debug("render: mounted", slog.String("container", c.ID()))
	return nil
}

// Mounted reports whether a surface is live.
func (a *Adapter) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.surface != nil
}

// Surface returns the live surface, or nil when unmounted. Callers use it to
// reach optional capabilities such as Interactive and Framer.
func (a *Adapter) Surface() Surface {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.surface
}

// UpdateItems replaces the surface's whole item set.
func (a *Adapter) UpdateItems(items []lifeline.Interval) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return ErrNotMounted
	}
	a.surface.ReplaceItems(items)
	return nil
}

// PatchItems replaces items by id without changing their identity, used
// when only their content changes.
func (a *Adapter) PatchItems(items []lifeline.Interval) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return ErrNotMounted
	}
	a.surface.UpsertItems(items)
	return nil
}

// UpdateGroups sets the surface lanes, publishes each group's color as a
// container property and holds a style rule per group. Nil or empty groups
// clear all three.
func (a *Adapter) UpdateGroups(groups []lifeline.Group) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return ErrNotMounted
	}

	want := make(map[int]struct{}, len(groups))
	for _, g := range groups {
		want[g.ID] = struct{}{}
		a.container.SetProperty(GroupColorProperty(g.ID), g.Color)
		if _, held := a.groupIDs[g.ID]; !held {
			a.styles.Acquire(g.ID)
			a.groupIDs[g.ID] = struct{}{}
		}
	}
	for id := range a.groupIDs {
		if _, keep := want[id]; keep {
			continue
		}
		a.container.RemoveProperty(GroupColorProperty(id))
		a.styles.Release(id)
		delete(a.groupIDs, id)
	}

	if len(groups) == 0 {
		a.surface.SetGroups(nil)
		return nil
	}
	a.surface.SetGroups(groups)
	return nil
}

// SetWindow moves the surface's visible range.
func (a *Adapter) SetWindow(w lifeline.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return ErrNotMounted
	}
	a.surface.SetWindow(w)
	return nil
}

// Window returns the surface's visible range.
func (a *Adapter) Window() (lifeline.Window, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return lifeline.Window{}, ErrNotMounted
	}
	return a.surface.Window(), nil
}

// OnSelect sets the single selection listener, replacing any previous one.
// It may be called before Mount.
func (a *Adapter) OnSelect(fn SelectFunc) {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.onSelect = fn
}

// OnRangeChange sets the single range listener, replacing any previous one.
func (a *Adapter) OnRangeChange(fn RangeFunc) {
	a.listenMu.Lock()
	defer a.listenMu.Unlock()
	a.onRange = fn
}

// SetThumbnails toggles image thumbnails in item content. Callers follow up
// with PatchItems so the surface re-renders content in place.
func (a *Adapter) SetThumbnails(on bool) {
	a.thumbnails.Store(on)
}

// Thumbnails reports whether thumbnails are shown.
func (a *Adapter) Thumbnails() bool {
	return a.thumbnails.Load()
}

// Unmount disconnects the container observer, destroys the surface,
// disposes every content renderer and releases the adapter's style rules.
// Unmounting an unmounted adapter returns ErrNotMounted.
func (a *Adapter) Unmount() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface == nil {
		return ErrNotMounted
	}

	a.disconnect()
	a.surface.Destroy()
	a.disposeRenderers()
	for id := range a.groupIDs {
		a.container.RemoveProperty(GroupColorProperty(id))
		a.styles.Release(id)
		delete(a.groupIDs, id)
	}
	a.logger.Debug("render: unmounted", slog.String("container", a.container.ID()))

	a.surface = nil
	a.disconnect = nil
	a.container = nil
	return nil
}

// Renderers returns the number of live content renderers.
func (a *Adapter) Renderers() int {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	return len(a.renderers)
}

// ItemContent renders an item through its element's renderer, creating the
// renderer on first use.
func (a *Adapter) ItemContent(ref ElementRef, iv lifeline.Interval) string {
	return a.renderer(ref).renderItem(iv, a.thumbnails.Load())
}

// GroupContent renders a group label.
func (a *Adapter) GroupContent(ref ElementRef, g lifeline.Group) string {
	return a.renderer(ref).renderGroup(g)
}

// Release disposes the renderer of an element the surface no longer shows.
func (a *Adapter) Release(ref ElementRef) {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	if r, ok := a.renderers[ref]; ok {
		r.dispose()
		delete(a.renderers, ref)
	}
}

func (a *Adapter) renderer(ref ElementRef) *contentRenderer {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	r, ok := a.renderers[ref]
	if !ok {
		r = &contentRenderer{ref: ref}
		a.renderers[ref] = r
	}
	return r
}

func (a *Adapter) disposeRenderers() {
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	for ref, r := range a.renderers {
		r.dispose()
		delete(a.renderers, ref)
	}
}

func (a *Adapter) redraw() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.surface != nil {
		a.surface.Redraw()
	}
}
