// Package svg implements render.Surface as an SVG document redrawn on every
// change.
package svg

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
)

var (
	_ render.Surface     = (*Surface)(nil)
	_ render.Interactive = (*Surface)(nil)
	_ render.Framer      = (*Surface)(nil)
)

// Options control the layout.
type Options struct {
	LabelWidth int
	AxisHeight int
	RowHeight  int
	FontSize   int
	Now        func() time.Time
	Styles     *render.StyleRegistry
}

// Option adjusts Options.
type Option func(*Options)

// WithLabelWidth sets the width of the group label column.
func WithLabelWidth(px int) Option {
	return func(o *Options) {
		if px > 0 {
			o.LabelWidth = px
		}
	}
}

// WithRowHeight sets the height of one stacked item row.
func WithRowHeight(px int) Option {
	return func(o *Options) {
		if px > 0 {
			o.RowHeight = px
		}
	}
}

// WithClock sets the clock used for the initial window and the now marker.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithStyleRegistry sets the registry whose rules are embedded in frames.
func WithStyleRegistry(reg *render.StyleRegistry) Option {
	return func(o *Options) {
		if reg != nil {
			o.Styles = reg
		}
	}
}

func defaultOptions() Options {
	return Options{
		LabelWidth: 140,
		AxisHeight: 28,
		RowHeight:  26,
		FontSize:   12,
		Now:        time.Now,
		Styles:     render.DefaultStyles,
	}
}

// Surface is a stateful SVG timeline. All methods are safe for concurrent
// use; listeners run after the surface lock is released.
type Surface struct {
	container render.Container
	tpl       render.Templater
	opts      Options

	mu        sync.Mutex
	items     []lifeline.Interval
	byID      map[string]int
	groups    []lifeline.Group
	window    lifeline.Window
	selected  map[string]struct{}
	shown     map[render.ElementRef]struct{}
	onSelect  render.SelectFunc
	onRange   render.RangeFunc
	frame     []byte
	destroyed bool
}

// Factory returns a render.SurfaceFactory building SVG surfaces.
func Factory(opts ...Option) render.SurfaceFactory {
	return func(c render.Container, t render.Templater) (render.Surface, error) {
		return New(c, t, opts...)
	}
}

// New builds a surface inside c. It fails on a nil container, a nil templater
// or a container without a positive size.
func New(c render.Container, t render.Templater, opts ...Option) (*Surface, error) {
	if c == nil {
		return nil, errors.New("svg: nil container")
	}
	if t == nil {
		return nil, errors.New("svg: nil templater")
	}
	if w, h := c.Size(); w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg: container %s has no size (%dx%d)", c.ID(), w, h)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Surface{
		container: c,
		tpl:       t,
		opts:      o,
		byID:      make(map[string]int),
		selected:  make(map[string]struct{}),
		shown:     make(map[render.ElementRef]struct{}),
		window:    lifeline.DefaultWindow(o.Now()),
	}
	s.draw()
	return s, nil
}

func (s *Surface) ReplaceItems(items []lifeline.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.items = append([]lifeline.Interval(nil), items...)
	s.byID = make(map[string]int, len(items))
	for i, iv := range s.items {
		s.byID[iv.ID] = i
	}
	for id := range s.selected {
		if _, ok := s.byID[id]; !ok {
			delete(s.selected, id)
		}
	}
	s.draw()
}

func (s *Surface) UpsertItems(items []lifeline.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	for _, iv := range items {
		if i, ok := s.byID[iv.ID]; ok {
			s.items[i] = iv
			continue
		}
		s.byID[iv.ID] = len(s.items)
		s.items = append(s.items, iv)
	}
	s.draw()
}

func (s *Surface) SetGroups(groups []lifeline.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.groups = append([]lifeline.Group(nil), groups...)
	s.draw()
}

func (s *Surface) SetWindow(w lifeline.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || w.Validate() != nil {
		return
	}
	s.window = w
	s.draw()
}

func (s *Surface) Window() lifeline.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func (s *Surface) OnSelect(fn render.SelectFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSelect = fn
}

func (s *Surface) OnRangeChange(fn render.RangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRange = fn
}

func (s *Surface) Redraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.draw()
}

// Destroy releases every element still shown and drops listeners. Later
// calls are no-ops.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	for ref := range s.shown {
		s.tpl.Release(ref)
	}
	s.shown = nil
	s.onSelect = nil
	s.onRange = nil
	s.items = nil
	s.byID = nil
	s.frame = nil
	s.destroyed = true
}

// Select marks the given ids selected, dropping unknown ones, and notifies
// the selection listener. An empty list clears the selection.
func (s *Surface) Select(ids []string) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.selected = make(map[string]struct{}, len(ids))
	var kept []string
	for _, id := range ids {
		if _, ok := s.byID[id]; !ok {
			continue
		}
		if _, dup := s.selected[id]; dup {
			continue
		}
		s.selected[id] = struct{}{}
		kept = append(kept, id)
	}
	s.draw()
	fn := s.onSelect
	s.mu.Unlock()

	if fn != nil {
		fn(kept)
	}
}

// Pan shifts the window by d and notifies the range listener.
func (s *Surface) Pan(d time.Duration) {
	s.moveWindow(func(w lifeline.Window) lifeline.Window { return w.Pan(d) })
}

// Zoom scales the window around its center and notifies the range listener.
func (s *Surface) Zoom(factor float64) {
	s.moveWindow(func(w lifeline.Window) lifeline.Window { return w.Zoom(factor) })
}

func (s *Surface) moveWindow(move func(lifeline.Window) lifeline.Window) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.window = move(s.window)
	w := s.window
	s.draw()
	fn := s.onRange
	s.mu.Unlock()

	if fn != nil {
		fn(w)
	}
}

// Frame returns a copy of the last rendered document.
func (s *Surface) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.frame)
}

// Selected returns the selected ids in item order.
func (s *Surface) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, iv := range s.items {
		if _, ok := s.selected[iv.ID]; ok {
			out = append(out, iv.ID)
		}
	}
	return out
}
