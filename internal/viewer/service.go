// Package viewer manages view sessions: each one mounts a render surface,
// loads the aggregated timelines into it and applies window, selection and
// refresh operations.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/index"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
	"github.com/starford/lifeline/internal/sse"
)

// Publisher receives session events. *sse.Broker implements it.
type Publisher interface {
	Publish(topic string, event sse.Event)
	PublishFrame(topic string)
	CloseTopic(topic string)
}

// ErrStaleLoad is returned by Refresh when a newer load superseded it.
var ErrStaleLoad = errors.New("viewer: load superseded")

// OpenRequest describes a new session.
type OpenRequest struct {
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Shortcut lifeline.Shortcut `json:"shortcut,omitempty"`
}

// Service owns every open session.
type Service struct {
	agg        *lifeline.Aggregator
	factory    render.SurfaceFactory
	styles     *render.StyleRegistry
	idx        index.ItemIndex
	events     Publisher
	logger     *slog.Logger
	thumbnails bool

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Service.
type Option func(*Service)

// WithIndex indexes every loaded dataset for search.
func WithIndex(idx index.ItemIndex) Option {
	return func(s *Service) { s.idx = idx }
}

// WithPublisher sends session events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStyles sets the style registry shared by session adapters.
func WithStyles(reg *render.StyleRegistry) Option {
	return func(s *Service) {
		if reg != nil {
			s.styles = reg
		}
	}
}

// WithThumbnails sets whether new sessions show image thumbnails.
func WithThumbnails(on bool) Option {
	return func(s *Service) { s.thumbnails = on }
}

// NewService creates a session service loading through agg and drawing with
// surfaces built by factory.
func NewService(agg *lifeline.Aggregator, factory render.SurfaceFactory, opts ...Option) *Service {
	s := &Service{
		agg:      agg,
		factory:  factory,
		styles:   render.DefaultStyles,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open mounts a new session and performs its first load. A failed load
// unmounts the session again and returns an error wrapping
// lifeline.ErrFetchFailure.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*State, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", apperr.ErrInvalidInput, req.Width, req.Height)
	}
	now := s.agg.Now()
	window := lifeline.DefaultWindow(now)
	if req.Shortcut != "" {
		w, err := lifeline.ShortcutWindow(req.Shortcut, now)
		if err != nil {
			return nil, err
		}
		window = w
	}

	id := uuid.NewString()
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		box:       render.NewBox(id, req.Width, req.Height),
		adapter: render.NewAdapter(s.factory,
			render.WithStyles(s.styles),
			render.WithAdapterLogger(s.logger),
			render.WithThumbnails(s.thumbnails)),
		view:   lifeline.NewView(nil, window),
		ctx:    sessCtx,
		cancel: cancel,
	}
	s.listen(sess)

	if err := sess.adapter.Mount(sess.box); err != nil {
		cancel()
		return nil, err
	}
	if err := sess.adapter.SetWindow(window); err != nil {
		_ = sess.adapter.Unmount()
		cancel()
		return nil, err
	}

	sess.mu.Lock()
	loadCtx, gen := sess.beginLoad(ctx)
	sess.mu.Unlock()

	ds, err := s.agg.Load(loadCtx)
	if err != nil {
		_ = sess.adapter.Unmount()
		cancel()
		s.logger.Warn("viewer: open failed", slog.String("session", id), slog.String("error", err.Error()))
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.apply(sess, ds, gen); err != nil {
		_ = sess.adapter.Unmount()
		cancel()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("viewer: session opened",
		slog.String("session", id),
		slog.Int("groups", len(ds.Groups)),
		slog.Int("intervals", len(ds.Intervals)))
	return sess.state(), nil
}

// listen wires the adapter listeners to the session. They run with sess.mu
// held by the operation that triggered them.
func (s *Service) listen(sess *Session) {
	sess.adapter.OnSelect(func(ids []string) {
		sess.selected = ""
		if len(ids) > 0 {
			sess.selected = ids[0]
		}
		s.publish(sess.ID, sse.Event{Type: sse.SelectionChanged, Data: map[string]string{"selected": sess.selected}})
		s.frameChanged(sess.ID)
	})
	sess.adapter.OnRangeChange(func(w lifeline.Window) {
		sess.view.SetWindow(w)
		s.publish(sess.ID, sse.Event{Type: sse.WindowChanged, Data: w})
		s.frameChanged(sess.ID)
	})
}

// apply pushes a dataset into the session unless a newer load started.
// Called with sess.mu held.
func (s *Service) apply(sess *Session, ds *lifeline.Dataset, gen uint64) error {
	if sess.closed {
		return apperr.ErrSessionClosed
	}
	if gen != sess.gen {
		return ErrStaleLoad
	}
	// Releases the load context and its hook on the session context.
	if sess.cancelLoad != nil {
		sess.cancelLoad()
	}
	sess.cancelLoad = nil

	if err := sess.adapter.UpdateGroups(ds.Groups); err != nil {
		return err
	}
	if err := sess.adapter.UpdateItems(ds.Intervals); err != nil {
		return err
	}
	sess.view.Replace(ds.Intervals)
	sess.dataset = ds
	if sess.selected != "" {
		if in, ok := sess.adapter.Surface().(render.Interactive); ok {
			in.Select(nil)
		}
		sess.selected = ""
	}

	if s.idx != nil {
		if err := s.idx.Replace(sess.ID, ds.Intervals); err != nil {
			s.logger.Warn("viewer: index replace failed",
				slog.String("session", sess.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Get returns an open session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return sess, nil
}

// IDs returns the ids of every open session, sorted.
func (s *Service) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// with runs fn on an open session with its lock held.
func (s *Service) with(id string, fn func(sess *Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return apperr.ErrSessionClosed
	}
	return fn(sess)
}

// State returns a snapshot of a session.
func (s *Service) State(id string) (*State, error) {
	var st *State
	err := s.with(id, func(sess *Session) error {
		st = sess.state()
		return nil
	})
	return st, err
}

// Frame returns the current SVG frame and the dataset checksum it was drawn
// from.
func (s *Service) Frame(id string) ([]byte, string, error) {
	var (
		frame []byte
		sum   string
	)
	err := s.with(id, func(sess *Session) error {
		frame = sess.frame()
		if sess.dataset != nil {
			sum = sess.dataset.Checksum
		}
		return nil
	})
	return frame, sum, err
}

// SetWindow moves the visible window.
func (s *Service) SetWindow(id string, w lifeline.Window) (*State, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	var st *State
	err := s.with(id, func(sess *Session) error {
		if err := sess.adapter.SetWindow(w); err != nil {
			return err
		}
		if sess.view.SetWindow(w) {
			s.publish(sess.ID, sse.Event{Type: sse.WindowChanged, Data: w})
			s.frameChanged(sess.ID)
		}
		st = sess.state()
		return nil
	})
	return st, err
}

// Shortcut moves the window to a week, month or year preset around today.
func (s *Service) Shortcut(id string, sc lifeline.Shortcut) (*State, error) {
	w, err := lifeline.ShortcutWindow(sc, s.agg.Now())
	if err != nil {
		return nil, err
	}
	return s.SetWindow(id, w)
}

// Pan shifts the window as a user drag would.
func (s *Service) Pan(id string, d time.Duration) (*State, error) {
	return s.gesture(id, func(in render.Interactive) { in.Pan(d) },
		func(w lifeline.Window) lifeline.Window { return w.Pan(d) })
}

// Zoom scales the window around its center as a user scroll would.
func (s *Service) Zoom(id string, factor float64) (*State, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: zoom factor %v", apperr.ErrInvalidInput, factor)
	}
	return s.gesture(id, func(in render.Interactive) { in.Zoom(factor) },
		func(w lifeline.Window) lifeline.Window { return w.Zoom(factor) })
}

// gesture forwards to an interactive surface, whose range listener updates
// the view. Surfaces without gestures get the equivalent window instead.
func (s *Service) gesture(id string, act func(render.Interactive), move func(lifeline.Window) lifeline.Window) (*State, error) {
	var st *State
	err := s.with(id, func(sess *Session) error {
		if in, ok := sess.adapter.Surface().(render.Interactive); ok {
			act(in)
		} else {
			w := move(sess.view.Window())
			if err := sess.adapter.SetWindow(w); err != nil {
				return err
			}
			sess.view.SetWindow(w)
			s.publish(sess.ID, sse.Event{Type: sse.WindowChanged, Data: w})
		}
		st = sess.state()
		return nil
	})
	return st, err
}

// Select forwards a selection to the surface. Only the first id is kept
// since a session selects at most one item; no ids clears the selection.
func (s *Service) Select(id string, ids []string) (*State, error) {
	if len(ids) > 1 {
		ids = ids[:1]
	}
	var st *State
	err := s.with(id, func(sess *Session) error {
		if in, ok := sess.adapter.Surface().(render.Interactive); ok {
			in.Select(ids)
		} else {
			sess.selected = ""
			if len(ids) == 1 {
				if _, ok := sess.view.Lookup(ids[0]); ok {
					sess.selected = ids[0]
				}
			}
			s.publish(sess.ID, sse.Event{Type: sse.SelectionChanged, Data: map[string]string{"selected": sess.selected}})
		}
		st = sess.state()
		return nil
	})
	return st, err
}

// Item returns one interval of a session's full set.
func (s *Service) Item(id, itemID string) (lifeline.Interval, error) {
	var iv lifeline.Interval
	err := s.with(id, func(sess *Session) error {
		var ok bool
		if iv, ok = sess.view.Lookup(itemID); !ok {
			return fmt.Errorf("item %s: %w", itemID, apperr.ErrNotFound)
		}
		return nil
	})
	return iv, err
}

// Resize changes the container size; the adapter's observer redraws.
func (s *Service) Resize(id string, width, height int) (*State, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", apperr.ErrInvalidInput, width, height)
	}
	var st *State
	err := s.with(id, func(sess *Session) error {
		sess.box.Resize(width, height)
		s.frameChanged(sess.ID)
		st = sess.state()
		return nil
	})
	return st, err
}

// ToggleThumbnails flips image thumbnails in item content. Items are patched
// in place so their identity and the selection survive.
func (s *Service) ToggleThumbnails(id string) (*State, error) {
	var st *State
	err := s.with(id, func(sess *Session) error {
		sess.adapter.SetThumbnails(!sess.adapter.Thumbnails())
		if err := sess.adapter.PatchItems(sess.view.All()); err != nil {
			return err
		}
		s.frameChanged(sess.ID)
		st = sess.state()
		return nil
	})
	return st, err
}

// Refresh reloads a session's dataset. The session stays usable while the
// load runs; a newer refresh or Close supersedes it, in which case its result
// is discarded. The selection is cleared.
func (s *Service) Refresh(ctx context.Context, id string) (*State, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, apperr.ErrSessionClosed
	}
	loadCtx, gen := sess.beginLoad(ctx)
	sess.mu.Unlock()

	ds, err := s.agg.Load(loadCtx)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err != nil {
		if sess.closed {
			return nil, apperr.ErrSessionClosed
		}
		if gen != sess.gen {
			return nil, ErrStaleLoad
		}
		return nil, err
	}

	previous := ""
	if sess.dataset != nil {
		previous = sess.dataset.Checksum
	}
	if err := s.apply(sess, ds, gen); err != nil {
		return nil, err
	}
	if ds.Checksum != previous {
		s.publish(sess.ID, sse.Event{Type: sse.DatasetReplaced, Data: map[string]any{
			"checksum":  ds.Checksum,
			"intervals": len(ds.Intervals),
		}})
	}
	s.frameChanged(sess.ID)
	return sess.state(), nil
}

// RefreshAll reloads every open session, a few at a time. Failures are
// logged and the first one is returned.
func (s *Service) RefreshAll(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range s.IDs() {
		g.Go(func() error {
			if _, err := s.Refresh(gCtx, id); err != nil {
				if errors.Is(err, ErrStaleLoad) || errors.Is(err, apperr.ErrSessionClosed) || errors.Is(err, apperr.ErrNotFound) {
					return nil
				}
				s.logger.Warn("viewer: refresh failed", slog.String("session", id), slog.String("error", err.Error()))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Search looks up items of a session by text or tag.
func (s *Service) Search(id, query, tag string, limit int) ([]index.Hit, error) {
	if s.idx == nil {
		return nil, fmt.Errorf("%w: search index disabled", apperr.ErrInvalidInput)
	}
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	switch {
	case tag != "":
		return s.idx.ByTag(id, tag, limit)
	case query != "":
		return s.idx.Search(id, query, limit)
	}
	return nil, fmt.Errorf("%w: q or tag required", apperr.ErrInvalidInput)
}

// Tags returns the tags of a session's items with their counts.
func (s *Service) Tags(id string) ([]index.TagCount, error) {
	if s.idx == nil {
		return nil, fmt.Errorf("%w: search index disabled", apperr.ErrInvalidInput)
	}
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.idx.Tags(id)
}

// VisibleSnapshot returns the groups and visible intervals of a session, for
// export.
func (s *Service) VisibleSnapshot(id string) ([]lifeline.Group, []lifeline.Interval, error) {
	var (
		groups []lifeline.Group
		items  []lifeline.Interval
	)
	err := s.with(id, func(sess *Session) error {
		if sess.dataset != nil {
			groups = sess.dataset.Groups
		}
		items = append(items, sess.view.Visible()...)
		return nil
	})
	return groups, items, err
}

// Close unmounts a session, cancels its loads and forgets it.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	s.close(sess)
	return nil
}

func (s *Service) close(sess *Session) {
	// Cancel before taking the lock so a running load returns promptly.
	sess.cancel()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	sess.closed = true
	if err := sess.adapter.Unmount(); err != nil && !errors.Is(err, render.ErrNotMounted) {
		s.logger.Warn("viewer: unmount failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
	}
	if s.idx != nil {
		if err := s.idx.Drop(sess.ID); err != nil {
			s.logger.Warn("viewer: index drop failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		s.events.CloseTopic(sess.ID)
	}
	s.logger.Info("viewer: session closed", slog.String("session", sess.ID))
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for _, sess := range all {
		s.close(sess)
	}
}

func (s *Service) publish(id string, ev sse.Event) {
	if s.events != nil {
		s.events.Publish(id, ev)
	}
}

func (s *Service) frameChanged(id string) {
	if s.events != nil {
		s.events.PublishFrame(id)
	}
}
