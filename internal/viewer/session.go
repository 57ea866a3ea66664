package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/render"
)

// Session is one mounted timeline: a container, the adapter bound to it and
// the windowed view of the last loaded dataset. Its mutex serializes every
// mutation; the adapter listeners run with it held.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	box      *render.Box
	adapter  *render.Adapter
	view     *lifeline.View
	dataset  *lifeline.Dataset
	selected string

	// gen increases with every load; a load whose generation is no longer
	// current when it returns is discarded.
	gen        uint64
	cancelLoad context.CancelFunc

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc
	closed bool
}

// State is a snapshot of a session.
type State struct {
	ID         string              `json:"id"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Groups     []lifeline.Group    `json:"groups"`
	Window     lifeline.Window     `json:"window"`
	Items      []lifeline.Interval `json:"items"`
	Selected   string              `json:"selected,omitempty"`
	Checksum   string              `json:"checksum"`
	LoadedAt   time.Time           `json:"loadedAt"`
	Skipped    int                 `json:"skipped"`
	Thumbnails bool                `json:"thumbnails"`
}

// state builds a snapshot. Called with mu held.
func (s *Session) state() *State {
	w, h := s.box.Size()
	st := &State{
		ID:         s.ID,
		Width:      w,
		Height:     h,
		Window:     s.view.Window(),
		Items:      append([]lifeline.Interval{}, s.view.Visible()...),
		Selected:   s.selected,
		Thumbnails: s.adapter.Thumbnails(),
	}
	if s.dataset != nil {
		st.Groups = s.dataset.Groups
		st.Checksum = s.dataset.Checksum
		st.LoadedAt = s.dataset.LoadedAt
		st.Skipped = len(s.dataset.Skipped)
	}
	if st.Groups == nil {
		st.Groups = []lifeline.Group{}
	}
	return st
}

// frame returns the surface's last frame. Called with mu held.
func (s *Session) frame() []byte {
	if f, ok := s.adapter.Surface().(render.Framer); ok {
		return f.Frame()
	}
	return nil
}

// beginLoad cancels any load in flight and starts a new generation. The
// returned context ends with the session or with parent. Called with mu held.
func (s *Session) beginLoad(parent context.Context) (context.Context, uint64) {
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	s.cancelLoad = func() {
		stop()
		cancel()
	}
	s.gen++
	return ctx, s.gen
}
