package render

import (
	"sort"
	"sync"
)

// Container is the host element a surface draws into.
type Container interface {
	ID() string
	Size() (width, height int)
	SetProperty(name, value string)
	RemoveProperty(name string)
	Property(name string) (string, bool)
	// Observe registers fn for size changes and returns a function that
	// removes it.
	Observe(fn func(width, height int)) (disconnect func())
}

// Box is an in-memory Container.
type Box struct {
	id string

	mu        sync.Mutex
	width     int
	height    int
	props     map[string]string
	observers map[int]func(int, int)
	nextObs   int
}

var _ Container = (*Box)(nil)

// NewBox creates a container of the given size.
func NewBox(id string, width, height int) *Box {
	return &Box{
		id:        id,
		width:     width,
		height:    height,
		props:     make(map[string]string),
		observers: make(map[int]func(int, int)),
	}
}

func (b *Box) ID() string { return b.id }

func (b *Box) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// Resize changes the size and notifies observers if it actually changed.
// Observers run on the caller's goroutine, outside the box lock.
func (b *Box) Resize(width, height int) {
	b.mu.Lock()
	if b.width == width && b.height == height {
		b.mu.Unlock()
		return
	}
	b.width, b.height = width, height
	fns := make([]func(int, int), 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(width, height)
	}
}

func (b *Box) SetProperty(name, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[name] = value
}

func (b *Box) RemoveProperty(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.props, name)
}

func (b *Box) Property(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.props[name]
	return v, ok
}

// Properties returns the property names, sorted.
func (b *Box) Properties() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.props))
	for k := range b.props {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Box) Observe(fn func(int, int)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextObs
	b.nextObs++
	b.observers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// Observers returns the number of connected observers.
func (b *Box) Observers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
