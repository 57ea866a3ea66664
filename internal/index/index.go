package index

import "github.com/starford/lifeline/internal/lifeline"

// ItemIndex defines the interface for session item indexing. Consumers should
// depend on this interface rather than the concrete *DB type to facilitate
// testing with mocks.
type ItemIndex interface {
	Replace(session string, intervals []lifeline.Interval) error
	Drop(session string) error
	Count(session string) (int, error)
	Search(session, query string, limit int) ([]Hit, error)
	ByTag(session, tag string, limit int) ([]Hit, error)
	Tags(session string) ([]TagCount, error)
	Close() error
}

// Verify *DB satisfies ItemIndex at compile time.
var _ ItemIndex = (*DB)(nil)
