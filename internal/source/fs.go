package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/models"
)

// TimelineFile is the optional per-directory metadata file.
const TimelineFile = "timeline.yaml"

var _ lifeline.Source = (*FS)(nil)

// FS reads a Markdown export: every top-level directory under root is a
// timeline and every .md file below it is an item. Hidden directories are
// ignored.
type FS struct {
	root string // absolute
}

// NewFS creates a file source rooted at root, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("source: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute export directory.
func (f *FS) Root() string { return f.root }

// safePath resolves rel against root and rejects anything escaping it.
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("source: %w: absolute path %s", apperr.ErrInvalidInput, rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("source: %w: path escapes root: %s", apperr.ErrInvalidInput, rel)
	}
	return abs, nil
}

// Timelines lists the export's directories sorted by name.
func (f *FS) Timelines(ctx context.Context) ([]models.Timeline, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("source: list timelines: %w", err)
	}
	var out []models.Timeline
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		tl := models.Timeline{ID: e.Name(), Title: e.Name()}
		meta, err := os.ReadFile(filepath.Join(f.root, e.Name(), TimelineFile))
		switch {
		case err == nil:
			var m models.Timeline
			if err := yaml.Unmarshal(meta, &m); err != nil {
				return nil, fmt.Errorf("source: %s/%s: %w", e.Name(), TimelineFile, err)
			}
			if m.Title != "" {
				tl.Title = m.Title
			}
			tl.Color = m.Color
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("source: read %s/%s: %w", e.Name(), TimelineFile, err)
		}
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Items parses every .md file under the timeline directory. Item ids are
// slash-separated paths relative to the export root.
func (f *FS) Items(ctx context.Context, timelineID string) ([]models.Item, error) {
	dir, err := f.safePath(timelineID)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source: timeline %s: %w", timelineID, apperr.ErrNotFound)
	}

	var out []models.Item
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		// Broken frontmatter leaves the item dateless; the normalizer
		// rejects it as a single record instead of failing the timeline.
		it, err := parseItem(data)
		if err != nil {
			it = models.Item{}
		}
		it.ID = filepath.ToSlash(rel)
		it.LegacyID = ""
		out = append(out, it)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: items of %s: %w", timelineID, err)
	}
	return out, nil
}
