// Package lifeline aggregates timelines into normalized, grouped intervals
// and exposes windowed views over them.
package lifeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/lifeline/internal/models"
)

// Interval is the renderable span derived from one timeline item.
type Interval struct {
	ID          string    `json:"id"`
	GroupID     int       `json:"group"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	HasOpenEnd  bool      `json:"hasOpenEnd"`
	Images      []string  `json:"images,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Impact      string    `json:"impact,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Intersects reports whether the interval overlaps w, bounds inclusive.
func (iv Interval) Intersects(w Window) bool {
	return !iv.Start.After(w.End) && !iv.End.Before(w.Start)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats the collaborator emits. Date-only values
// are interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Normalizer turns raw items into intervals. Now is injected so that
// ongoing items are testable without the wall clock.
type Normalizer struct {
	Now      func() time.Time
	Location *time.Location
}

// NewNormalizer returns a Normalizer reading the wall clock in loc.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		Now:      func() time.Time { return time.Now().In(loc) },
		Location: loc,
	}
}

// Normalize converts one raw item into an interval belonging to groupID.
//
// Rules, in order: an absent end date makes the item ongoing and ends it now;
// an end equal to the start widens the item to one full day; otherwise the
// parsed end is used. Any unparsable date, or an explicit end before the
// start, yields ErrInvalidDate naming the item.
func (n *Normalizer) Normalize(raw models.Item, groupID int) (Interval, error) {
	id := raw.Key()
	start, err := ParseDate(raw.StartDate, n.Location)
	if err != nil {
		return Interval{}, fmt.Errorf("item %s: start: %w", id, err)
	}

	iv := Interval{
		ID:          id,
		GroupID:     groupID,
		Title:       raw.Title,
		Start:       start,
		Images:      raw.Images,
		Tags:        raw.Tags,
		Impact:      raw.Impact,
		Description: raw.Description,
	}

	switch {
	case strings.TrimSpace(raw.EndDate) == "":
		iv.HasOpenEnd = true
		iv.End = n.now()
		// An ongoing item that starts in the future has nothing to span yet.
		if iv.End.Before(start) {
			iv.End = start
		}
	default:
		end, err := ParseDate(raw.EndDate, n.Location)
		if err != nil {
			return Interval{}, fmt.Errorf("item %s: end: %w", id, err)
		}
		switch {
		case end.Equal(start):
			iv.End = start.AddDate(0, 0, 1)
		case end.Before(start):
			return Interval{}, fmt.Errorf("item %s: %w: end %s before start %s",
				id, ErrInvalidDate, raw.EndDate, raw.StartDate)
		default:
			iv.End = end
		}
	}
	return iv, nil
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}
