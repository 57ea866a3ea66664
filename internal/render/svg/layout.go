package svg

import (
	"sort"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
)

// placed is a visible item with its pixel geometry.
type placed struct {
	iv   lifeline.Interval
	x, w float64
	row  int
}

// lane is one group band.
type lane struct {
	group lifeline.Group
	items []placed
	rows  int
	y     float64
	h     float64
}

// scale maps instants inside a window to x coordinates.
type scale struct {
	w      lifeline.Window
	x0, x1 float64
}

func (s scale) x(t time.Time) float64 {
	span := s.w.Span()
	if span <= 0 {
		return s.x0
	}
	frac := float64(t.Sub(s.w.Start)) / float64(span)
	x := s.x0 + frac*(s.x1-s.x0)
	switch {
	case x < s.x0:
		return s.x0
	case x > s.x1:
		return s.x1
	}
	return x
}

// stack assigns rows greedily: each item, in start order, goes to the first
// row whose last item ends before it begins.
func stack(items []placed, gap float64) int {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].x != items[j].x {
			return items[i].x < items[j].x
		}
		return items[i].iv.ID < items[j].iv.ID
	})
	var rowEnds []float64
	for i := range items {
		row := -1
		for r, end := range rowEnds {
			if end+gap <= items[i].x {
				row = r
				break
			}
		}
		if row < 0 {
			row = len(rowEnds)
			rowEnds = append(rowEnds, 0)
		}
		items[i].row = row
		rowEnds[row] = items[i].x + items[i].w
	}
	if len(rowEnds) == 0 {
		return 1
	}
	return len(rowEnds)
}

// tickUnit is one axis granularity.
type tickUnit struct {
	maxSpan time.Duration
	format  string
	floor   func(time.Time) time.Time
	next    func(time.Time) time.Time
}

var tickUnits = []tickUnit{
	{
		maxSpan: 2 * 24 * time.Hour,
		format:  "15:04",
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()-t.Hour()%6, 0, 0, 0, t.Location())
		},
		next: func(t time.Time) time.Time { return t.Add(6 * time.Hour) },
	},
	{
		maxSpan: 21 * 24 * time.Hour,
		format:  "Jan 2",
		floor: func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		},
		next: func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
	},
	{
		maxSpan: 120 * 24 * time.Hour,
		format:  "Jan 2",
		floor:   lifeline.WeekStart,
		next:    func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	},
	{
		maxSpan: 3 * 366 * 24 * time.Hour,
		format:  "Jan 2006",
		floor:   lifeline.MonthStart,
		next:    func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	},
	{
		format: "2006",
		floor:  lifeline.YearStart,
		next:   func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
	},
}

type tick struct {
	at    time.Time
	label string
}

// ticks returns axis ticks inside w at a granularity chosen by its span.
func ticks(w lifeline.Window) []tick {
	span := w.Span()
	unit := tickUnits[len(tickUnits)-1]
	for _, u := range tickUnits {
		if u.maxSpan > 0 && span <= u.maxSpan {
			unit = u
			break
		}
	}
	var out []tick
	for t := unit.floor(w.Start); !t.After(w.End); t = unit.next(t) {
		if t.Before(w.Start) {
			continue
		}
		out = append(out, tick{at: t, label: t.Format(unit.format)})
		if len(out) > 400 {
			break
		}
	}
	return out
}
