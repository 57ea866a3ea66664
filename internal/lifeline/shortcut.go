package lifeline

import (
	"fmt"
	"time"
)

// Shortcut names a navigation preset.
type Shortcut string

// Navigation presets.
const (
	ShortcutWeek  Shortcut = "week"
	ShortcutMonth Shortcut = "month"
	ShortcutYear  Shortcut = "year"
)

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay returns 23:59:59.999 of t's calendar day. It is built from the
// date parts so that 23 and 25 hour days still end on the same date.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

// YearStart returns Jan 1, 00:00:00.000 of today's year.
func YearStart(today time.Time) time.Time {
	return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
}

// YearEnd returns Dec 31, 23:59:59.999 of today's year.
func YearEnd(today time.Time) time.Time {
	return time.Date(today.Year(), time.December, 31, 23, 59, 59, 999_000_000, today.Location())
}

// MonthStart returns day 1, 00:00:00.000 of today's month.
func MonthStart(today time.Time) time.Time {
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
}

// MonthEnd returns the last day of today's month at 23:59:59.999.
func MonthEnd(today time.Time) time.Time {
	// Day 0 of the next month normalizes to the last day of this one.
	last := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, today.Location())
	return endOfDay(last)
}

// WeekStart returns the most recent Monday at or before today, at midnight.
func WeekStart(today time.Time) time.Time {
	offset := (int(today.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return midnight(today).AddDate(0, 0, -offset)
}

// WeekEnd returns the Sunday following WeekStart, at 23:59:59.999.
func WeekEnd(today time.Time) time.Time {
	return endOfDay(WeekStart(today).AddDate(0, 0, 6))
}

// DefaultWindow spans from the start of now's year up to now.
func DefaultWindow(now time.Time) Window {
	return Window{Start: YearStart(now), End: now}
}

// ShortcutWindow returns the window a preset navigates to.
func ShortcutWindow(s Shortcut, today time.Time) (Window, error) {
	switch s {
	case ShortcutWeek:
		return Window{Start: WeekStart(today), End: WeekEnd(today)}, nil
	case ShortcutMonth:
		return Window{Start: MonthStart(today), End: MonthEnd(today)}, nil
	case ShortcutYear:
		return Window{Start: YearStart(today), End: YearEnd(today)}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownShortcut, string(s))
	}
}
