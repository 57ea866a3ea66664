package viewer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
)

// ICSProductID identifies exported calendars.
const ICSProductID = "-//lifeline//timeline export//EN"

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

// WriteICS writes intervals as an iCalendar document. Items that start and
// end on day boundaries become all-day events; ongoing items carry
// X-LIFELINE-ONGOING.
func WriteICS(w io.Writer, name string, groups []lifeline.Group, intervals []lifeline.Interval, stamp time.Time) error {
	labels := make(map[int]string, len(groups))
	for _, g := range groups {
		labels[g.ID] = g.Label
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:%s", ICSProductID)
	line("CALSCALE:GREGORIAN")
	line("X-WR-CALNAME:%s", icsEscaper.Replace(name))

	for _, iv := range intervals {
		line("BEGIN:VEVENT")
		line("UID:%s@lifeline", icsEscaper.Replace(iv.ID))
		line("DTSTAMP:%s", stamp.UTC().Format("20060102T150405Z"))
		if allDay(iv.Start) && allDay(iv.End) {
			line("DTSTART;VALUE=DATE:%s", iv.Start.Format("20060102"))
			line("DTEND;VALUE=DATE:%s", iv.End.Format("20060102"))
		} else {
			line("DTSTART:%s", iv.Start.UTC().Format("20060102T150405Z"))
			line("DTEND:%s", iv.End.UTC().Format("20060102T150405Z"))
		}
		line("SUMMARY:%s", icsEscaper.Replace(iv.Title))
		if iv.Description != "" {
			line("DESCRIPTION:%s", icsEscaper.Replace(iv.Description))
		}
		cats := append([]string(nil), iv.Tags...)
		if label := labels[iv.GroupID]; label != "" {
			cats = append([]string{label}, cats...)
		}
		if len(cats) > 0 {
			for i := range cats {
				cats[i] = icsEscaper.Replace(cats[i])
			}
			line("CATEGORIES:%s", strings.Join(cats, ","))
		}
		if iv.HasOpenEnd {
			line("X-LIFELINE-ONGOING:TRUE")
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")

	_, err := io.WriteString(w, b.String())
	return err
}

func allDay(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
