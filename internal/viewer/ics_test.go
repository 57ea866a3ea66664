package viewer

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/lifeline/internal/lifeline"
)

func TestWriteICS(t *testing.T) {
	groups := []lifeline.Group{{ID: 1, Label: "Career"}, {ID: 2, Label: "Travel"}}
	items := []lifeline.Interval{
		{
			ID: "job", GroupID: 1, Title: "New job, Berlin",
			Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Tags:  []string{"work"},
		},
		{
			ID: "move", GroupID: 2, Title: "Moving",
			Start:       time.Date(2024, 9, 1, 9, 30, 0, 0, time.UTC),
			End:         time.Date(2024, 12, 15, 12, 0, 0, 0, time.UTC),
			HasOpenEnd:  true,
			Description: "line one\nline two",
		},
	}
	stamp := time.Date(2024, 12, 15, 12, 0, 0, 0, time.UTC)

	var b strings.Builder
	if err := WriteICS(&b, "My life", groups, items, stamp); err != nil {
		t.Fatal(err)
	}
	out := b.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"PRODID:" + ICSProductID + "\r\n",
		"UID:job@lifeline\r\n",
		"DTSTART;VALUE=DATE:20240301\r\n",
		"DTEND;VALUE=DATE:20240302\r\n",
		`SUMMARY:New job\, Berlin` + "\r\n",
		"CATEGORIES:Career,work\r\n",
		"DTSTART:20240901T093000Z\r\n",
		"DTEND:20241215T120000Z\r\n",
		`DESCRIPTION:line one\nline two` + "\r\n",
		"CATEGORIES:Travel\r\n",
		"X-LIFELINE-ONGOING:TRUE\r\n",
		"DTSTAMP:20241215T120000Z\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
	if strings.Count(out, "X-LIFELINE-ONGOING") != 1 {
		t.Error("only the ongoing item should be marked")
	}
}

func TestWriteICS_Empty(t *testing.T) {
	var b strings.Builder
	if err := WriteICS(&b, "empty", nil, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(b.String(), "VEVENT") {
		t.Error("no events expected")
	}
}
