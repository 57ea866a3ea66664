package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/render"
	"github.com/starford/lifeline/internal/render/svg"
	"github.com/starford/lifeline/internal/source"
	"github.com/starford/lifeline/internal/sse"
	"github.com/starford/lifeline/internal/testutil"
)

var fixedNow = time.Date(2024, 12, 15, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []sse.Event
	frames int
	closed []string
}

func (r *recorder) Publish(_ string, ev sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) PublishFrame(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
}

func (r *recorder) CloseTopic(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, topic)
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	collab *testutil.Collaborator
	svc    *Service
	events *recorder
	styles *render.StyleRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	collab := testutil.NewCollaborator(t)
	collab.AddTimeline(models.Timeline{ID: "career", Title: "Career"},
		models.Item{ID: "job", Title: "New job", StartDate: "2024-03-01", EndDate: "2024-03-01", Tags: []string{"work"}},
		models.Item{ID: "trip", Title: "Lisbon", StartDate: "2024-06-10", EndDate: "2024-06-20",
			Tags: []string{"travel"}, Images: []string{"https://img.example/lisbon.jpg"}},
	)
	collab.AddTimeline(models.Timeline{ID: "home", Title: "Home"},
		models.Item{ID: "move", Title: "Moving", StartDate: "2024-09-01"},
	)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }
	agg := lifeline.NewAggregator(source.NewHTTP(collab.BaseURL()),
		lifeline.WithNormalizer(&lifeline.Normalizer{Now: clock, Location: time.UTC}),
		lifeline.WithLogger(logger))

	f := &fixture{collab: collab, events: &recorder{}, styles: render.NewStyleRegistry()}
	f.svc = NewService(agg, svg.Factory(svg.WithClock(clock), svg.WithStyleRegistry(f.styles)),
		WithIndex(testutil.TestDB(t)),
		WithPublisher(f.events),
		WithStyles(f.styles),
		WithLogger(logger))
	t.Cleanup(f.svc.Shutdown)
	return f
}

func (f *fixture) open(t *testing.T, sc lifeline.Shortcut) *State {
	t.Helper()
	st, err := f.svc.Open(context.Background(), OpenRequest{Width: 900, Height: 400, Shortcut: sc})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func visibleIDs(st *State) []string {
	var out []string
	for _, iv := range st.Items {
		out = append(out, iv.ID)
	}
	return out
}

func TestOpen_DefaultWindow(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")

	if st.ID == "" {
		t.Fatal("session id should be set")
	}
	if !st.Window.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !st.Window.End.Equal(fixedNow) {
		t.Errorf("window = %v..%v, want year start..now", st.Window.Start, st.Window.End)
	}
	if len(st.Groups) != 2 || st.Groups[0].Label != "Career" || st.Groups[1].ID != 2 {
		t.Errorf("groups = %+v", st.Groups)
	}
	if got := strings.Join(visibleIDs(st), ","); got != "job,trip,move" {
		t.Errorf("visible = %s", got)
	}
	if st.Checksum == "" {
		t.Error("checksum should be set")
	}

	frame, sum, err := f.svc.Frame(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum != st.Checksum {
		t.Errorf("frame checksum = %s, want %s", sum, st.Checksum)
	}
	if !strings.Contains(string(frame), "<svg") || !strings.Contains(string(frame), `data-id="move"`) {
		t.Errorf("unexpected frame:\n%s", frame)
	}
}

func TestOpen_Shortcut(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, lifeline.ShortcutMonth)
	if got := strings.Join(visibleIDs(st), ","); got != "move" {
		t.Errorf("visible in December = %s, want move", got)
	}
	if !st.Items[0].HasOpenEnd || !st.Items[0].End.Equal(fixedNow) {
		t.Errorf("move should be ongoing until now: %+v", st.Items[0])
	}
}

func TestOpen_InvalidInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Open(context.Background(), OpenRequest{Width: 0, Height: 10}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("zero width: %v", err)
	}
	if _, err := f.svc.Open(context.Background(), OpenRequest{Width: 10, Height: 10, Shortcut: "decade"}); !errors.Is(err, lifeline.ErrUnknownShortcut) {
		t.Errorf("unknown shortcut: %v", err)
	}
	if n := f.collab.Requests.Load(); n != 0 {
		t.Errorf("invalid requests should not fetch, got %d requests", n)
	}
}

func TestOpen_FetchFailure(t *testing.T) {
	f := newFixture(t)
	f.collab.Fail("/timelines/home/items", http.StatusServiceUnavailable)

	_, err := f.svc.Open(context.Background(), OpenRequest{Width: 900, Height: 400})
	if !errors.Is(err, lifeline.ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
	if ids := f.svc.IDs(); len(ids) != 0 {
		t.Errorf("failed session kept: %v", ids)
	}
	if f.styles.Len() != 0 {
		t.Errorf("style rules leaked: %d", f.styles.Len())
	}
}

func TestSelect(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")

	got, err := f.svc.Select(st.ID, []string{"trip", "job"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Selected != "trip" {
		t.Errorf("selected = %q, want trip", got.Selected)
	}
	frame, _, _ := f.svc.Frame(st.ID)
	if !strings.Contains(string(frame), `lt-selected" data-id="trip"`) {
		t.Error("frame should mark trip selected")
	}
	if f.events.count(sse.SelectionChanged) != 1 {
		t.Errorf("selection events = %d", f.events.count(sse.SelectionChanged))
	}

	if got, _ = f.svc.Select(st.ID, []string{"nope"}); got.Selected != "" {
		t.Errorf("unknown id selected %q", got.Selected)
	}
	if got, _ = f.svc.Select(st.ID, []string{"job"}); got.Selected != "job" {
		t.Errorf("selected = %q", got.Selected)
	}
	if got, _ = f.svc.Select(st.ID, nil); got.Selected != "" {
		t.Errorf("empty selection kept %q", got.Selected)
	}
}

func TestWindowOperations(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")

	june := lifeline.Window{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	got, err := f.svc.SetWindow(st.ID, june)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(visibleIDs(got), ",") != "trip" {
		t.Errorf("june visible = %v", visibleIDs(got))
	}
	if f.events.count(sse.WindowChanged) != 1 {
		t.Errorf("window events = %d", f.events.count(sse.WindowChanged))
	}

	if _, err := f.svc.SetWindow(st.ID, lifeline.Window{Start: june.End, End: june.Start}); !errors.Is(err, lifeline.ErrInvalidWindow) {
		t.Errorf("reversed window: %v", err)
	}

	got, err = f.svc.Pan(st.ID, 90*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Window.Start.Equal(june.Start.Add(90 * 24 * time.Hour)) {
		t.Errorf("pan start = %v", got.Window.Start)
	}
	if strings.Join(visibleIDs(got), ",") != "move" {
		t.Errorf("visible after pan = %v", visibleIDs(got))
	}

	before := got.Window.Span()
	got, err = f.svc.Zoom(st.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Window.Span() != 2*before {
		t.Errorf("zoom span = %v, want %v", got.Window.Span(), 2*before)
	}
	if _, err := f.svc.Zoom(st.ID, 0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("zero zoom: %v", err)
	}

	got, err = f.svc.Shortcut(st.ID, lifeline.ShortcutWeek)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Window.Start.Equal(time.Date(2024, 12, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week start = %v", got.Window.Start)
	}
}

func TestRefresh_ReplacesDatasetAndClearsSelection(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")
	if _, err := f.svc.Select(st.ID, []string{"job"}); err != nil {
		t.Fatal(err)
	}

	f.collab.SetItems("home",
		models.Item{ID: "move", Title: "Moving", StartDate: "2024-09-01"},
		models.Item{ID: "garden", Title: "Garden", StartDate: "2024-10-01", EndDate: "2024-10-05"},
	)
	got, err := f.svc.Refresh(context.Background(), st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Selected != "" {
		t.Errorf("selection survived refresh: %q", got.Selected)
	}
	if strings.Join(visibleIDs(got), ",") != "job,trip,move,garden" {
		t.Errorf("visible = %v", visibleIDs(got))
	}
	if got.Checksum == st.Checksum {
		t.Error("checksum should change")
	}
	if f.events.count(sse.DatasetReplaced) != 1 {
		t.Errorf("dataset events = %d", f.events.count(sse.DatasetReplaced))
	}
	frame, _, _ := f.svc.Frame(st.ID)
	if strings.Contains(string(frame), "lt-selected") {
		t.Error("frame still shows a selection")
	}

	// Unchanged data publishes no replacement.
	if _, err := f.svc.Refresh(context.Background(), st.ID); err != nil {
		t.Fatal(err)
	}
	if f.events.count(sse.DatasetReplaced) != 1 {
		t.Errorf("unchanged refresh published %d replacements", f.events.count(sse.DatasetReplaced))
	}
}

func TestRefresh_FailureKeepsPreviousDataset(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")
	f.collab.Fail("/timelines", http.StatusBadGateway)

	if _, err := f.svc.Refresh(context.Background(), st.ID); !errors.Is(err, lifeline.ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
	got, err := f.svc.State(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Checksum != st.Checksum || len(got.Items) != 3 {
		t.Errorf("previous dataset lost: %+v", got)
	}
}

func TestApply_ReleasesLoadContext(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")
	sess, err := f.svc.Get(st.ID)
	if err != nil {
		t.Fatal(err)
	}

	sess.mu.Lock()
	loadCtx, gen := sess.beginLoad(context.Background())
	err = f.svc.apply(sess, sess.dataset, gen)
	sess.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(loadCtx.Err(), context.Canceled) {
		t.Errorf("load context still live after apply: %v", loadCtx.Err())
	}
	if sess.cancelLoad != nil {
		t.Error("cancelLoad not cleared")
	}
	if sess.ctx.Err() != nil {
		t.Error("session context cancelled")
	}
	if _, err := f.svc.Refresh(context.Background(), st.ID); err != nil {
		t.Fatalf("refresh after apply: %v", err)
	}
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, "")
	b := f.open(t, "")

	f.collab.SetItems("home")
	if err := f.svc.RefreshAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{a.ID, b.ID} {
		st, err := f.svc.State(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(st.Items) != 2 {
			t.Errorf("%s: items = %v", id, visibleIDs(st))
		}
	}
}

func TestToggleThumbnails(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")
	if _, err := f.svc.SetWindow(st.ID, lifeline.Window{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Select(st.ID, []string{"trip"}); err != nil {
		t.Fatal(err)
	}

	frame, _, _ := f.svc.Frame(st.ID)
	if strings.Contains(string(frame), "lt-thumb") {
		t.Fatal("thumbnails should start off")
	}
	got, err := f.svc.ToggleThumbnails(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Thumbnails {
		t.Error("thumbnails should be on")
	}
	if got.Selected != "trip" {
		t.Errorf("toggle lost selection: %q", got.Selected)
	}
	frame, _, _ = f.svc.Frame(st.ID)
	if !strings.Contains(string(frame), `class="lt-thumb" src="https://img.example/lisbon.jpg"`) {
		t.Errorf("thumbnail missing:\n%s", frame)
	}

	if got, _ = f.svc.ToggleThumbnails(st.ID); got.Thumbnails {
		t.Error("thumbnails should be off again")
	}
}

func TestResize(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")
	got, err := f.svc.Resize(st.ID, 1200, 500)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 1200 || got.Height != 500 {
		t.Errorf("size = %dx%d", got.Width, got.Height)
	}
	frame, _, _ := f.svc.Frame(st.ID)
	if !strings.Contains(string(frame), `width="1200"`) {
		t.Error("frame not redrawn at the new width")
	}
	if _, err := f.svc.Resize(st.ID, -1, 10); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative width: %v", err)
	}
}

func TestSearchAndTags(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")

	hits, err := f.svc.Search(st.ID, "Lisbon", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "trip" {
		t.Errorf("search hits = %+v", hits)
	}
	hits, err = f.svc.Search(st.ID, "", "work", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "job" {
		t.Errorf("tag hits = %+v", hits)
	}
	if _, err := f.svc.Search(st.ID, "", "", 10); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty query: %v", err)
	}
	tags, err := f.svc.Tags(st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Errorf("tags = %+v", tags)
	}
}

func TestItem(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, lifeline.ShortcutWeek)

	// Items outside the window are still addressable.
	iv, err := f.svc.Item(st.ID, "job")
	if err != nil {
		t.Fatal(err)
	}
	if iv.Title != "New job" || !iv.End.Equal(iv.Start.Add(24*time.Hour)) {
		t.Errorf("job = %+v", iv)
	}
	if _, err := f.svc.Item(st.ID, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown item: %v", err)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	st := f.open(t, "")

	if err := f.svc.Close(st.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.State(st.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("state after close: %v", err)
	}
	if err := f.svc.Close(st.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second close: %v", err)
	}
	if f.styles.Len() != 0 {
		t.Errorf("style rules left: %d", f.styles.Len())
	}
	f.events.mu.Lock()
	closed := append([]string(nil), f.events.closed...)
	f.events.mu.Unlock()
	if len(closed) != 1 || closed[0] != st.ID {
		t.Errorf("closed topics = %v", closed)
	}
	if _, err := f.svc.Search(st.ID, "Lisbon", "", 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("search after close: %v", err)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	f.open(t, "")
	f.open(t, "")
	f.svc.Shutdown()
	if ids := f.svc.IDs(); len(ids) != 0 {
		t.Errorf("sessions after shutdown: %v", ids)
	}
}
