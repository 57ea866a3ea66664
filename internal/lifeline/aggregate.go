package lifeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lifeline/internal/checksum"
	"github.com/starford/lifeline/internal/models"
)

// Source is the external collaborator holding timelines and their items.
type Source interface {
	// Timelines lists the parent timelines visible to the current user, in
	// display order.
	Timelines(ctx context.Context) ([]models.Timeline, error)
	// Items lists the items of one timeline.
	Items(ctx context.Context, timelineID string) ([]models.Item, error)
}

// SkippedItem records a raw item that normalization rejected.
type SkippedItem struct {
	ItemID  string `json:"itemId"`
	GroupID int    `json:"group"`
	Reason  string `json:"reason"`
}

// Dataset is the result of one full aggregation cycle.
type Dataset struct {
	Groups    []Group       `json:"groups"`
	Intervals []Interval    `json:"intervals"`
	Skipped   []SkippedItem `json:"skipped,omitempty"`
	LoadedAt  time.Time     `json:"loadedAt"`
	Checksum  string        `json:"checksum"`
}

// Group returns the group with the given id.
func (d *Dataset) Group(id int) (Group, bool) {
	if id < 1 || id > len(d.Groups) {
		return Group{}, false
	}
	return d.Groups[id-1], true
}

// Aggregator loads every timeline from a Source and normalizes the result.
type Aggregator struct {
	src         Source
	norm        *Normalizer
	palette     Palette
	concurrency int
	logger      *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithNormalizer overrides the normalizer, mostly to pin the clock.
func WithNormalizer(n *Normalizer) AggregatorOption {
	return func(a *Aggregator) { a.norm = n }
}

// WithPalette overrides the group palette.
func WithPalette(p Palette) AggregatorOption {
	return func(a *Aggregator) {
		if p != nil {
			a.palette = p
		}
	}
}

// WithConcurrency caps parallel item requests. Zero means one request per
// timeline, all at once.
func WithConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithLogger sets the logger used for record-level problems.
func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator reading from src.
func NewAggregator(src Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		src:     src,
		norm:    NewNormalizer(time.UTC),
		palette: DefaultPalette,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Palette returns the palette groups are colored from.
func (a *Aggregator) Palette() Palette { return a.palette }

// Now returns the normalizer's notion of the current time.
func (a *Aggregator) Now() time.Time { return a.norm.now() }

// Load fetches all timelines, then all of their items in parallel, and
// normalizes the joined result. Any failed request fails the whole load with
// ErrFetchFailure; there is no partial dataset. Items with unusable dates are
// logged and skipped.
func (a *Aggregator) Load(ctx context.Context) (*Dataset, error) {
	timelines, err := a.src.Timelines(ctx)
	if err != nil {
		return nil, fetchErr("list timelines", err)
	}

	perTimeline := make([][]models.Item, len(timelines))
	g, gCtx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, tl := range timelines {
		g.Go(func() error {
			items, err := a.src.Items(gCtx, tl.Key())
			if err != nil {
				return fetchErr(fmt.Sprintf("items of timeline %s", tl.Key()), err)
			}
			perTimeline[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groups := AssignGroups(timelines, a.palette)
	ds := &Dataset{
		Groups:    groups,
		Intervals: make([]Interval, 0, countItems(perTimeline)),
		LoadedAt:  a.norm.now(),
	}

	seen := make(map[string]int)
	for gi, items := range perTimeline {
		groupID := groups[gi].ID
		for _, raw := range items {
			iv, err := a.norm.Normalize(raw, groupID)
			if err != nil {
				a.logger.Warn("skipping item with invalid date",
					slog.String("item_id", raw.Key()),
					slog.Int("group", groupID),
					slog.String("error", err.Error()))
				ds.Skipped = append(ds.Skipped, SkippedItem{ItemID: raw.Key(), GroupID: groupID, Reason: err.Error()})
				continue
			}
			if owner, dup := seen[iv.ID]; dup {
				a.logger.Warn("skipping item with duplicate id",
					slog.String("item_id", iv.ID),
					slog.Int("group", groupID),
					slog.Int("first_group", owner))
				ds.Skipped = append(ds.Skipped, SkippedItem{ItemID: iv.ID, GroupID: groupID, Reason: "duplicate id"})
				continue
			}
			seen[iv.ID] = groupID
			ds.Intervals = append(ds.Intervals, iv)
		}
	}

	ds.Checksum = datasetChecksum(ds)
	a.logger.Debug("aggregation loaded",
		slog.Int("groups", len(ds.Groups)),
		slog.Int("intervals", len(ds.Intervals)),
		slog.Int("skipped", len(ds.Skipped)))
	return ds, nil
}

func fetchErr(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lifeline: %s: %w", what, err)
	}
	return fmt.Errorf("lifeline: %s: %w: %w", what, ErrFetchFailure, err)
}

func countItems(per [][]models.Item) int {
	n := 0
	for _, items := range per {
		n += len(items)
	}
	return n
}

// datasetChecksum covers everything a render depends on except the open
// ends, which move with the clock.
func datasetChecksum(ds *Dataset) string {
	d := checksum.New()
	for _, g := range ds.Groups {
		d.Int(int64(g.ID)).String(g.Label).String(g.TimelineID).String(g.Color)
	}
	for _, iv := range ds.Intervals {
		d.String(iv.ID).Int(int64(iv.GroupID)).String(iv.Title).
			Int(iv.Start.UnixMilli()).
			String(iv.Impact).String(iv.Description).
			String(strings.Join(iv.Tags, "\x1f")).
			String(strings.Join(iv.Images, "\x1f"))
		if iv.HasOpenEnd {
			d.Int(-1)
		} else {
			d.Int(iv.End.UnixMilli())
		}
	}
	return d.Sum()
}
