package lifeline

import "github.com/starford/lifeline/internal/models"

// PaletteSize is the number of colors in the default palette.
const PaletteSize = 10

// FallbackColor is used when a palette has no colors at all.
const FallbackColor = "rgba(240, 240, 240, 0.5)"

// DefaultPalette holds soft, half-transparent background colors.
var DefaultPalette = Palette{
	"rgba(230, 230, 250, 0.5)", // lavender
	"rgba(204, 229, 255, 0.5)", // light steel blue
	"rgba(221, 212, 231, 0.5)", // plum
	"rgba(255, 228, 181, 0.3)", // moccasin
	"rgba(175, 238, 238, 0.5)", // pale turquoise
	"rgba(255, 239, 213, 0.5)", // papaya whip
	"rgba(173, 216, 230, 0.5)", // light blue
	"rgba(255, 218, 185, 0.5)", // peach puff
	"rgba(152, 251, 152, 0.3)", // pale green
	"rgba(255, 192, 203, 0.5)", // pink
}

// Palette is a cyclic list of CSS colors.
type Palette []string

// Size returns the number of colors.
func (p Palette) Size() int { return len(p) }

// Index maps a group index onto the palette, cycling past the end.
func (p Palette) Index(i int) int {
	if len(p) == 0 || i < 0 {
		return 0
	}
	return i % len(p)
}

// Color returns the color for group index i.
func (p Palette) Color(i int) string {
	if len(p) == 0 {
		return FallbackColor
	}
	return p[p.Index(i)]
}

// Group is one parent timeline on the aggregated chart.
type Group struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	TimelineID string `json:"timelineId"`
	ColorIndex int    `json:"colorIndex"`
	Color      string `json:"color"`
}

// AssignGroups numbers timelines from 1 in the order given and colors them
// from palette. Colors repeat once there are more timelines than colors.
func AssignGroups(timelines []models.Timeline, palette Palette) []Group {
	if palette == nil {
		palette = DefaultPalette
	}
	groups := make([]Group, len(timelines))
	for i, tl := range timelines {
		groups[i] = Group{
			ID:         i + 1,
			Label:      tl.Title,
			TimelineID: tl.Key(),
			ColorIndex: palette.Index(i),
			Color:      palette.Color(i),
		}
	}
	return groups
}
