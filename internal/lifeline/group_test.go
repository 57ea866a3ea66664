package lifeline

import (
	"fmt"
	"testing"

	"github.com/starford/lifeline/internal/models"
)

func TestAssignGroups_SequentialIDs(t *testing.T) {
	groups := AssignGroups([]models.Timeline{
		{ID: "t1", Title: "Career"},
		{LegacyID: "t2", Title: "Travel"},
	}, nil)
	if len(groups) != 2 {
		t.Fatalf("len = %d", len(groups))
	}
	if groups[0].ID != 1 || groups[1].ID != 2 {
		t.Errorf("ids = %d,%d want 1,2", groups[0].ID, groups[1].ID)
	}
	if groups[1].TimelineID != "t2" || groups[1].Label != "Travel" {
		t.Errorf("group 2 = %+v", groups[1])
	}
	if groups[0].Color == groups[1].Color {
		t.Error("first two groups should get different colors")
	}
}

func TestAssignGroups_ColorsCycle(t *testing.T) {
	timelines := make([]models.Timeline, 12)
	for i := range timelines {
		timelines[i] = models.Timeline{ID: fmt.Sprint(i), Title: fmt.Sprint("T", i)}
	}
	groups := AssignGroups(timelines, DefaultPalette)
	if groups[10].Color != groups[0].Color {
		t.Errorf("group index 10 color = %q, want %q", groups[10].Color, groups[0].Color)
	}
	if groups[10].ColorIndex != 0 || groups[11].ColorIndex != 1 {
		t.Errorf("color indexes = %d,%d want 0,1", groups[10].ColorIndex, groups[11].ColorIndex)
	}
	seen := map[string]bool{}
	for _, g := range groups[:PaletteSize] {
		if seen[g.Color] {
			t.Errorf("color %q reused within the first %d groups", g.Color, PaletteSize)
		}
		seen[g.Color] = true
	}
}

func TestPalette_EmptyFallsBack(t *testing.T) {
	p := Palette{}
	if p.Color(3) != FallbackColor {
		t.Errorf("empty palette color = %q", p.Color(3))
	}
}
