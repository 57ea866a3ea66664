package api

import (
	"time"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/viewer"
)

// OpenSessionRequest is the request body for opening a view session.
type OpenSessionRequest = viewer.OpenRequest

// SessionState is the session snapshot returned by most routes (aliased from the domain layer).
type SessionState = viewer.State

// Interval is one normalized item (aliased from the domain layer).
type Interval = lifeline.Interval

// WindowRequest moves the window either to a shortcut or to explicit bounds.
type WindowRequest struct {
	Shortcut lifeline.Shortcut `json:"shortcut,omitempty" example:"month" enums:"week,month,year"`
	Start    *time.Time        `json:"start,omitempty" example:"2024-01-01T00:00:00Z"`
	End      *time.Time        `json:"end,omitempty" example:"2024-12-31T23:59:59Z"`
}

// PanRequest shifts the window; negative seconds move back in time.
type PanRequest struct {
	Seconds float64 `json:"seconds" example:"-86400" validate:"required"`
}

// ZoomRequest scales the window around its center; below 1 zooms in.
type ZoomRequest struct {
	Factor float64 `json:"factor" example:"0.5" validate:"required"`
}

// SelectRequest selects an item; an empty list clears the selection.
type SelectRequest struct {
	IDs []string `json:"ids" example:"trip-2024"`
}

// ResizeRequest changes the container size in pixels.
type ResizeRequest struct {
	Width  int `json:"width" example:"1200" validate:"required"`
	Height int `json:"height" example:"480" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" example:"career/new-job.md" validate:"required"`
	Group   int    `json:"group" example:"1" validate:"required"`
	Title   string `json:"title" example:"New job" validate:"required"`
	Snippet string `json:"snippet,omitempty" example:"...matched text..."`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TagCount is a tag with the number of items carrying it.
type TagCount struct {
	Tag   string `json:"tag" example:"travel" validate:"required"`
	Count int    `json:"count" example:"3" validate:"required"`
}
