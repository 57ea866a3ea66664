// Package models defines the raw records exchanged with the timeline collaborator.
package models

// Timeline is a parent timeline as returned by GET /timelines.
//
// The collaborator historically serialized ids as "_id"; both spellings are
// accepted and Key returns whichever is set.
type Timeline struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	LegacyID string `json:"_id,omitempty" yaml:"-"`
	Title    string `json:"title" yaml:"title"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Key returns the timeline identifier.
func (t Timeline) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.LegacyID
}

// Item is a single dated record as returned by GET /timelines/{id}/items.
// Dates stay as strings here; parsing belongs to the interval normalizer.
type Item struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	LegacyID    string   `json:"_id,omitempty" yaml:"-"`
	Title       string   `json:"title" yaml:"title"`
	StartDate   string   `json:"startDate" yaml:"startDate"`
	EndDate     string   `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Images      []string `json:"images,omitempty" yaml:"images,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Impact      string   `json:"impact,omitempty" yaml:"impact,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Key returns the item identifier.
func (i Item) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return i.LegacyID
}
