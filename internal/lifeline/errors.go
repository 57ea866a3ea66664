package lifeline

import "errors"

var (
	// ErrInvalidDate marks a record whose start or end date cannot be used.
	ErrInvalidDate = errors.New("invalid date")
	// ErrFetchFailure marks a failed timeline or item request. A load that
	// returns it produced no dataset at all.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrInvalidWindow marks a window whose end precedes its start.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrUnknownShortcut is returned for shortcut names other than week, month, year.
	ErrUnknownShortcut = errors.New("unknown shortcut")
)
