package domain

import "time"

// ListenPosition is the persisted resume point for one entry's audio stream.
// Position and Duration are cumulative seconds across the whole queue.
type ListenPosition struct {
	EntryID   EntryID   `json:"entryId"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
