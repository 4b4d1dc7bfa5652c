package domain

// Snapshot is the read-only playback status consumed by the UI. It is
// recomputed from coordinator state on every tick and event.
type Snapshot struct {
	IsPlaying                bool    `json:"isPlaying"`
	CurrentLocalTime         float64 `json:"currentLocalTime"`
	Duration                 float64 `json:"duration"`
	CumulativeTime           float64 `json:"cumulativeTime"`
	TotalDuration            float64 `json:"totalDuration"`
	CurrentSegmentIndex      int     `json:"currentSegmentIndex"`
	TotalSegments            int     `json:"totalSegments"`
	IsBuffering              bool    `json:"isBuffering"`
	PlaybackRate             float64 `json:"playbackRate"`
	IsWaitingForMoreSegments bool    `json:"isWaitingForMoreSegments"`
	EntryID                  EntryID `json:"entryId,omitempty"`
}
