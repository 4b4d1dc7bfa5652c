package domain

// EntryID identifies the journal entry (or generated profile) whose
// synthesized audio is being played.
type EntryID string

// DurationSource records how a segment's duration was obtained. A measured
// duration always wins over any prior source.
type DurationSource string

const (
	DurationAuthoritative DurationSource = "authoritative"
	DurationProbed        DurationSource = "probed"
	DurationFallback      DurationSource = "fallback"
	DurationMeasured      DurationSource = "measured"
)

// Segment is one independently fetched unit of audio in a playback queue.
// Its duration may be corrected in place after real playback reveals the
// true length; segments are never removed individually, only the whole
// queue is cleared.
type Segment struct {
	Index          int            `json:"index"`
	URL            string         `json:"url"`
	Duration       float64        `json:"duration"`
	DurationSource DurationSource `json:"durationSource"`
}

// QueueMetadata describes the logical stream a queue of segments belongs to.
type QueueMetadata struct {
	EntryID EntryID `json:"entryId,omitempty"`
	Title   string  `json:"title,omitempty"`

	// Continuous, when set, is the generation service's explicit statement
	// about timestamp continuity across segments. When nil the engine falls
	// back to sniffing the container type from the segment URL.
	Continuous *bool `json:"continuous,omitempty"`

	// GeneratorActive marks a queue whose upstream generator is still
	// producing segments; reaching the end of the queue then waits for more
	// instead of ending playback.
	GeneratorActive bool `json:"generatorActive,omitempty"`
}
