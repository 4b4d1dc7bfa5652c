package playback

import (
	"math"
	"path"
	"strings"
)

// Some containers reset their internal clock to zero at the start of every
// segment; others, cut from one continuously recorded take, keep a single
// clock advancing across segment boundaries. The offset state below turns a
// raw decoder position into "seconds into this segment" either way.
//
// The raw position observed on the first sample decides which of three cases
// applies: near the provisional offset (continuous container behaving as
// expected), near zero (container turned out to reset after all), or neither
// (adopt the raw position itself so local time starts at zero regardless).
const (
	offsetConfirmWindow = 5.0 // seconds around the provisional offset
	offsetNearZero      = 1.0 // raw positions below this mean "resets per segment"
)

type offsetState struct {
	continuous  bool
	provisional float64
	confirmed   bool
	value       float64
}

// newOffsetState primes the offset for a freshly loaded segment.
// priorCumulative is the expected sum of all prior segment durations.
func newOffsetState(continuous bool, priorCumulative float64) offsetState {
	o := offsetState{continuous: continuous}
	if continuous {
		o.provisional = priorCumulative
	}
	return o
}

// current returns the offset to apply right now: the confirmed value once a
// real sample has been seen, the provisional classification before that.
func (o *offsetState) current() float64 {
	if o.confirmed {
		return o.value
	}
	return o.provisional
}

// confirm fixes the offset from the first real position sample. pendingLocal
// is the local time the coordinator seeked to before this sample, so that a
// mid-segment load does not skew the classification. Once confirmed the
// offset never changes for the remainder of the segment's playback.
func (o *offsetState) confirm(raw, pendingLocal float64) {
	if o.confirmed {
		return
	}
	base := raw - pendingLocal
	switch {
	case math.Abs(base-o.provisional) <= offsetConfirmWindow:
		o.value = o.provisional
	case base < offsetNearZero:
		o.value = 0
	default:
		o.value = base
	}
	o.confirmed = true
}

// containerContinuous classifies a segment's timestamp continuity. An
// explicit flag from the generation service wins; otherwise the container
// type is sniffed from the URL. Matroska chunks cut from one continuous
// recording keep the take's clock; everything else is assumed to reset.
func containerContinuous(rawURL string, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	u := strings.ToLower(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch path.Ext(u) {
	case ".webm", ".mkv", ".mka":
		return true
	default:
		return false
	}
}
