package ports

// ResourceHandlers is the set of callbacks a playback resource delivers
// events through. Implementations must deliver events asynchronously with
// respect to AudioResource method calls: a handler is never invoked
// synchronously from inside Load, Play, Pause, SeekTo or SetRate. Handlers
// carry no resource identity; the coordinator guards every handler with its
// captured session generation instead.
type ResourceHandlers struct {
	// OnMetadata fires once the resource knows its duration in seconds.
	OnMetadata func(duration float64)

	// OnDurationChange fires when a decoder revises its duration estimate
	// after more data has arrived.
	OnDurationChange func(duration float64)

	// OnSeekable fires the first time the resource has enough data to honor
	// a seek. The coordinator performs its single deferred seek here.
	OnSeekable func()

	// OnEnded fires on the natural end of the bound segment.
	OnEnded func()

	OnPlay  func()
	OnPause func()
	OnError func(err error)
}

// AudioResource is the single backing handle bound to one segment's URL.
// It is owned exclusively by the current playback session and must be fully
// released (Detach, Pause, Close) before a new one is created.
type AudioResource interface {
	// Bind attaches handlers, replacing any previous set.
	Bind(h ResourceHandlers)

	// Detach drops all handlers. Events occurring afterwards are lost.
	Detach()

	// Load binds the resource to a URL and begins fetching and decoding.
	// A resource may be re-loaded with a new URL (warm-up reuse).
	Load(url string)

	// Play starts or resumes playback. Returns an error wrapping
	// domain.ErrAutoplayBlocked when the environment refuses a
	// programmatic start outside a user gesture.
	Play() error

	Pause()

	// SeekTo positions the decoder at the given raw (uncorrected) time in
	// seconds. The coordinator adds its continuity offset before calling.
	SeekTo(seconds float64)

	// Position reports the raw decoder position in seconds. Continuous
	// containers keep advancing across segment boundaries; the coordinator
	// subtracts its per-segment offset.
	Position() float64

	SetRate(rate float64)

	// Close pauses, drops handlers and releases any pending network or
	// decode activity. The resource must not be used afterwards.
	Close() error
}

// Opener creates playback resources. The engine never constructs resources
// directly so tests and alternative backends can substitute their own.
type Opener interface {
	NewResource() AudioResource
}
