// Package clockplayer is the engine's server-side playback backend. It does
// not decode audio; it probes the real media metadata and then advances a
// position on the wall clock at the configured rate, emitting the same event
// sequence a decoding player would (metadata, seekable, play, pause, ended).
//
// Positions are reported raw, including the container's start time, so the
// coordinator's continuity handling sees the same timestamps a real decoder
// would produce for chunks cut out of one continuous recording.
package clockplayer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voicestream/internal/domain/ports"
)

// Probe is the metadata the backend needs per URL.
type Probe struct {
	Duration  float64
	StartTime float64
}

// ProbeFunc resolves media metadata for a URL, typically backed by ffprobe.
type ProbeFunc func(ctx context.Context, url string) (Probe, error)

type Opener struct {
	probe   ProbeFunc
	timeout time.Duration
	logger  *slog.Logger
}

func New(probe ProbeFunc, timeout time.Duration, logger *slog.Logger) *Opener {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{probe: probe, timeout: timeout, logger: logger}
}

func (o *Opener) NewResource() ports.AudioResource {
	return &resource{o: o, rate: 1.0}
}

type resource struct {
	o  *Opener
	mu sync.Mutex
	h  ports.ResourceHandlers

	url     string
	loadSeq int

	origin   float64 // container start time, included in reported positions
	duration float64
	haveMeta bool

	inner   float64 // seconds into the segment at the last anchor point
	anchor  time.Time
	playing bool
	rate    float64

	endTimer *time.Timer
	closed   bool
}

func (r *resource) Bind(h ports.ResourceHandlers) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *resource) Detach() {
	r.mu.Lock()
	r.h = ports.ResourceHandlers{}
	r.mu.Unlock()
}

func (r *resource) Load(url string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.url = url
	r.loadSeq++
	seq := r.loadSeq
	r.haveMeta = false
	r.inner = 0
	r.origin = 0
	r.stopEndTimerLocked()
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.o.timeout)
		defer cancel()
		info, err := r.o.probe(ctx, url)

		r.mu.Lock()
		if r.closed || seq != r.loadSeq {
			r.mu.Unlock()
			return
		}
		if err != nil {
			h := r.h
			r.mu.Unlock()
			if h.OnError != nil {
				h.OnError(err)
			}
			return
		}
		r.origin = info.StartTime
		r.duration = info.Duration
		r.haveMeta = true
		if r.playing {
			r.scheduleEndLocked(seq)
		}
		h := r.h
		r.mu.Unlock()

		if h.OnMetadata != nil {
			h.OnMetadata(info.Duration)
		}
		if h.OnSeekable != nil {
			h.OnSeekable()
		}
	}()
}

func (r *resource) Play() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("clockplayer: resource closed")
	}
	if !r.playing {
		r.playing = true
		r.anchor = time.Now()
		if r.haveMeta {
			r.scheduleEndLocked(r.loadSeq)
		}
	}
	h := r.h
	r.mu.Unlock()
	if h.OnPlay != nil {
		go h.OnPlay()
	}
	return nil
}

func (r *resource) Pause() {
	r.mu.Lock()
	if r.closed || !r.playing {
		r.mu.Unlock()
		return
	}
	r.inner = r.innerNowLocked()
	r.playing = false
	r.stopEndTimerLocked()
	h := r.h
	r.mu.Unlock()
	if h.OnPause != nil {
		go h.OnPause()
	}
}

func (r *resource) SeekTo(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	inner := seconds - r.origin
	if inner < 0 {
		inner = 0
	}
	if r.haveMeta && inner > r.duration {
		inner = r.duration
	}
	r.inner = inner
	if r.playing {
		r.anchor = time.Now()
		if r.haveMeta {
			r.scheduleEndLocked(r.loadSeq)
		}
	}
}

func (r *resource) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.origin + r.innerNowLocked()
}

func (r *resource) SetRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || rate <= 0 {
		return
	}
	// Re-anchor so the elapsed portion keeps its old rate.
	r.inner = r.innerNowLocked()
	r.anchor = time.Now()
	r.rate = rate
	if r.playing && r.haveMeta {
		r.scheduleEndLocked(r.loadSeq)
	}
}

func (r *resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.playing = false
	r.stopEndTimerLocked()
	r.h = ports.ResourceHandlers{}
	return nil
}

func (r *resource) innerNowLocked() float64 {
	inner := r.inner
	if r.playing {
		inner += time.Since(r.anchor).Seconds() * r.rate
	}
	if r.haveMeta && inner > r.duration {
		inner = r.duration
	}
	return inner
}

func (r *resource) stopEndTimerLocked() {
	if r.endTimer != nil {
		r.endTimer.Stop()
		r.endTimer = nil
	}
}

func (r *resource) scheduleEndLocked(seq int) {
	r.stopEndTimerLocked()
	remaining := (r.duration - r.innerNowLocked()) / r.rate
	if remaining < 0 {
		remaining = 0
	}
	r.endTimer = time.AfterFunc(time.Duration(remaining*float64(time.Second)), func() {
		r.fireEnded(seq)
	})
}

func (r *resource) fireEnded(seq int) {
	r.mu.Lock()
	if r.closed || seq != r.loadSeq || !r.playing {
		r.mu.Unlock()
		return
	}
	r.inner = r.duration
	r.playing = false
	h := r.h
	r.mu.Unlock()
	if h.OnEnded != nil {
		h.OnEnded()
	}
}
