package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voicestream/internal/domain"
	"voicestream/internal/domain/ports"
)

// probeOpener creates resources that emit metadata (or an error) on their own
// shortly after Load, the way a real decoding backend would.
type probeOpener struct {
	mu        sync.Mutex
	created   int
	durations map[string]float64
}

func (o *probeOpener) NewResource() ports.AudioResource {
	o.mu.Lock()
	o.created++
	o.mu.Unlock()
	return &probeResource{opener: o}
}

func (o *probeOpener) createdCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.created
}

type probeResource struct {
	opener *probeOpener
	mu     sync.Mutex
	h      ports.ResourceHandlers
	closed bool
}

func (r *probeResource) Bind(h ports.ResourceHandlers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.h = h
}

func (r *probeResource) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.h = ports.ResourceHandlers{}
}

func (r *probeResource) Load(url string) {
	go func() {
		time.Sleep(time.Millisecond)
		r.mu.Lock()
		h := r.h
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		if strings.Contains(url, "broken") {
			if h.OnError != nil {
				h.OnError(errors.New("decode failed"))
			}
			return
		}
		r.opener.mu.Lock()
		d, ok := r.opener.durations[url]
		r.opener.mu.Unlock()
		if ok && h.OnMetadata != nil {
			h.OnMetadata(d)
		}
		// Unknown URLs stay silent until the probe timeout.
	}()
}

func (r *probeResource) Play() error       { return nil }
func (r *probeResource) Pause()            {}
func (r *probeResource) SeekTo(float64)    {}
func (r *probeResource) Position() float64 { return 0 }
func (r *probeResource) SetRate(float64)   {}

func (r *probeResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestResolveAuthoritativeSkipsProbing(t *testing.T) {
	opener := &probeOpener{}
	r := NewResolver(opener, 50*time.Millisecond, 300, testLogger())

	segments := r.Resolve(context.Background(), []string{"a.mp3", "b.mp3"}, durationPtrs(12.5, 34))
	if opener.createdCount() != 0 {
		t.Fatalf("complete server durations must not probe, created %d resources", opener.createdCount())
	}
	if segments[0].Duration != 12.5 || segments[0].DurationSource != domain.DurationAuthoritative {
		t.Fatalf("segment 0 = %+v", segments[0])
	}
	if segments[1].Index != 1 || segments[1].Duration != 34 {
		t.Fatalf("segment 1 = %+v", segments[1])
	}
}

func TestResolveProbesMissingDurations(t *testing.T) {
	opener := &probeOpener{durations: map[string]float64{
		"a.mp3": 9.7,
		"b.mp3": 11.2,
	}}
	r := NewResolver(opener, 100*time.Millisecond, 300, testLogger())

	segments := r.Resolve(context.Background(), []string{"a.mp3", "b.mp3"}, nil)
	for i, want := range []float64{9.7, 11.2} {
		if segments[i].Duration != want || segments[i].DurationSource != domain.DurationProbed {
			t.Fatalf("segment %d = %+v, want probed %f", i, segments[i], want)
		}
	}
}

func TestResolvePartialHintsMixSources(t *testing.T) {
	opener := &probeOpener{durations: map[string]float64{"b.mp3": 20}}
	r := NewResolver(opener, 100*time.Millisecond, 300, testLogger())

	hints := []*float64{durationPtrs(10)[0], nil}
	segments := r.Resolve(context.Background(), []string{"a.mp3", "b.mp3"}, hints)
	if segments[0].DurationSource != domain.DurationAuthoritative || segments[0].Duration != 10 {
		t.Fatalf("segment 0 = %+v", segments[0])
	}
	if segments[1].DurationSource != domain.DurationProbed || segments[1].Duration != 20 {
		t.Fatalf("segment 1 = %+v", segments[1])
	}
}

func TestResolveFallsBackOnErrorAndTimeout(t *testing.T) {
	opener := &probeOpener{durations: map[string]float64{}}
	r := NewResolver(opener, 20*time.Millisecond, 300, testLogger())

	segments := r.Resolve(context.Background(), []string{"broken.mp3", "silent.mp3"}, nil)
	for i, seg := range segments {
		if seg.Duration != 300 || seg.DurationSource != domain.DurationFallback {
			t.Fatalf("segment %d = %+v, want fallback 300", i, seg)
		}
	}
}

func TestResolveRejectsInsaneDurations(t *testing.T) {
	opener := &probeOpener{durations: map[string]float64{"a.mp3": 50000}}
	r := NewResolver(opener, 20*time.Millisecond, 300, testLogger())

	seg := r.ResolveOne(context.Background(), "a.mp3", nil)
	if seg.Duration != 300 || seg.DurationSource != domain.DurationFallback {
		t.Fatalf("ten-hour-plus probe result must fall back, got %+v", seg)
	}

	insane := 50000.0
	seg = r.ResolveOne(context.Background(), "broken.mp3", &insane)
	if seg.DurationSource != domain.DurationFallback {
		t.Fatalf("insane hint must not be authoritative, got %+v", seg)
	}
}
