package clockplayer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voicestream/internal/domain/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type eventRecorder struct {
	mu       sync.Mutex
	events   []string
	duration float64
	errs     []error
	metaCh   chan struct{}
	endedCh  chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		metaCh:  make(chan struct{}, 1),
		endedCh: make(chan struct{}, 1),
	}
}

func (e *eventRecorder) handlers() ports.ResourceHandlers {
	return ports.ResourceHandlers{
		OnMetadata: func(d float64) {
			e.mu.Lock()
			e.events = append(e.events, "metadata")
			e.duration = d
			e.mu.Unlock()
			select {
			case e.metaCh <- struct{}{}:
			default:
			}
		},
		OnSeekable: func() { e.record("seekable") },
		OnPlay:     func() { e.record("play") },
		OnPause:    func() { e.record("pause") },
		OnEnded: func() {
			e.record("ended")
			select {
			case e.endedCh <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
			select {
			case e.metaCh <- struct{}{}:
			default:
			}
		},
	}
}

func (e *eventRecorder) record(name string) {
	e.mu.Lock()
	e.events = append(e.events, name)
	e.mu.Unlock()
}

func (e *eventRecorder) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func staticProbe(duration, startTime float64) ProbeFunc {
	return func(context.Context, string) (Probe, error) {
		return Probe{Duration: duration, StartTime: startTime}, nil
	}
}

func TestLoadEmitsMetadataThenSeekable(t *testing.T) {
	opener := New(staticProbe(9.5, 0), time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.mp3")

	select {
	case <-rec.metaCh:
	case <-time.After(time.Second):
		t.Fatalf("metadata never arrived")
	}

	// Seekable is emitted in the same goroutine right after metadata; give
	// it a moment.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		events := rec.snapshot()
		if len(events) >= 2 {
			if events[0] != "metadata" || events[1] != "seekable" {
				t.Fatalf("event order = %v", events)
			}
			if rec.duration != 9.5 {
				t.Fatalf("duration = %f", rec.duration)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("seekable never arrived, events = %v", rec.snapshot())
}

func TestProbeFailureEmitsError(t *testing.T) {
	opener := New(func(context.Context, string) (Probe, error) {
		return Probe{}, errors.New("probe exploded")
	}, time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.mp3")

	select {
	case <-rec.metaCh:
	case <-time.After(time.Second):
		t.Fatalf("error never arrived")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Fatalf("errors = %v", rec.errs)
	}
}

func TestPositionAdvancesOnWallClock(t *testing.T) {
	opener := New(staticProbe(600, 0), time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.webm")
	<-rec.metaCh

	if err := res.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	p1 := res.Position()
	if p1 <= 0 {
		t.Fatalf("position did not advance: %f", p1)
	}

	res.Pause()
	paused := res.Position()
	time.Sleep(30 * time.Millisecond)
	if got := res.Position(); got != paused {
		t.Fatalf("position advanced while paused: %f -> %f", paused, got)
	}
}

func TestPositionIncludesContainerStartTime(t *testing.T) {
	opener := New(staticProbe(612, 600), time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.webm")
	<-rec.metaCh

	if got := res.Position(); got != 600 {
		t.Fatalf("initial position = %f, want the container start time", got)
	}

	res.SeekTo(700)
	if got := res.Position(); got != 700 {
		t.Fatalf("position after seek = %f, want 700", got)
	}

	// Seeks below the start time clamp to the segment beginning.
	res.SeekTo(10)
	if got := res.Position(); got != 600 {
		t.Fatalf("position after under-seek = %f, want 600", got)
	}
}

func TestEndedFiresAtDuration(t *testing.T) {
	opener := New(staticProbe(0.05, 0), time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.mp3")
	<-rec.metaCh

	if err := res.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-rec.endedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("ended never fired")
	}
	if got := res.Position(); got != 0.05 {
		t.Fatalf("position at end = %f, want duration", got)
	}
}

func TestRateScalesClock(t *testing.T) {
	opener := New(staticProbe(600, 0), time.Second, testLogger())
	res := opener.NewResource()
	defer res.Close()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	res.Load("chunk.mp3")
	<-rec.metaCh

	res.SetRate(2.0)
	if err := res.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	res.Pause()

	got := res.Position()
	if got < 0.09 || got > 0.5 {
		t.Fatalf("doubled rate advanced %f in ~60ms", got)
	}
}

func TestCloseSilencesResource(t *testing.T) {
	opener := New(staticProbe(10, 0), 50*time.Millisecond, testLogger())
	res := opener.NewResource()

	rec := newEventRecorder()
	res.Bind(rec.handlers())
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	res.Load("chunk.mp3")
	if err := res.Play(); err == nil {
		t.Fatalf("play on closed resource must fail")
	}

	time.Sleep(20 * time.Millisecond)
	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("closed resource emitted %v", events)
	}
}
