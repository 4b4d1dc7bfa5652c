// Package playback implements the chunked audio playback engine: one
// coordinator owning a queue of independently fetched segments, presented to
// callers as a single seekable timeline with one cumulative clock.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"voicestream/internal/domain"
	"voicestream/internal/domain/ports"
	"voicestream/internal/metrics"
	"voicestream/internal/timeline"
)

const (
	defaultSampleInterval = 100 * time.Millisecond

	// Seeks landing within this window of the total duration are treated as
	// end-seeks: playback stops instead of starting a segment that would end
	// immediately.
	endSeekWindow = 0.1

	// Duration corrections below this threshold are noise and ignored.
	durationSlack = 0.5

	skipDelta = 10.0
)

var rateCycle = []float64{1.0, 1.25, 1.5, 2.0}

// Config carries the coordinator's dependencies and tunables. Zero-value
// tunables fall back to defaults.
type Config struct {
	Opener         ports.Opener
	Logger         *slog.Logger
	SampleInterval time.Duration
	ProbeTimeout   time.Duration
	FallbackChunk  float64
}

// Coordinator is the playback engine. One mutex guards all mutable state;
// resource events, sampler ticks and API calls all serialize through it, and
// every asynchronous path is additionally guarded by the session generation
// captured when it was armed.
type Coordinator struct {
	mu       sync.Mutex
	logger   *slog.Logger
	opener   ports.Opener
	resolver *Resolver
	ctrl     *Controller

	sampleInterval time.Duration

	queue           []domain.Segment
	meta            domain.QueueMetadata
	generatorActive bool
	// queueEpoch is bumped whenever the queue identity changes (load/stop) so
	// that in-flight appends resolved against the old queue are dropped.
	queueEpoch uint64

	currentIndex int
	localTime    float64
	rate         float64
	// playIntent is true while the user wants audio running, even if the
	// backend has not confirmed playback yet (loading) or briefly stalled.
	playIntent bool

	offset       offsetState
	pendingLocal float64
	seekDone     bool

	resource    ports.AudioResource
	samplerStop chan struct{}

	warm warmCache

	subs []func(domain.Snapshot)
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &Coordinator{
		logger:         logger.With(slog.String("component", "playback")),
		opener:         cfg.Opener,
		resolver:       NewResolver(cfg.Opener, cfg.ProbeTimeout, cfg.FallbackChunk, logger),
		ctrl:           NewController(),
		sampleInterval: interval,
		rate:           1.0,
	}
}

// Subscribe registers a snapshot listener, called after every state or
// position change. Listeners run outside the coordinator lock and may call
// back into the coordinator.
func (c *Coordinator) Subscribe(fn func(domain.Snapshot)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Snapshot returns the current playback status.
func (c *Coordinator) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Segments returns a copy of the current queue.
func (c *Coordinator) Segments() []domain.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Segment, len(c.queue))
	copy(out, c.queue)
	return out
}

// State returns the current playback state.
func (c *Coordinator) State() State {
	return c.ctrl.State()
}

// Title returns the current queue's display title.
func (c *Coordinator) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta.Title
}

// LoadQueue replaces the current queue with the given segment URLs and starts
// playback from startAt cumulative seconds. serverDurations may be nil; when
// it is complete and valid it is authoritative and no probing happens.
func (c *Coordinator) LoadQueue(ctx context.Context, urls []string, meta domain.QueueMetadata, serverDurations []*float64, startAt float64) error {
	if len(urls) == 0 {
		return domain.ErrEmptyQueue
	}

	c.mu.Lock()
	c.resetLocked()
	c.queueEpoch++
	epoch := c.queueEpoch
	c.meta = meta
	c.generatorActive = meta.GeneratorActive
	c.setStateLocked(StateLoading)
	c.mu.Unlock()
	c.notify()

	c.logger.Info("loading queue",
		slog.String("entryId", string(meta.EntryID)),
		slog.Int("segments", len(urls)),
		slog.Bool("generatorActive", meta.GeneratorActive))

	segments := c.resolver.Resolve(ctx, urls, serverDurations)

	c.mu.Lock()
	if epoch != c.queueEpoch {
		c.mu.Unlock()
		return nil
	}
	c.queue = segments
	c.updateQueueGaugesLocked()
	index, local := timeline.Locate(c.durationsLocked(), startAt)
	c.loadSegmentAtLocked(index, local, true)
	c.mu.Unlock()
	c.notify()
	return nil
}

// AppendChunk resolves and appends one segment to the live queue. If the
// engine was waiting for more segments it resumes playback on the new one.
func (c *Coordinator) AppendChunk(ctx context.Context, url string, serverDuration *float64) (domain.Segment, error) {
	if strings.TrimSpace(url) == "" {
		return domain.Segment{}, errors.New("append: empty url")
	}

	c.mu.Lock()
	epoch := c.queueEpoch
	c.mu.Unlock()

	seg := c.resolver.ResolveOne(ctx, url, serverDuration)

	c.mu.Lock()
	if epoch != c.queueEpoch || c.ctrl.State() == StateIdle {
		c.mu.Unlock()
		c.logger.Warn("dropping appended segment, queue superseded", slog.String("url", url))
		return domain.Segment{}, domain.ErrQueueSuperseded
	}
	seg.Index = len(c.queue)
	c.queue = append(c.queue, seg)
	metrics.SegmentsAppendedTotal.Inc()
	c.updateQueueGaugesLocked()
	resumed := false
	if c.ctrl.State() == StateWaitingForMore {
		c.loadSegmentAtLocked(seg.Index, 0, true)
		resumed = true
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Info("segment appended",
		slog.Int("index", seg.Index),
		slog.Float64("duration", seg.Duration),
		slog.String("source", string(seg.DurationSource)),
		slog.Bool("resumed", resumed))
	return seg, nil
}

// SetGeneratorDone marks the upstream generator finished. If the engine was
// waiting for more segments the stream ends now.
func (c *Coordinator) SetGeneratorDone() {
	c.mu.Lock()
	c.generatorActive = false
	if c.ctrl.State() == StateWaitingForMore {
		c.endPlaybackLocked()
	}
	c.mu.Unlock()
	c.notify()
	c.logger.Info("generator done")
}

// SetGeneratorFailed marks the upstream generator failed. Already-queued
// segments stay playable; a wait for more segments ends the stream.
func (c *Coordinator) SetGeneratorFailed(reason string) {
	c.logger.Error("generator failed", slog.String("reason", reason))
	c.SetGeneratorDone()
}

// Play resumes a paused session. It is a no-op while idle, ended, already
// playing, or waiting for segments.
func (c *Coordinator) Play() {
	c.mu.Lock()
	state := c.ctrl.State()
	if c.resource == nil || state == StatePlaying || state == StateIdle ||
		state == StateEnded || state == StateWaitingForMore {
		c.mu.Unlock()
		return
	}
	c.playIntent = true
	c.startResourceLocked()
	c.mu.Unlock()
	c.notify()
}

// Pause halts playback, keeping the session and position.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	state := c.ctrl.State()
	if state != StatePlaying && !c.playIntent {
		c.mu.Unlock()
		return
	}
	c.playIntent = false
	if c.resource != nil {
		c.resource.Pause()
	}
	c.stopSamplerLocked()
	if state == StatePlaying {
		c.setStateLocked(StatePaused)
	}
	c.mu.Unlock()
	c.notify()
}

// Stop tears down the whole session and clears the queue.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.resetLocked()
	c.queueEpoch++
	c.mu.Unlock()
	c.notify()
	c.logger.Info("playback stopped")
}

// Close releases everything on shutdown.
func (c *Coordinator) Close() {
	c.Stop()
	c.warm.close()
}

// SeekToCumulativeTime seeks the unified timeline to target seconds.
func (c *Coordinator) SeekToCumulativeTime(target float64) error {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		c.logger.Warn("rejected non-finite seek target")
		return domain.ErrInvalidSeek
	}
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return domain.ErrEmptyQueue
	}
	metrics.SeeksTotal.Inc()
	c.seekLocked(target)
	c.mu.Unlock()
	c.notify()
	return nil
}

// SkipForward jumps ten seconds ahead on the cumulative timeline.
func (c *Coordinator) SkipForward() error { return c.skip(skipDelta) }

// SkipBackward jumps ten seconds back on the cumulative timeline.
func (c *Coordinator) SkipBackward() error { return c.skip(-skipDelta) }

func (c *Coordinator) skip(delta float64) error {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return domain.ErrEmptyQueue
	}
	cur := timeline.Cumulative(c.durationsLocked(), c.currentIndex, c.localTime)
	metrics.SeeksTotal.Inc()
	c.seekLocked(cur + delta)
	c.mu.Unlock()
	c.notify()
	return nil
}

// ChangePlaybackRate advances to the next rate in the cycle and returns it.
// The position on the cumulative timeline is unaffected.
func (c *Coordinator) ChangePlaybackRate() float64 {
	c.mu.Lock()
	c.rate = nextRate(c.rate)
	rate := c.rate
	metrics.RateChangesTotal.Inc()
	if c.resource != nil {
		c.resource.SetRate(rate)
	}
	c.mu.Unlock()
	c.notify()
	c.logger.Info("playback rate changed", slog.Float64("rate", rate))
	return rate
}

// SetPlaybackRate sets an explicit rate, used to restore a persisted
// preference on startup. Only rates from the supported cycle are accepted.
func (c *Coordinator) SetPlaybackRate(rate float64) error {
	if !supportedRate(rate) {
		return errors.New("unsupported playback rate")
	}
	c.mu.Lock()
	c.rate = rate
	if c.resource != nil {
		c.resource.SetRate(rate)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// PlaybackRate returns the current rate.
func (c *Coordinator) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// WarmUp creates and unlocks a playback resource inside the caller's user
// gesture so a later programmatic start is not refused by autoplay policy.
func (c *Coordinator) WarmUp() {
	res := c.opener.NewResource()
	if err := res.Play(); err != nil {
		// Even a refused start primes some backends; keep the resource.
		c.logger.Debug("warm-up play refused", slog.String("error", err.Error()))
	}
	res.Pause()
	c.warm.put(res)
	c.logger.Debug("playback resource warmed up")
}

func nextRate(cur float64) float64 {
	for i, r := range rateCycle {
		if r == cur {
			return rateCycle[(i+1)%len(rateCycle)]
		}
	}
	return rateCycle[0]
}

func supportedRate(rate float64) bool {
	for _, r := range rateCycle {
		if r == rate {
			return true
		}
	}
	return false
}

// --- internals, all require c.mu held ---

func (c *Coordinator) durationsLocked() []float64 {
	durations := make([]float64, len(c.queue))
	for i, s := range c.queue {
		durations[i] = s.Duration
	}
	return durations
}

func (c *Coordinator) snapshotLocked() domain.Snapshot {
	durations := c.durationsLocked()
	state := c.ctrl.State()
	snap := domain.Snapshot{
		IsPlaying:                state == StatePlaying,
		CurrentLocalTime:         c.localTime,
		CumulativeTime:           timeline.Cumulative(durations, c.currentIndex, c.localTime),
		TotalDuration:            timeline.Total(durations),
		CurrentSegmentIndex:      c.currentIndex,
		TotalSegments:            len(c.queue),
		IsBuffering:              state == StateLoading || state == StateWaitingForMore,
		PlaybackRate:             c.rate,
		IsWaitingForMoreSegments: state == StateWaitingForMore,
		EntryID:                  c.meta.EntryID,
	}
	if c.currentIndex >= 0 && c.currentIndex < len(c.queue) {
		snap.Duration = c.queue[c.currentIndex].Duration
	}
	return snap
}

// notify publishes a snapshot to all subscribers outside the lock.
func (c *Coordinator) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	subs := make([]func(domain.Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Coordinator) setStateLocked(to State) {
	from := c.ctrl.State()
	if from == to {
		return
	}
	if err := c.ctrl.Transition(to); err != nil {
		c.logger.Warn("forcing playback state transition",
			slog.String("from", from.String()), slog.String("to", to.String()))
		c.ctrl.force(to)
	}
}

// staleLocked reports whether a callback's captured generation has been
// superseded, counting the drop.
func (c *Coordinator) staleLocked(gen uint64) bool {
	if gen != c.ctrl.Generation() {
		metrics.StaleCallbacksDroppedTotal.Inc()
		return true
	}
	return false
}

func (c *Coordinator) updateQueueGaugesLocked() {
	metrics.QueueSegments.Set(float64(len(c.queue)))
	metrics.QueueTotalDurationSeconds.Set(timeline.Total(c.durationsLocked()))
}

// resetLocked tears down the session and returns to Idle. Teardown order
// matters: the sampler stops and the generation advances before the resource
// is released, so no stale tick or event can observe a dead resource.
func (c *Coordinator) resetLocked() {
	c.stopSamplerLocked()
	c.ctrl.NextGeneration()
	if c.resource != nil {
		c.resource.Detach()
		c.resource.Pause()
		_ = c.resource.Close()
		c.resource = nil
	}
	c.queue = nil
	c.meta = domain.QueueMetadata{}
	c.generatorActive = false
	c.currentIndex = 0
	c.localTime = 0
	c.pendingLocal = 0
	c.seekDone = false
	c.playIntent = false
	c.offset = offsetState{}
	c.setStateLocked(StateIdle)
	c.updateQueueGaugesLocked()
}

// loadSegmentAtLocked switches playback to queue[index] at local seconds.
// This is the only place a new session generation is minted for playback.
func (c *Coordinator) loadSegmentAtLocked(index int, local float64, autoplay bool) {
	c.stopSamplerLocked()
	gen := c.ctrl.NextGeneration()

	if c.resource != nil {
		c.resource.Detach()
		c.resource.Pause()
		_ = c.resource.Close()
		c.resource = nil
	}

	// Optimistic position: the UI shows intent before the backend confirms.
	c.currentIndex = index
	c.localTime = local
	c.pendingLocal = local
	c.seekDone = false
	c.playIntent = autoplay

	prior := timeline.Cumulative(c.durationsLocked(), index, 0)
	c.offset = newOffsetState(containerContinuous(c.queue[index].URL, c.meta.Continuous), prior)

	c.setStateLocked(StateLoading)
	metrics.SegmentLoadsTotal.Inc()

	res := c.warm.take()
	if res == nil {
		res = c.opener.NewResource()
	}
	c.resource = res

	res.Bind(ports.ResourceHandlers{
		OnMetadata:       func(d float64) { c.handleDuration(gen, d) },
		OnDurationChange: func(d float64) { c.handleDuration(gen, d) },
		OnSeekable:       func() { c.handleSeekable(gen) },
		OnEnded:          func() { c.handleEnded(gen) },
		OnPlay:           func() { c.handlePlaying(gen) },
		OnPause:          func() { c.handlePaused(gen) },
		OnError:          func(err error) { c.handleError(gen, err) },
	})
	res.SetRate(c.rate)
	res.Load(c.queue[index].URL)

	if autoplay {
		c.startResourceLocked()
	}

	c.logger.Info("segment loading",
		slog.Int("index", index),
		slog.Float64("localTime", local),
		slog.Bool("autoplay", c.playIntent))
}

// startResourceLocked asks the backend to start playing, swallowing autoplay
// refusals as expected policy.
func (c *Coordinator) startResourceLocked() {
	if c.resource == nil {
		return
	}
	if err := c.resource.Play(); err != nil {
		c.playIntent = false
		if errors.Is(err, domain.ErrAutoplayBlocked) {
			metrics.AutoplayBlockedTotal.Inc()
			c.logger.Warn("autoplay blocked, staying paused", slog.Int("index", c.currentIndex))
			if c.ctrl.State() == StateLoading {
				c.setStateLocked(StatePaused)
			}
			return
		}
		c.logger.Error("playback start failed",
			slog.Int("index", c.currentIndex), slog.String("error", err.Error()))
		if c.ctrl.State() == StateLoading {
			c.setStateLocked(StatePaused)
		}
	}
}

// endPlaybackLocked finishes the stream, keeping the queue so the user can
// scrub back. Position pins to the very end of the timeline.
func (c *Coordinator) endPlaybackLocked() {
	c.stopSamplerLocked()
	c.ctrl.NextGeneration()
	if c.resource != nil {
		c.resource.Pause()
	}
	c.playIntent = false
	if n := len(c.queue); n > 0 {
		c.currentIndex = n - 1
		c.localTime = c.queue[n-1].Duration
	}
	c.setStateLocked(StateEnded)
}

// seekLocked maps a cumulative target to a segment and acts on it. The
// caller holds the lock and has verified the queue is non-empty.
func (c *Coordinator) seekLocked(target float64) {
	durations := c.durationsLocked()
	total := timeline.Total(durations)
	if target < 0 {
		target = 0
	}
	if target > total {
		target = total
	}

	// An end-seek never starts playback: the segment would end immediately
	// and re-trigger the end transition.
	if target >= total-endSeekWindow {
		c.endPlaybackLocked()
		return
	}

	index, local := timeline.Locate(durations, target)

	if index == c.currentIndex && c.resource != nil && c.ctrl.State() != StateEnded {
		c.localTime = local
		if c.seekDone {
			c.resource.SeekTo(local + c.offset.current())
		} else {
			// Resource not seekable yet; fold into the one deferred seek.
			c.pendingLocal = local
		}
		return
	}

	wasPlaying := c.playIntent || c.ctrl.State() == StatePlaying
	c.loadSegmentAtLocked(index, local, wasPlaying)
}

// reconcileDurationLocked corrects a stored duration in place. Measured
// durations win over everything; authoritative ones otherwise stand; probe
// revisions within the slack are ignored as noise.
func (c *Coordinator) reconcileDurationLocked(index int, duration float64, source domain.DurationSource) {
	if index < 0 || index >= len(c.queue) || !validDuration(duration) {
		return
	}
	seg := &c.queue[index]
	if source != domain.DurationMeasured {
		if seg.DurationSource == domain.DurationMeasured || seg.DurationSource == domain.DurationAuthoritative {
			return
		}
	}
	if math.Abs(seg.Duration-duration) <= durationSlack {
		return
	}
	c.logger.Info("segment duration corrected",
		slog.Int("index", index),
		slog.Float64("old", seg.Duration),
		slog.Float64("new", duration),
		slog.String("source", string(source)))
	seg.Duration = duration
	seg.DurationSource = source
	metrics.DurationCorrectionsTotal.Inc()
	c.updateQueueGaugesLocked()
}

// --- resource event handlers (async, generation-guarded) ---

func (c *Coordinator) handleDuration(gen uint64, duration float64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.reconcileDurationLocked(c.currentIndex, duration, domain.DurationProbed)
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) handleSeekable(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	if !c.seekDone {
		c.seekDone = true
		if target := c.pendingLocal + c.offset.current(); target > 0 {
			c.resource.SeekTo(target)
		}
	}
	// Loading without play intent settles into Paused once seekable.
	if !c.playIntent && c.ctrl.State() == StateLoading {
		c.setStateLocked(StatePaused)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) handlePlaying(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StatePlaying)
	c.startSamplerLocked(gen)
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) handlePaused(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	if c.ctrl.State() != StatePlaying {
		c.mu.Unlock()
		return
	}
	if c.playIntent {
		// Pause the user did not ask for, typically a rate-change stall.
		// Nudge the backend back into playback from the same position.
		c.logger.Debug("unexpected pause, resuming", slog.Int("index", c.currentIndex))
		c.startResourceLocked()
		if c.playIntent {
			c.mu.Unlock()
			return
		}
	}
	c.stopSamplerLocked()
	c.setStateLocked(StatePaused)
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) handleEnded(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.stopSamplerLocked()

	// The observed local time at the natural end is the segment's real
	// length; correct the table so the cumulative timeline stops drifting.
	c.reconcileDurationLocked(c.currentIndex, c.localTime, domain.DurationMeasured)

	next := c.currentIndex + 1
	switch {
	case next < len(c.queue):
		c.loadSegmentAtLocked(next, 0, true)
	case c.generatorActive:
		c.logger.Info("queue exhausted, waiting for generator", slog.Int("played", len(c.queue)))
		c.setStateLocked(StateWaitingForMore)
	default:
		c.endPlaybackLocked()
		c.logger.Info("stream ended", slog.Int("segments", len(c.queue)))
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) handleError(gen uint64, err error) {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.logger.Error("playback resource error",
		slog.Int("index", c.currentIndex), slog.String("error", err.Error()))
	c.stopSamplerLocked()
	c.playIntent = false
	// Recoverable: the session stays put, the user may retry play or seek.
	if c.ctrl.State() != StateEnded && c.ctrl.State() != StateIdle {
		c.setStateLocked(StatePaused)
	}
	c.mu.Unlock()
	c.notify()
}

// --- position sampler ---

func (c *Coordinator) startSamplerLocked(gen uint64) {
	if c.samplerStop != nil {
		return
	}
	stop := make(chan struct{})
	c.samplerStop = stop
	go func() {
		ticker := time.NewTicker(c.sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sampleTick(gen)
			}
		}
	}()
}

func (c *Coordinator) stopSamplerLocked() {
	if c.samplerStop != nil {
		close(c.samplerStop)
		c.samplerStop = nil
	}
}

func (c *Coordinator) sampleTick(gen uint64) {
	c.mu.Lock()
	if c.staleLocked(gen) || c.resource == nil {
		c.mu.Unlock()
		return
	}
	// Backends may confirm playback before metadata has arrived; positions
	// reported before the deferred seek has been issued do not carry the
	// container's real clock yet and must not confirm the offset.
	if !c.seekDone {
		c.mu.Unlock()
		return
	}
	raw := c.resource.Position()
	if !c.offset.confirmed {
		c.offset.confirm(raw, c.pendingLocal)
		c.logger.Debug("continuity offset confirmed",
			slog.Int("index", c.currentIndex),
			slog.Float64("offset", c.offset.value),
			slog.Bool("continuous", c.offset.continuous))
	}
	local := raw - c.offset.value
	if local < 0 {
		local = 0
	}
	c.localTime = local
	c.mu.Unlock()
	c.notify()
}
